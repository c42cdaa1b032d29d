package handlers

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/brightkeycloud-chad/lifecycle/server/runner"
)

// HistoryHandler serves completed runs, most recent first.
//
// Query parameters:
//   - chain: only runs that included this chain
//   - result: only runs with this result (success, partial_failure, error)
//   - limit: at most this many runs
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	chain, result := q.Get("chain"), q.Get("result")

	runs := make([]runner.RunSummary, 0)
	for _, run := range h.provider.History() {
		if chain != "" && !slices.Contains(run.Chains, chain) {
			continue
		}
		if result != "" && run.Result != result {
			continue
		}
		runs = append(runs, run)
		if limit > 0 && len(runs) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, runs)
}

// RunRecordHandler returns the reports, step statuses and logs of one run.
type RunRecordHandler struct {
	provider HistoryProvider
}

// NewRunRecordHandler creates a new RunRecordHandler.
func NewRunRecordHandler(provider HistoryProvider) *RunRecordHandler {
	return &RunRecordHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunRecordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing run id"})
		return
	}

	record, ok := h.provider.Record(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("run %s not found", id)})
		return
	}
	writeJSON(w, http.StatusOK, record)
}
