package handlers

import (
	"net/http"
	"strconv"

	"github.com/brightkeycloud-chad/lifecycle/server/runner"
)

// RunStatusHandler serves the current or last run with its step executions.
//
// Query parameters:
//   - chain: only include steps of this chain
//   - logs: set to false to leave out captured step logs
type RunStatusHandler struct {
	provider RunStatusProvider
}

// NewRunStatusHandler creates a new RunStatusHandler.
func NewRunStatusHandler(provider RunStatusProvider) *RunStatusHandler {
	return &RunStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	withLogs := true
	if v := r.URL.Query().Get("logs"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "logs must be true or false"})
			return
		}
		withLogs = b
	}
	chain := r.URL.Query().Get("chain")

	st := h.provider.Status()
	if chain != "" || !withLogs {
		steps := make([]runner.StepExecution, 0, len(st.Steps))
		for _, s := range st.Steps {
			if chain != "" && s.Chain != chain {
				continue
			}
			if !withLogs {
				s.Logs = nil
			}
			steps = append(steps, s)
		}
		st.Steps = steps
	}
	writeJSON(w, http.StatusOK, st)
}
