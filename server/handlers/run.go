package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/brightkeycloud-chad/lifecycle/server/runner"
)

// Trigger is the name recorded on runs started through the API.
const Trigger = "api"

// RunRequest defines the request body for POST /api/run. An empty chain list
// runs every configured chain.
type RunRequest struct {
	Chains []string `json:"chains"`
}

// RunResponse is returned when a run has been accepted.
type RunResponse struct {
	ID string `json:"id"`
}

// RunHandler handles requests to start a run.
type RunHandler struct {
	runner ChainRunner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(r ChainRunner) *RunHandler {
	return &RunHandler{
		runner: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}

	seen := make(map[string]bool, len(req.Chains))
	for _, ch := range req.Chains {
		if seen[ch] {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("duplicate chain %q in request", ch),
			})
			return
		}
		seen[ch] = true
	}

	id, err := h.runner.Run(Trigger, req.Chains...)
	if err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		// Unknown chain or nothing to run
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, RunResponse{ID: id})
}
