package handlers

import (
	"net/http"
	"time"

	"github.com/brightkeycloud-chad/lifecycle/server/runner"
	"github.com/brightkeycloud-chad/lifecycle/server/types"
)

// NextRunResponse is the JSON response for the next run information.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	Server  types.ServerProperties `json:"server"`
	Run     runner.RunStatus       `json:"run"` // Includes step executions with status and logs
	NextRun NextRunResponse        `json:"next_run"`
}

// APIStatusProvider aggregates all the providers needed for the status endpoint.
type APIStatusProvider interface {
	Properties() types.ServerProperties
	Status() runner.RunStatus
	NextRun() *time.Time
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	provider APIStatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(provider APIStatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nextRun := h.provider.NextRun()
	resp := APIStatusResponse{
		Server: h.provider.Properties(),
		Run:    h.provider.Status(),
		NextRun: NextRunResponse{
			Scheduled: nextRun != nil,
			NextRun:   nextRun,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}
