package handlers

import (
	"log/slog"
	"net/http"
)

// ReloadHandler re-reads something the server loaded from disk: the chain
// configuration or the run history.
type ReloadHandler struct {
	logger   *slog.Logger
	what     string
	reloader Reloader
}

// NewReloadHandler creates a ReloadHandler. what names the reloaded thing in
// logs and error responses.
func NewReloadHandler(logger *slog.Logger, what string, reloader Reloader) *ReloadHandler {
	return &ReloadHandler{
		logger:   logger.With("reload", what),
		what:     what,
		reloader: reloader,
	}
}

// ServeHTTP implements http.Handler. It responds 204 on success and 500 with
// the error otherwise; on failure the previously loaded state stays in use.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("reload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to reload " + h.what + ": " + err.Error(),
		})
		return
	}
	h.logger.Info("reloaded")
	w.WriteHeader(http.StatusNoContent)
}
