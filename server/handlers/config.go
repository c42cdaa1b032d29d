package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"
)

// ConfigHandler serves the loaded chain configuration with secrets redacted.
// It responds with YAML unless format=json is given; chain=<name> narrows the
// response to one chain.
type ConfigHandler struct {
	configProvider ConfigProvider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(provider ConfigProvider) *ConfigHandler {
	return &ConfigHandler{
		configProvider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.configProvider.Config()
	if cfg == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "no configuration loaded"})
		return
	}

	var body any = cfg.Redacted()
	if name := r.URL.Query().Get("chain"); name != "" {
		redacted := cfg.Redacted()
		ch, ok := redacted.Chain(name)
		if !ok {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("unknown chain %q", name)})
			return
		}
		body = ch
	}

	switch format := r.URL.Query().Get("format"); format {
	case "json":
		writeJSON(w, http.StatusOK, body)
	case "", "yaml":
		w.Header().Set("Content-Type", "text/yaml")
		w.WriteHeader(http.StatusOK)
		if err := yaml.NewEncoder(w).Encode(body); err != nil {
			slog.Error("failed to encode YAML response", "error", err)
		}
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("unknown format %q", format)})
	}
}
