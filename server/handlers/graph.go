package handlers

import (
	"fmt"
	"net/http"

	"github.com/brightkeycloud-chad/lifecycle/workflows"
)

// GraphHandler renders a chain's dependency graph as DOT, Mermaid or a JSON plan.
type GraphHandler struct {
	configProvider ConfigProvider
}

// NewGraphHandler creates a new GraphHandler.
func NewGraphHandler(provider ConfigProvider) *GraphHandler {
	return &GraphHandler{
		configProvider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *GraphHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("chain")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing chain"})
		return
	}
	cfg := h.configProvider.Config()
	if cfg == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "no configuration loaded"})
		return
	}
	ch, ok := cfg.Chain(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("unknown chain %q", name)})
		return
	}
	chain, err := workflows.Graph(ch)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, chain.Plan())
	case "dot":
		writeText(w, "text/vnd.graphviz", chain.DOT(name))
	case "mermaid":
		writeText(w, "text/plain", chain.Mermaid())
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("unknown format %q", format)})
	}
}
