package handlers

import (
	"net/http"

	"github.com/brightkeycloud-chad/lifecycle/config"
)

// ChainInfo describes one configured chain.
type ChainInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Steps       []string `json:"steps"`
	Cases       int      `json:"validation_cases"`
}

// ChainsResponse is the JSON response for /api/chains.
type ChainsResponse struct {
	Chains []ChainInfo `json:"chains"`
}

// ChainsHandler lists the chains that can be run.
type ChainsHandler struct {
	configProvider ConfigProvider
}

// NewChainsHandler creates a new ChainsHandler.
func NewChainsHandler(provider ConfigProvider) *ChainsHandler {
	return &ChainsHandler{
		configProvider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ChainsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.configProvider.Config()
	resp := ChainsResponse{Chains: make([]ChainInfo, 0)}
	if cfg != nil {
		for _, ch := range cfg.Chains {
			resp.Chains = append(resp.Chains, chainInfo(ch))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func chainInfo(ch config.ChainConfig) ChainInfo {
	info := ChainInfo{
		Name:        ch.Name,
		Description: ch.Description,
		Steps:       make([]string, 0, len(ch.Steps)),
		Cases:       len(ch.Validation),
	}
	for _, s := range ch.Steps {
		info.Steps = append(info.Steps, s.Name)
	}
	return info
}
