// Package types provides shared types for the server package and its subpackages.
package types

import (
	"time"

	"github.com/brightkeycloud-chad/lifecycle/buildinfo"
)

// ServerProperties holds metadata about the running server instance.
type ServerProperties struct {
	Build     buildinfo.Properties `json:"build"`
	StartedAt time.Time            `json:"started_at"`
	Hostname  string               `json:"hostname"`
	// ConfigPath is the chain configuration file being served.
	ConfigPath string `json:"config_path"`
	// HistoryBackend is where run history is kept: memory, disk or sqlite.
	HistoryBackend string `json:"history_backend"`
}
