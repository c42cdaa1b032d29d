// Package handlers provides HTTP handlers for the lifecycle server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"github.com/brightkeycloud-chad/lifecycle/config"
	"github.com/brightkeycloud-chad/lifecycle/server/runner"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// ChainRunner can start chain runs.
type ChainRunner interface {
	Run(trigger string, chains ...string) (string, error)
}

// RunStatusProvider provides access to run status.
type RunStatusProvider interface {
	Status() runner.RunStatus
}

// HistoryProvider provides access to run history.
type HistoryProvider interface {
	History() []runner.RunSummary
	Record(id string) (runner.RunRecord, bool)
}
