// Package config loads the lifecycle server's runtime configuration. The chains
// the server runs live in a separate file, named by ChainConfig.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// History backends.
const (
	BackendMemory = "memory"
	BackendDisk   = "disk"
	BackendSQLite = "sqlite"
)

const (
	defaultListenAddr  = ":8080"
	defaultMaxRuns     = 100
	defaultConcurrency = 4
	sqliteFileName     = "history.db"
)

// ServerConfig represents the server runtime configuration.
type ServerConfig struct {
	Listener ListenerConfig `yaml:"listener"`
	Cron     []CronTrigger  `yaml:"cron" validate:"dive"`
	// The path to the directory used to store the run history
	StateDir string        `yaml:"state_dir"`
	History  HistoryConfig `yaml:"history"`
	LogLevel string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	// The path to the chain config file
	ChainConfig string `yaml:"chain_config" validate:"required"`
	// Watch reloads the chain config when the file changes.
	Watch bool `yaml:"watch"`
	// Demo adds the built-in sandbox chains to the loaded config.
	Demo bool `yaml:"demo"`
	// Concurrency bounds how many chains of one run execute at once.
	Concurrency int `yaml:"concurrency" validate:"gte=0"`
}

// ListenerConfig holds HTTP server listener settings.
type ListenerConfig struct {
	// The listen address, defaults to :8080
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// TLSConfig enables HTTPS. Certificates are reloaded when the files change.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" validate:"required_with=KeyFile"`
	KeyFile  string `yaml:"key_file" validate:"required_with=CertFile"`
}

// Enabled reports whether a certificate is configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != ""
}

// HistoryConfig selects where run history is kept.
type HistoryConfig struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory disk sqlite"`
	MaxRuns int    `yaml:"max_runs" validate:"gte=0"`
}

// CronTrigger defines a set of chains to run on a schedule.
type CronTrigger struct {
	// The chains to run
	Chains []string `yaml:"chains" validate:"required,min=1"`
	// The cron spec to execute the chains at
	Schedule string `yaml:"schedule" validate:"required"`
}

// LoadConfig reads the YAML config file at the given path and returns a ServerConfig struct.
// A relative chain_config or state_dir is resolved against the file's directory.
func LoadConfig(path string) (*ServerConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server config file %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	cfg.ChainConfig = resolve(dir, cfg.ChainConfig)
	cfg.StateDir = resolve(dir, cfg.StateDir)
	return cfg, nil
}

// Parse decodes a server config, applies defaults and validates it.
func Parse(r io.Reader) (*ServerConfig, error) {
	var cfg ServerConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode YAML server config: %w", err)
	}
	cfg.SetDefaults()
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if cfg.History.Backend != BackendMemory && cfg.StateDir == "" {
		return nil, fmt.Errorf("invalid server config: state_dir is required for the %s history backend", cfg.History.Backend)
	}
	return &cfg, nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *ServerConfig) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = defaultListenAddr
	}
	if c.History.Backend == "" {
		c.History.Backend = BackendDisk
		if c.StateDir == "" {
			c.History.Backend = BackendMemory
		}
	}
	if c.History.MaxRuns == 0 {
		c.History.MaxRuns = defaultMaxRuns
	}
	if c.Concurrency == 0 {
		c.Concurrency = defaultConcurrency
	}
}

// CronSpec returns the triggers in the form accepted by the cron package:
// chain1,chain2:schedule;chain3:schedule. Empty when no triggers are set.
func (c *ServerConfig) CronSpec() string {
	parts := make([]string, 0, len(c.Cron))
	for _, t := range c.Cron {
		parts = append(parts, strings.Join(t.Chains, ",")+":"+t.Schedule)
	}
	return strings.Join(parts, ";")
}

// SQLitePath is the database file used by the sqlite backend.
func (c *ServerConfig) SQLitePath() string {
	return filepath.Join(c.StateDir, sqliteFileName)
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
