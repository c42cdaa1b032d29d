package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests
// ---------------------------------------------------------------------

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("chain_config: chains.yaml\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listener.Addr)
	assert.Equal(t, BackendMemory, cfg.History.Backend, "no state dir keeps history in memory")
	assert.Equal(t, 100, cfg.History.MaxRuns)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.False(t, cfg.Listener.TLS.Enabled())
	assert.Empty(t, cfg.CronSpec())
}

func TestParse_Full(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
listener:
  addr: ":9443"
  tls:
    cert_file: /etc/lifecycle/tls.crt
    key_file: /etc/lifecycle/tls.key
cron:
  - chains: [lambda-smoke, remote-dir]
    schedule: "0 2 * * *"
  - chains: [demo]
    schedule: "@hourly"
state_dir: /var/lib/lifecycle
history:
  backend: sqlite
  max_runs: 20
log_level: debug
chain_config: /etc/lifecycle/chains.yaml
watch: true
concurrency: 2
`))
	require.NoError(t, err)

	assert.True(t, cfg.Listener.TLS.Enabled())
	assert.Equal(t, BackendSQLite, cfg.History.Backend)
	assert.Equal(t, 20, cfg.History.MaxRuns)
	assert.Equal(t, "/var/lib/lifecycle/history.db", cfg.SQLitePath())
	assert.Equal(t, "lambda-smoke,remote-dir:0 2 * * *;demo:@hourly", cfg.CronSpec())
	assert.True(t, cfg.Watch)
	assert.Equal(t, 2, cfg.Concurrency)
}

func TestParse_StateDirSelectsDisk(t *testing.T) {
	cfg, err := Parse(strings.NewReader("chain_config: c.yaml\nstate_dir: /tmp/state\n"))
	require.NoError(t, err)
	assert.Equal(t, BackendDisk, cfg.History.Backend)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing chain config", yaml: "listener:\n  addr: :80\n"},
		{name: "unknown field", yaml: "chain_config: c.yaml\nworkflow_config: x\n"},
		{name: "bad backend", yaml: "chain_config: c.yaml\nhistory:\n  backend: redis\n"},
		{name: "disk without state dir", yaml: "chain_config: c.yaml\nhistory:\n  backend: disk\n"},
		{name: "cert without key", yaml: "chain_config: c.yaml\nlistener:\n  tls:\n    cert_file: a.crt\n"},
		{name: "cron without chains", yaml: "chain_config: c.yaml\ncron:\n  - schedule: \"@daily\"\n"},
		{name: "bad log level", yaml: "chain_config: c.yaml\nlog_level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chain_config: chains.yaml\nstate_dir: state\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "chains.yaml"), cfg.ChainConfig)
	assert.Equal(t, filepath.Join(dir, "state"), cfg.StateDir)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
