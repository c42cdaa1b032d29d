package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serverconfig "github.com/brightkeycloud-chad/lifecycle/server/config"
	"github.com/brightkeycloud-chad/lifecycle/server/handlers"
	"github.com/brightkeycloud-chad/lifecycle/server/runner"
	"github.com/brightkeycloud-chad/lifecycle/workflows/demo"
)

const extraChain = `
chains:
  - name: extra
    steps:
      - name: a
        kind: generic
        provider: sandbox
`

// Tests
// ---------------------------------------------------------------------

func TestServer_RunAndHistory(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, "ok", w.Body.String())

	w = do(t, h, http.MethodGet, "/api/chains", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"demo"`)

	w = do(t, h, http.MethodPost, "/run", `{"chains":["demo"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted handlers.RunResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&accepted))
	s.Runner().Wait()

	w = do(t, h, http.MethodGet, "/history", "")
	var history []runner.RunSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, accepted.ID, history[0].ID)
	assert.Equal(t, runner.ResultSuccess, history[0].Result)
	assert.Equal(t, handlers.Trigger, history[0].Trigger)

	w = do(t, h, http.MethodGet, "/history/report?id="+accepted.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"step":"function"`)

	w = do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"history_backend":"memory"`)
	assert.Contains(t, w.Body.String(), `"scheduled":false`)

	w = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lifecycle_steps_total")
}

func TestServer_Graph(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s.Handler(), http.MethodGet, "/api/graph?chain=demo&format=dot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role" -> "function"`)
}

func TestServer_Reload(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	require.NoError(t, os.WriteFile(s.cfg.ChainConfig, []byte(extraChain), 0o644))
	w := do(t, h, http.MethodPost, "/reload", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.ElementsMatch(t, []string{"extra", demo.Name, demo.FailureName}, s.Config().ChainNames())

	// An invalid file keeps the previous configuration.
	require.NoError(t, os.WriteFile(s.cfg.ChainConfig, []byte("chains: [{name: BAD}]\n"), 0o644))
	w = do(t, h, http.MethodPost, "/reload", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, s.Config().ChainNames(), "extra")
}

func TestServer_DiskHistory(t *testing.T) {
	s := newTestServer(t, func(cfg *serverconfig.ServerConfig) {
		cfg.StateDir = t.TempDir()
		cfg.History.Backend = serverconfig.BackendDisk
	})

	w := do(t, s.Handler(), http.MethodPost, "/history/reload", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestServer_SQLiteHistory(t *testing.T) {
	s := newTestServer(t, func(cfg *serverconfig.ServerConfig) {
		cfg.StateDir = filepath.Join(t.TempDir(), "state")
		cfg.History.Backend = serverconfig.BackendSQLite
	})
	defer s.close()

	_, err := s.Runner().Run("test", demo.Name)
	require.NoError(t, err)
	s.Runner().Wait()

	assert.Len(t, s.Runner().History(), 1)
	// Only the disk store can be reloaded.
	w := do(t, s.Handler(), http.MethodPost, "/history/reload", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Cron(t *testing.T) {
	s := newTestServer(t, func(cfg *serverconfig.ServerConfig) {
		cfg.Cron = []serverconfig.CronTrigger{{Chains: []string{demo.Name}, Schedule: "@daily"}}
	})
	next := s.NextRun()
	require.NotNil(t, next)
	assert.True(t, next.After(time.Now()))

	_, err := New(&serverconfig.ServerConfig{
		ChainConfig: s.cfg.ChainConfig,
		Demo:        true,
		Cron:        []serverconfig.CronTrigger{{Chains: []string{"nope"}, Schedule: "@daily"}},
	}, WithLogOutput(io.Discard))
	assert.Error(t, err)
}

func TestServer_MissingChainConfig(t *testing.T) {
	cfg := &serverconfig.ServerConfig{ChainConfig: filepath.Join(t.TempDir(), "missing.yaml")}
	cfg.SetDefaults()
	_, err := New(cfg, WithLogOutput(io.Discard))
	assert.Error(t, err)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := newTestServer(t, func(cfg *serverconfig.ServerConfig) {
		cfg.Listener.Addr = "127.0.0.1:0"
		cfg.Watch = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

// Test Helpers
// ---------------------------------------------------------------------

func newTestServer(t *testing.T, mutate func(*serverconfig.ServerConfig)) *Server {
	t.Helper()
	chainPath := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(chainPath, []byte("behavior:\n  max_retries: 3\n"), 0o644))

	cfg := &serverconfig.ServerConfig{ChainConfig: chainPath, Demo: true}
	if mutate != nil {
		mutate(cfg)
	}
	cfg.SetDefaults()

	s, err := New(cfg,
		WithLogOutput(io.Discard),
		WithRunnerOptions(runner.WithSleeper(noSleep)),
	)
	require.NoError(t, err)
	return s
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, r))
	return w
}
