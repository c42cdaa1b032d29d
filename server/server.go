// Package server provides an HTTP server for running lifecycle chains on demand
// and on a schedule.
//
// The server exposes a REST API to start runs, watch their per-step progress
// and browse the history of completed runs, including what each run left
// behind.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /api/status - Consolidated status endpoint (server, run status, next run)
//   - GET /api/chains - Configured chains
//   - GET /api/graph?chain=&format= - A chain's dependency graph (json, dot, mermaid)
//   - GET /api/run - Current or last run with live step statuses and logs
//   - GET /config - Returns current chain configuration as YAML, secrets redacted
//   - POST /reload - Reloads the chain configuration from disk
//   - POST /run - Starts a run of the given chains
//   - GET /history - Returns history of completed runs
//   - GET /history/report?id= - Reports, statuses and logs of one run
//   - POST /history/reload - Re-reads the history store (disk backend)
//   - GET /metrics - Prometheus metrics
//
// # Architecture
//
// Server-level deps are swapped atomically on reload and hold the chain
// configuration. Run-level deps (provider clients) are created fresh for each
// run from the current config, ensuring configuration changes take effect on
// the next run without interrupting a run in progress.
//
// # Example
//
//	cfg, err := serverconfig.LoadConfig("/etc/lifecycle/server.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/brightkeycloud-chad/lifecycle/buildinfo"
	"github.com/brightkeycloud-chad/lifecycle/config"
	"github.com/brightkeycloud-chad/lifecycle/logging"
	"github.com/brightkeycloud-chad/lifecycle/metrics"
	serverconfig "github.com/brightkeycloud-chad/lifecycle/server/config"
	"github.com/brightkeycloud-chad/lifecycle/server/cron"
	"github.com/brightkeycloud-chad/lifecycle/server/handlers"
	"github.com/brightkeycloud-chad/lifecycle/server/runner"
	"github.com/brightkeycloud-chad/lifecycle/server/types"
	"github.com/brightkeycloud-chad/lifecycle/workflows/demo"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// serverDeps holds config-derived dependencies that are swapped atomically on reload.
type serverDeps struct {
	config *config.Config
}

// Server is the HTTP server for the lifecycle API.
type Server struct {
	cfg        *serverconfig.ServerConfig
	logger     *slog.Logger
	logLevel   *slog.LevelVar
	logOutput  io.Writer
	deps       atomic.Pointer[serverDeps]
	props      types.ServerProperties
	httpServer *http.Server
	runner     *runner.Runner
	runnerOpts []runner.Option
	store      runner.StateStore
	scrape     *metrics.ScrapeRegistry
	cron       *cron.CronTriggerManager
	certs      *CertLoader
}

// Option configures a Server.
type Option func(*Server) error

// WithLogOutput sends the server's logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(s *Server) error {
		s.logOutput = w
		return nil
	}
}

// WithRunnerOptions passes extra options to the runner.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(s *Server) error {
		s.runnerOpts = append(s.runnerOpts, opts...)
		return nil
	}
}

// New creates a new Server from its runtime configuration.
// It loads the chain configuration and initializes all dependencies.
func New(cfg *serverconfig.ServerConfig, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logLevel:  &slog.LevelVar{},
		logOutput: os.Stderr,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	s.logLevel.Set(level)
	s.logger = slog.New(slog.NewJSONHandler(s.logOutput, &slog.HandlerOptions{
		Level: s.logLevel,
	}))

	if err := s.Reload(); err != nil {
		return nil, err
	}

	store, err := s.newStore()
	if err != nil {
		return nil, err
	}
	s.store = store

	s.scrape, err = metrics.NewScrapeRegistry()
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}
	observer, err := metrics.NewLifecycleObserver(s.scrape)
	if err != nil {
		return nil, fmt.Errorf("creating lifecycle metrics: %w", err)
	}

	runnerOpts := append([]runner.Option{
		runner.WithStateStore(store),
		runner.WithObserver(observer),
		runner.WithConcurrency(cfg.Concurrency),
	}, s.runnerOpts...)
	s.runner = runner.New(s.logger, s, runnerOpts...)

	if spec := cfg.CronSpec(); spec != "" {
		s.cron, err = cron.NewCronTriggerManager(spec, s.runner, s.logger, s.Config().ChainNames())
		if err != nil {
			return nil, fmt.Errorf("creating cron triggers: %w", err)
		}
	}

	if cfg.Listener.TLS.Enabled() {
		s.certs, err = NewCertLoader(cfg.Listener.TLS.CertFile, cfg.Listener.TLS.KeyFile, s.logger)
		if err != nil {
			return nil, err
		}
	}

	hostname, _ := os.Hostname()
	s.props = types.ServerProperties{
		Build:          buildinfo.Get(),
		StartedAt:      time.Now(),
		Hostname:       hostname,
		ConfigPath:     cfg.ChainConfig,
		HistoryBackend: cfg.History.Backend,
	}
	return s, nil
}

func (s *Server) newStore() (runner.StateStore, error) {
	switch s.cfg.History.Backend {
	case serverconfig.BackendDisk:
		return runner.NewDiskStore(s.cfg.StateDir, s.cfg.History.MaxRuns, s.logger)
	case serverconfig.BackendSQLite:
		if err := os.MkdirAll(s.cfg.StateDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		return runner.NewSQLiteStore(context.Background(), s.cfg.SQLitePath(), s.cfg.History.MaxRuns, s.logger)
	default:
		return runner.NewMemoryStore(s.cfg.History.MaxRuns), nil
	}
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogLevel changes the server's log level at runtime.
func (s *Server) SetLogLevel(level slog.Level) {
	s.logLevel.Set(level)
}

// Reload reads the chain config from disk and swaps it in. The previous
// config stays in place if the new one is invalid.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.cfg.ChainConfig)
	if err != nil {
		return err
	}
	if s.cfg.Demo {
		demo.Register(&cfg)
	}

	s.deps.Store(&serverDeps{config: &cfg})
	s.logger.Info("configuration loaded", "config_path", s.cfg.ChainConfig, "chains", cfg.ChainNames())
	return nil
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.deps.Load().config
}

// Properties describes the running server.
func (s *Server) Properties() types.ServerProperties {
	return s.props
}

// Runner returns the run manager.
func (s *Server) Runner() *runner.Runner {
	return s.runner
}

// NextRun returns the next scheduled run time, or nil if no cron is configured.
func (s *Server) NextRun() *time.Time {
	if s.cron == nil {
		return nil
	}
	next := s.cron.NextRun()
	return &next
}

// Status returns the current run status by delegating to the runner.
func (s *Server) Status() runner.RunStatus {
	return s.runner.Status()
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done, waiting for a run
// in progress to finish its teardown. Cron triggers and file watching start
// with it when configured.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	s.httpServer = &http.Server{
		Addr:         s.cfg.Listener.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certs != nil {
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: s.certs.GetCertificate,
		}
	}

	if err := s.startWatcher(ctx); err != nil {
		return err
	}

	if s.cron != nil {
		s.logger.Info("starting cron triggers", "next_run", s.cron.NextRun())
		s.cron.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.cfg.Listener.Addr,
			"tls", s.certs != nil,
			"config_path", s.cfg.ChainConfig,
		)
		var err error
		if s.certs != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		if s.runner.IsRunning() {
			s.logger.Info("waiting for the current run to tear down")
			s.runner.Wait()
		}
		return err
	}
}

func (s *Server) startWatcher(ctx context.Context) error {
	if !s.cfg.Watch && s.certs == nil {
		return nil
	}
	w, err := NewWatcher(s.logger, 0)
	if err != nil {
		return err
	}
	if s.cfg.Watch {
		err := w.Watch(s.cfg.ChainConfig, func() {
			if err := s.Reload(); err != nil {
				s.logger.Error("failed to reload configuration", "error", err)
			}
		})
		if err != nil {
			return err
		}
	}
	if s.certs != nil {
		if err := s.certs.Watch(w); err != nil {
			return err
		}
	}
	go w.Run(ctx)
	return nil
}

func (s *Server) close() {
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn("failed to close history store", "error", err)
		}
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("GET /api/chains", handlers.NewChainsHandler(s))
	mux.Handle("GET /api/graph", handlers.NewGraphHandler(s))
	mux.Handle("GET /api/run", handlers.NewRunStatusHandler(s.runner))
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(s.logger, "configuration", s))
	mux.Handle("POST /run", handlers.NewRunHandler(s.runner))
	mux.Handle("GET /history", handlers.NewHistoryHandler(s.runner))
	mux.Handle("GET /history/report", handlers.NewRunRecordHandler(s.runner))
	if r, ok := s.store.(runner.Reloader); ok {
		mux.Handle("POST /history/reload", handlers.NewReloadHandler(s.logger, "history", r))
	}
	mux.Handle("GET /metrics", s.scrape.Handler())

	return mux
}
