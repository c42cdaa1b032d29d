// Package runner manages chain runs for the lifecycle server.
//
// The runner handles:
//   - Starting runs in the background
//   - Preventing concurrent runs
//   - Tracking current run status with live per-step statuses and logs
//   - Maintaining history of completed runs
//
// Each run creates fresh provider clients from the current configuration,
// ensuring config changes take effect on the next run.
//
// # Example
//
//	r := runner.New(logger, configProvider)
//
//	// Start a run of two chains
//	id, err := r.Run("api", "lambda-demo", "remote-dir")
//	if errors.Is(err, runner.ErrRunInProgress) {
//	    // Handle concurrent run attempt
//	}
//
//	// Check status with live step executions and logs
//	status := r.Status()
//	for _, step := range status.Steps {
//	    fmt.Printf("%s/%s [%s]: %s\n", step.Chain, step.Step, step.Outcome, step.Status)
//	}
//
//	// Get history
//	history := r.History() // Most recent first
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightkeycloud-chad/lifecycle/config"
	"github.com/brightkeycloud-chad/lifecycle/logging"
	"github.com/brightkeycloud-chad/lifecycle/metrics"
	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
	"github.com/brightkeycloud-chad/lifecycle/providers"
	"github.com/brightkeycloud-chad/lifecycle/status"
	"github.com/brightkeycloud-chad/lifecycle/workflow"
	"github.com/brightkeycloud-chad/lifecycle/workflows"
)

const (
	defaultMaxHistorySize = 100
	defaultLogEntryLimit  = 500
)

// ErrRunInProgress is returned when attempting to start a run while one is already running.
var ErrRunInProgress = errors.New("a run is already in progress")

// ErrNoChains is returned when there is nothing to run.
var ErrNoChains = errors.New("no chains configured")

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// RegistryFactory creates the provider registry for one run.
type RegistryFactory func(cfg *config.Config, logger *slog.Logger) *providers.Registry

func defaultRegistry(cfg *config.Config, logger *slog.Logger) *providers.Registry {
	return providers.New(cfg, providers.WithLogger(logger))
}

// Runner manages chain runs.
type Runner struct {
	logger         *slog.Logger
	configProvider ConfigProvider
	store          StateStore
	observer       *metrics.LifecycleObserver
	newRegistry    RegistryFactory
	sleeper        orchestrator.Sleeper
	now            func() time.Time
	concurrency    int

	mu        sync.Mutex
	runStatus RunStatus
	group     *workflow.Group    // current or last run
	board     *status.Board      // current run's step statuses
	collector *logging.Collector // current run's step logs
	done      chan struct{}
}

// Option configures a Runner.
type Option func(*Runner)

// WithStateStore configures the runner to use the provided store for persistence.
func WithStateStore(store StateStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithObserver records lifecycle metrics for every run.
func WithObserver(obs *metrics.LifecycleObserver) Option {
	return func(r *Runner) {
		r.observer = obs
	}
}

// WithRegistryFactory replaces how provider registries are created.
func WithRegistryFactory(f RegistryFactory) Option {
	return func(r *Runner) {
		r.newRegistry = f
	}
}

// WithSleeper replaces the retry wait of every step.
func WithSleeper(s orchestrator.Sleeper) Option {
	return func(r *Runner) {
		r.sleeper = s
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithConcurrency bounds how many chains of one run execute at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		r.concurrency = n
	}
}

// New creates a new Runner.
func New(logger *slog.Logger, provider ConfigProvider, opts ...Option) *Runner {
	r := &Runner{
		logger:         logger.With("component", "runner"),
		configProvider: provider,
		store:          NewMemoryStore(defaultMaxHistorySize),
		newRegistry:    defaultRegistry,
		now:            time.Now,
		runStatus:      RunStatus{State: RunStateIdle},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the named chains in the background and returns the run ID. With
// no names every configured chain runs. Returns ErrRunInProgress if a run is
// already in progress.
func (r *Runner) Run(trigger string, chains ...string) (string, error) {
	cfg := r.configProvider.Config()
	if cfg == nil {
		return "", errors.New("no configuration available")
	}
	if len(chains) == 0 {
		chains = cfg.ChainNames()
	}
	if len(chains) == 0 {
		return "", ErrNoChains
	}
	for _, name := range chains {
		if _, ok := cfg.Chain(name); !ok {
			return "", fmt.Errorf("unknown chain %q", name)
		}
	}

	id, ok := r.tryStart(trigger, chains)
	if !ok {
		return "", ErrRunInProgress
	}
	r.logger.Info("starting run", "id", id, "trigger", trigger, "chains", chains)

	go func() {
		reports, err := r.executeRun(context.Background(), cfg, chains)
		r.finish(reports, err)
	}()
	return id, nil
}

// Wait blocks until the current run, if any, has finished and been saved.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Status returns the current run status. While running, Steps are built from
// the live reports, statuses and captured logs.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.runStatus
	if st.State == RunStateRunning && r.group != nil {
		st.Steps = r.buildSteps(r.group.Snapshots())
	}
	return st
}

// IsRunning returns true if a run is in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runStatus.State == RunStateRunning
}

// History returns the history of completed runs, most recent first.
func (r *Runner) History() []RunSummary {
	return r.store.History()
}

// Record returns the full record of a completed run.
func (r *Runner) Record(id string) (RunRecord, bool) {
	return r.store.Record(id)
}

// Store returns the history store.
func (r *Runner) Store() StateStore {
	return r.store
}

// tryStart attempts to transition from idle to running.
func (r *Runner) tryStart(trigger string, chains []string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runStatus.State == RunStateRunning {
		return "", false
	}

	now := r.now()
	id := uuid.NewString()
	r.runStatus = RunStatus{
		State: RunStateRunning,
		RunSummary: RunSummary{
			ID:        id,
			Trigger:   trigger,
			Chains:    chains,
			StartedAt: &now,
		},
	}
	r.group = nil
	r.board = status.NewBoard()
	r.collector = logging.NewCollector(logging.WithEntryLimit(defaultLogEntryLimit))
	r.done = make(chan struct{})
	return id, true
}

func (r *Runner) executeRun(ctx context.Context, cfg *config.Config, chains []string) ([]*orchestrator.ExecutionReport, error) {
	registry := r.newRegistry(cfg, r.logger)
	defer func() {
		if err := registry.Close(); err != nil {
			r.logger.Warn("failed to close provider connections", "error", err)
		}
	}()

	r.mu.Lock()
	board, collector := r.board, r.collector
	r.mu.Unlock()

	params := workflows.Params{
		Config:      cfg,
		Providers:   registry,
		Logger:      r.logger,
		StepLoggers: logging.Capturing(r.logger, collector),
		Status:      board,
		Observer:    r.observer,
		Sleeper:     r.sleeper,
		Now:         r.now,
	}
	wfs, err := workflows.New(ctx, params, chains...)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflows: %w", err)
	}
	group := workflow.Compose(wfs, workflow.WithConcurrency(r.concurrency))

	r.mu.Lock()
	r.group = group
	r.mu.Unlock()

	return group.Execute(ctx)
}

// finish transitions from running to idle and records the result.
func (r *Runner) finish(reports []*orchestrator.ExecutionReport, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer close(r.done)

	var completed []*orchestrator.ExecutionReport
	for _, rep := range reports {
		if rep != nil {
			completed = append(completed, rep)
		}
	}

	end := r.now()
	st := &r.runStatus
	st.State = RunStateIdle
	st.EndedAt = &end
	st.LeftBehind = 0
	for _, rep := range completed {
		st.LeftBehind += len(rep.LeftBehind())
	}
	switch {
	case err != nil && len(completed) == 0:
		st.Result = ResultError
	case err == nil && workflow.Succeeded(reports):
		st.Result = ResultSuccess
	default:
		st.Result = ResultPartialFailure
	}
	if err != nil {
		st.Error = err.Error()
	}
	st.Steps = r.buildSteps(completed)

	duration := end.Sub(*st.StartedAt)
	if st.Result == ResultSuccess {
		r.logger.Info("run completed", "id", st.ID, "duration", duration)
	} else {
		r.logger.Error("run did not succeed", "id", st.ID, "result", st.Result,
			"left_behind", st.LeftBehind, "error", err, "duration", duration)
	}

	record := RunRecord{RunSummary: st.RunSummary, Reports: completed, Steps: st.Steps}
	if err := r.store.Save(record); err != nil {
		r.logger.Error("failed to save run to store", "error", err)
	}
}

// buildSteps combines reports, status messages and captured logs. Callers hold mu.
func (r *Runner) buildSteps(reports []*orchestrator.ExecutionReport) []StepExecution {
	var out []StepExecution
	for _, rep := range reports {
		if rep == nil {
			continue
		}
		for _, s := range rep.Steps {
			key := workflows.StepKey(rep.Chain, s.Step)
			exec := StepExecution{
				Chain:      rep.Chain,
				Step:       s.Step,
				Kind:       s.Kind.String(),
				Outcome:    s.Outcome.String(),
				Retries:    s.Retries,
				ExternalID: s.ExternalID,
				Error:      s.Error,
			}
			if r.board != nil {
				exec.Status = r.board.Get(key)
			}
			if r.collector != nil {
				exec.Logs = r.collector.Entries(key)
			}
			out = append(out, exec)
		}
	}
	return out
}
