package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StepExecutor runs one provisioning or teardown step against its capability,
// retrying transient consistency errors with a bounded wait.
type StepExecutor struct {
	loggerFor func(step string) *slog.Logger
	sleep     Sleeper
	now       func() time.Time
}

// ExecutorOption configures a StepExecutor.
type ExecutorOption func(*StepExecutor)

// WithExecutorLogger sets the logger used for every step.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *StepExecutor) {
		base := logger.With("component", "step_executor")
		e.loggerFor = func(step string) *slog.Logger { return base.With("step", step) }
	}
}

// WithExecutorLoggerFactory sets a per-step logger factory.
func WithExecutorLoggerFactory(f func(step string) *slog.Logger) ExecutorOption {
	return func(e *StepExecutor) {
		e.loggerFor = f
	}
}

// WithExecutorSleeper replaces the wait between retries. Tests use this to avoid sleeping.
func WithExecutorSleeper(s Sleeper) ExecutorOption {
	return func(e *StepExecutor) {
		e.sleep = s
	}
}

// WithExecutorClock sets the clock used for CreatedAt timestamps.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *StepExecutor) {
		e.now = now
	}
}

// NewStepExecutor creates a StepExecutor.
func NewStepExecutor(opts ...ExecutorOption) *StepExecutor {
	e := &StepExecutor{
		sleep: SleepContext,
		now:   time.Now,
	}
	WithExecutorLogger(slog.Default())(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunProvision creates the step's resource and returns its handle together with the
// number of retries that were needed.
//
// Transient errors are retried after step.EventualConsistencyDelay, at most
// step.MaxRetries times. The (MaxRetries+1)-th transient error, any permanent error,
// or a cancelled wait yields a *ProvisioningFailedError and a Failed handle.
func (e *StepExecutor) RunProvision(ctx context.Context, step Step, deps map[string]ResourceHandle) (ResourceHandle, int, error) {
	logger := e.loggerFor(step.Name)
	handle := NewHandle(step.Name, step.Kind)
	if err := handle.Transition(StateProvisioning); err != nil {
		return handle, 0, err
	}

	req := CreateRequest{
		Step:         step.Name,
		Kind:         step.Kind,
		Params:       step.Params,
		Dependencies: deps,
	}
	maxRetries := max(step.MaxRetries, 0)

	fail := func(attempts int, retryable bool, err error) (ResourceHandle, int, error) {
		_ = handle.Transition(StateFailed)
		perr := &ProvisioningFailedError{Step: step.Name, Attempts: attempts, Retryable: retryable, Err: err}
		logger.Error("provisioning failed", "attempts", attempts, "error", err)
		return handle, attempts - 1, perr
	}

	for attempt := 1; ; attempt++ {
		logger.Debug("creating resource", "attempt", attempt, "kind", step.Kind.String())
		res, err := step.Capability.Create(ctx, req)
		if err == nil {
			if aerr := handle.Activate(res.ExternalID, res.Attributes, e.now()); aerr != nil {
				return fail(attempt, false, aerr)
			}
			logger.Info("resource active", "external_id", res.ExternalID, "retries", attempt-1)
			return handle, attempt - 1, nil
		}

		if !IsTransient(err) {
			return fail(attempt, false, err)
		}
		if attempt > maxRetries {
			return fail(attempt, true, err)
		}

		logger.Warn("resource not yet consistent, retrying",
			"attempt", attempt,
			"max_retries", maxRetries,
			"delay", step.EventualConsistencyDelay,
			"error", err,
		)
		if serr := e.sleep(ctx, step.EventualConsistencyDelay); serr != nil {
			return fail(attempt, true, fmt.Errorf("%w; retry wait interrupted: %w", err, serr))
		}
	}
}

// RunTeardown deletes the resource behind an Active handle.
//
// ErrResourceAbsent counts as success. Transient errors are retried like provisioning.
// Any other failure is recorded in the result; RunTeardown never returns an error so
// one stuck resource cannot stop the rest of the cleanup pass.
func (e *StepExecutor) RunTeardown(ctx context.Context, step Step, handle ResourceHandle) TeardownResult {
	logger := e.loggerFor(step.Name)
	result := TeardownResult{
		Step:       handle.Step,
		Kind:       handle.Kind,
		ExternalID: handle.ExternalID,
	}

	if err := handle.Transition(StateTearingDown); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		result.Error = err.Error()
		return result
	}

	maxRetries := max(step.MaxRetries, 0)
	for attempt := 1; ; attempt++ {
		err := step.Capability.Delete(ctx, handle)
		switch {
		case err == nil:
			_ = handle.Transition(StateDeleted)
			result.Outcome = OutcomeSucceeded
			logger.Info("resource deleted", "external_id", result.ExternalID)
			return result
		case errors.Is(err, ErrResourceAbsent):
			_ = handle.Transition(StateDeleted)
			result.Outcome = OutcomeSucceeded
			result.Absent = true
			logger.Info("resource already absent", "external_id", result.ExternalID)
			return result
		case IsTransient(err) && attempt <= maxRetries:
			result.Retries++
			logger.Warn("delete not yet possible, retrying", "attempt", attempt, "error", err)
			serr := e.sleep(ctx, step.EventualConsistencyDelay)
			if serr == nil {
				continue
			}
			err = fmt.Errorf("%w; retry wait interrupted: %w", err, serr)
		}

		_ = handle.Transition(StateFailed)
		terr := &TeardownFailedError{Step: step.Name, ExternalID: result.ExternalID, Attempts: attempt, Err: err}
		result.Outcome = OutcomeFailed
		result.Err = terr
		result.Error = terr.Error()
		logger.Error("teardown failed", "external_id", result.ExternalID, "attempts", attempt, "error", err)
		return result
	}
}
