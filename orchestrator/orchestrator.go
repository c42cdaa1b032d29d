package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/brightkeycloud-chad/lifecycle/status"
)

const tracerName = "github.com/brightkeycloud-chad/lifecycle/orchestrator"

// Phase is the orchestrator's position in its state machine.
type Phase int

const (
	// PhaseIdle is the state before Run is called.
	PhaseIdle Phase = iota
	// PhaseProvisioning runs the chain in forward order.
	PhaseProvisioning
	// PhaseValidating exercises the deployed unit.
	PhaseValidating
	// PhaseTearingDown deletes every Active resource in reverse order.
	PhaseTearingDown
	// PhaseDone means the report is final.
	PhaseDone
)

// String returns a human-readable representation of the Phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseProvisioning:
		return "provisioning"
	case PhaseValidating:
		return "validating"
	case PhaseTearingDown:
		return "tearing_down"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Orchestrator provisions a chain, validates the deployed unit and always tears
// down whatever it created. Each Orchestrator runs once.
type Orchestrator struct {
	chain         *Chain
	name          string
	runID         string
	logger        *slog.Logger
	loggerFactory func(step string) *slog.Logger
	status        StatusSink
	lines         map[string]*status.Line
	observer      Observer
	tracer        trace.Tracer
	now           func() time.Time

	executorOpts   []ExecutorOption
	validationOpts []ValidationOption
	invoker        Invoker
	cases          []ValidationCase
	target         string

	mu     sync.RWMutex
	phase  Phase
	report *ExecutionReport
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger for the orchestrator
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger.With("component", "orchestrator")
	}
}

// WithLoggerFactory sets a per-step logger factory. The runner uses this to capture
// each step's log records.
func WithLoggerFactory(f func(step string) *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.loggerFactory = f
	}
}

// WithName names the chain in the report and in traces.
func WithName(name string) Option {
	return func(o *Orchestrator) {
		o.name = name
	}
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// WithStatusSink receives a one-line status per step as the run progresses.
func WithStatusSink(s StatusSink) Option {
	return func(o *Orchestrator) {
		o.status = s
	}
}

// WithObserver receives lifecycle events, typically for metrics.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// WithTracer sets the tracer used for run and step spans. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithSleeper replaces the retry wait of the step executor.
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) {
		o.executorOpts = append(o.executorOpts, WithExecutorSleeper(s))
	}
}

// WithValidation sets the invoker and the cases run once every step is Active.
func WithValidation(invoker Invoker, cases ...ValidationCase) Option {
	return func(o *Orchestrator) {
		o.invoker = invoker
		o.cases = cases
	}
}

// WithValidationTarget names the step whose resource is invoked during validation.
// Defaults to the last DeployedUnit step in provisioning order.
func WithValidationTarget(step string) Option {
	return func(o *Orchestrator) {
		o.target = step
	}
}

// WithInvocationTimeout bounds each validation invocation.
func WithInvocationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.validationOpts = append(o.validationOpts, WithInvokeTimeout(d))
	}
}

// New creates an orchestrator for the chain.
// Returns a *MissingCapabilityError if any step has no capability.
func New(chain *Chain, opts ...Option) (*Orchestrator, error) {
	if chain == nil {
		return nil, errors.New("chain is required")
	}
	for _, s := range chain.steps {
		if s.Capability == nil {
			return nil, &MissingCapabilityError{Step: s.Name}
		}
	}

	o := &Orchestrator{
		chain:    chain,
		logger:   slog.Default().With("component", "orchestrator"),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.loggerFactory == nil {
		base := o.logger
		o.loggerFactory = func(step string) *slog.Logger { return base.With("step", step) }
	}
	if o.target != "" {
		if _, ok := chain.Step(o.target); !ok {
			return nil, fmt.Errorf("validation target %q is not a step in the chain", o.target)
		}
	}

	o.report = &ExecutionReport{RunID: o.runID, Chain: o.name}
	o.lines = make(map[string]*status.Line, chain.Len())
	for _, s := range chain.ForwardOrder() {
		o.lines[s.Name] = status.NewLine(s.Name, o.logger, o.status)
		o.report.Steps = append(o.report.Steps, StepResult{Step: s.Name, Kind: s.Kind, Outcome: OutcomePending})
	}
	return o, nil
}

// Name returns the chain name given with WithName.
func (o *Orchestrator) Name() string {
	return o.name
}

// RunID returns the ID the report will carry.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Phase returns the current state machine phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phase
}

// Snapshot returns a copy of the report as it stands. It is safe to call while Run
// is in progress.
func (o *Orchestrator) Snapshot() *ExecutionReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.report.clone()
}

// Run drives the state machine to completion and returns the final report.
//
// Provisioning stops at the first failed step or when ctx is cancelled (checked
// between steps); the remaining steps are reported as Skipped and validation is
// skipped. Teardown always runs for every resource that became Active, in reverse
// provisioning order, on a context that ignores ctx's cancellation.
//
// The only error returned is ErrAlreadyRun; run outcomes are in the report.
func (o *Orchestrator) Run(ctx context.Context) (*ExecutionReport, error) {
	o.mu.Lock()
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	o.phase = PhaseProvisioning
	o.report.StartedAt = o.now()
	o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "lifecycle.run", trace.WithAttributes(
		attribute.String("lifecycle.chain", o.name),
		attribute.String("lifecycle.run_id", o.runID),
		attribute.Int("lifecycle.steps", o.chain.Len()),
	))
	defer span.End()

	o.logger.Info("starting run", "chain", o.name, "run_id", o.runID, "steps", o.chain.Len())

	executor := NewStepExecutor(append([]ExecutorOption{
		WithExecutorLoggerFactory(o.loggerFactory),
		WithExecutorClock(o.now),
	}, o.executorOpts...)...)

	handles, provisioned := o.provision(ctx, executor)

	if provisioned && ctx.Err() == nil {
		o.validate(ctx, handles)
	} else if provisioned {
		o.markCancelled()
	}

	// Teardown must finish even if the caller gave up on the run.
	o.teardown(context.WithoutCancel(ctx), executor, handles)

	o.mu.Lock()
	o.report.EndedAt = o.now()
	o.report.Result = classify(o.report)
	o.phase = PhaseDone
	final := o.report.clone()
	o.mu.Unlock()

	summary := final.Summary()
	o.logger.Info("run finished",
		"chain", o.name,
		"run_id", o.runID,
		"result", final.Result.String(),
		"cancelled", final.Cancelled,
		"steps_failed", summary.StepsFailed,
		"validations_failed", summary.ValidationsFailed,
		"teardown_failed", summary.TeardownFailed,
		"duration", final.EndedAt.Sub(final.StartedAt),
	)
	span.SetAttributes(attribute.String("lifecycle.result", final.Result.String()))
	if !final.Succeeded() {
		span.SetStatus(codes.Error, final.Result.String())
	}
	o.observer.RunFinished(final)
	return final, nil
}

// provision runs the chain forward. It returns the Active handles by step name and
// whether every step succeeded.
func (o *Orchestrator) provision(ctx context.Context, executor *StepExecutor) (map[string]ResourceHandle, bool) {
	handles := make(map[string]ResourceHandle, o.chain.Len())
	order := o.chain.ForwardOrder()

	for i, step := range order {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("run cancelled, skipping remaining steps", "next_step", step.Name, "error", err)
			o.markCancelled()
			o.skipFrom(i, "cancelled: "+err.Error())
			return handles, false
		}

		deps := make(map[string]ResourceHandle, len(step.DependsOn))
		for _, d := range step.DependsOn {
			deps[d] = handles[d]
		}

		o.setStatus(step.Name, "provisioning "+step.Kind.String())
		stepCtx, span := o.tracer.Start(ctx, "lifecycle.provision", trace.WithAttributes(
			attribute.String("lifecycle.step", step.Name),
			attribute.String("lifecycle.kind", step.Kind.String()),
		))
		start := o.now()
		var (
			handle  ResourceHandle
			retries int
		)
		err := status.CaptureError(o.lines[step.Name], func() error {
			var err error
			handle, retries, err = executor.RunProvision(stepCtx, step, deps)
			return err
		})
		result := StepResult{
			Step:     step.Name,
			Kind:     step.Kind,
			Retries:  retries,
			Duration: o.now().Sub(start),
		}
		span.SetAttributes(attribute.Int("lifecycle.retries", retries))

		if err != nil {
			result.Outcome = OutcomeFailed
			result.Err = err
			result.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, "provisioning failed")
			span.End()
			o.recordStep(i, result)
			o.skipFrom(i+1, "dependency chain halted by "+step.Name)
			return handles, false
		}
		span.End()

		result.Outcome = OutcomeSucceeded
		result.ExternalID = handle.ExternalID
		handles[step.Name] = handle
		o.setStatus(step.Name, "active: "+handle.ExternalID)
		o.recordStep(i, result)
	}
	return handles, true
}

func (o *Orchestrator) validate(ctx context.Context, handles map[string]ResourceHandle) {
	o.setPhase(PhaseValidating)

	if o.invoker != nil && len(o.cases) > 0 {
		unit, ok := o.validationUnit(handles)
		var results []ValidationResult
		if !ok {
			results = make([]ValidationResult, 0, len(o.cases))
			for i, c := range o.cases {
				name := c.Name
				if name == "" {
					name = fmt.Sprintf("case-%d", i+1)
				}
				results = append(results, ValidationResult{Case: name, Input: c.Input, Error: "no deployed unit to validate"})
			}
		} else {
			vctx, span := o.tracer.Start(ctx, "lifecycle.validate", trace.WithAttributes(
				attribute.String("lifecycle.step", unit.Step),
				attribute.Int("lifecycle.cases", len(o.cases)),
			))
			runner := NewValidationRunner(append([]ValidationOption{WithValidationLogger(o.loggerFactory(unit.Step))}, o.validationOpts...)...)
			o.setStatus(unit.Step, fmt.Sprintf("validating %d case(s)", len(o.cases)))
			results = runner.Run(vctx, unit, o.cases, o.invoker)
			span.End()
		}

		o.mu.Lock()
		o.report.Validations = append(o.report.Validations, results...)
		o.mu.Unlock()
		for _, r := range results {
			o.observer.ValidationFinished(r)
		}
	}

	o.inspect(ctx, handles)
}

// inspect asks every capability that can report operational state about its resource.
// Failures are recorded and do not affect the run result.
func (o *Orchestrator) inspect(ctx context.Context, handles map[string]ResourceHandle) {
	for _, step := range o.chain.ForwardOrder() {
		insp, ok := step.Capability.(Inspector)
		if !ok {
			continue
		}
		handle, ok := handles[step.Name]
		if !ok {
			continue
		}
		state, err := insp.Inspect(ctx, handle)
		res := InspectionResult{Step: step.Name, State: state}
		if err != nil {
			res.Error = err.Error()
			o.loggerFactory(step.Name).Warn("inspection failed", "error", err)
		}
		o.mu.Lock()
		o.report.Inspections = append(o.report.Inspections, res)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) teardown(ctx context.Context, executor *StepExecutor, handles map[string]ResourceHandle) {
	o.setPhase(PhaseTearingDown)
	for _, step := range o.chain.ReverseOrder() {
		handle, ok := handles[step.Name]
		if !ok || !handle.IsActive() {
			continue
		}

		o.setStatus(step.Name, "tearing down")
		tctx, span := o.tracer.Start(ctx, "lifecycle.teardown", trace.WithAttributes(
			attribute.String("lifecycle.step", step.Name),
			attribute.String("lifecycle.external_id", handle.ExternalID),
		))
		var result TeardownResult
		_ = status.CaptureError(o.lines[step.Name], func() error {
			result = executor.RunTeardown(tctx, step, handle)
			return result.Err
		})
		if result.Outcome == OutcomeFailed {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, "teardown failed")
		} else {
			o.setStatus(step.Name, "deleted")
		}
		span.End()

		o.mu.Lock()
		o.report.Teardown = append(o.report.Teardown, result)
		o.mu.Unlock()
		o.observer.TeardownFinished(result)
	}
}

func (o *Orchestrator) validationUnit(handles map[string]ResourceHandle) (ResourceHandle, bool) {
	if o.target != "" {
		h, ok := handles[o.target]
		return h, ok
	}
	order := o.chain.ForwardOrder()
	for i := len(order) - 1; i >= 0; i-- {
		if order[i].Kind == KindDeployedUnit {
			h, ok := handles[order[i].Name]
			return h, ok
		}
	}
	return ResourceHandle{}, false
}

func (o *Orchestrator) recordStep(i int, result StepResult) {
	o.mu.Lock()
	o.report.Steps[i] = result
	o.mu.Unlock()
	o.observer.StepFinished(result)
}

func (o *Orchestrator) skipFrom(i int, reason string) {
	o.mu.Lock()
	skipped := make([]StepResult, 0, len(o.report.Steps)-i)
	for j := i; j < len(o.report.Steps); j++ {
		o.report.Steps[j].Outcome = OutcomeSkipped
		o.report.Steps[j].Error = reason
		skipped = append(skipped, o.report.Steps[j])
	}
	o.mu.Unlock()
	for _, s := range skipped {
		o.setStatus(s.Step, "skipped")
		o.observer.StepFinished(s)
	}
}

func (o *Orchestrator) markCancelled() {
	o.mu.Lock()
	o.report.Cancelled = true
	o.mu.Unlock()
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.logger.Debug("phase changed", "phase", p.String())
}

// setStatus reports through the step's status line, which logs the message and
// forwards it to the status sink.
func (o *Orchestrator) setStatus(step, message string) {
	o.lines[step].Set(message)
}

func classify(r *ExecutionReport) RunResult {
	if r.Cancelled {
		return ResultPartialFailure
	}
	for _, s := range r.Steps {
		if s.Outcome != OutcomeSucceeded {
			return ResultPartialFailure
		}
	}
	for _, v := range r.Validations {
		if !v.Passed {
			return ResultPartialFailure
		}
	}
	for _, t := range r.Teardown {
		if t.Outcome != OutcomeSucceeded {
			return ResultPartialFailure
		}
	}
	return ResultSuccess
}
