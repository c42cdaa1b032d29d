package metrics

import (
	"fmt"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleObserver records orchestrator events as metrics. It implements
// orchestrator.Observer and is created once per process; Bind labels it with a chain.
type LifecycleObserver struct {
	steps        CounterVec
	stepRetries  CounterVec
	stepDuration HistogramVec
	validations  CounterVec
	teardowns    CounterVec
	runs         CounterVec
	lastRun      GaugeVec
	lastResult   GaugeVec
	runDuration  GaugeVec
	leftBehind   GaugeVec
	chain        string
}

// NewLifecycleObserver registers the lifecycle metrics with reg.
func NewLifecycleObserver(reg Registry) (*LifecycleObserver, error) {
	o := &LifecycleObserver{}
	var err error
	wrap := func(name string, e error) error {
		return fmt.Errorf("creating %s metric: %w", name, e)
	}

	if o.steps, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_steps_total",
		Help: "Provisioning steps by outcome",
	}, []string{"chain", "kind", "outcome"}); err != nil {
		return nil, wrap("steps", err)
	}
	if o.stepRetries, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_step_retries_total",
		Help: "Retries after transient consistency errors",
	}, []string{"chain", "kind"}); err != nil {
		return nil, wrap("step retries", err)
	}
	if o.stepDuration, err = reg.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lifecycle_step_duration_seconds",
		Help:    "Time to provision a step, including retries",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"chain", "kind"}); err != nil {
		return nil, wrap("step duration", err)
	}
	if o.validations, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_validations_total",
		Help: "Validation cases by result",
	}, []string{"chain", "result"}); err != nil {
		return nil, wrap("validations", err)
	}
	if o.teardowns, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_teardown_total",
		Help: "Teardown attempts by outcome",
	}, []string{"chain", "kind", "outcome"}); err != nil {
		return nil, wrap("teardown", err)
	}
	if o.runs, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_runs_total",
		Help: "Completed runs by result",
	}, []string{"chain", "result"}); err != nil {
		return nil, wrap("runs", err)
	}
	if o.lastRun, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lifecycle_last_run_timestamp_seconds",
		Help: "Unix time the last run of a chain finished",
	}, []string{"chain"}); err != nil {
		return nil, wrap("last run", err)
	}
	if o.lastResult, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lifecycle_last_run_success",
		Help: "1 if the last run of a chain succeeded, 0 otherwise",
	}, []string{"chain"}); err != nil {
		return nil, wrap("last result", err)
	}
	if o.runDuration, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lifecycle_last_run_duration_seconds",
		Help: "Wall time of the last run of a chain",
	}, []string{"chain"}); err != nil {
		return nil, wrap("run duration", err)
	}
	if o.leftBehind, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lifecycle_resources_left_behind",
		Help: "Resources whose teardown failed in the last run of a chain",
	}, []string{"chain"}); err != nil {
		return nil, wrap("left behind", err)
	}
	return o, nil
}

// Bind returns an observer that labels events with chain. The metrics are shared.
func (o *LifecycleObserver) Bind(chain string) *LifecycleObserver {
	c := *o
	c.chain = chain
	return &c
}

// StepFinished implements orchestrator.Observer.
func (o *LifecycleObserver) StepFinished(s orchestrator.StepResult) {
	o.steps.With(prometheus.Labels{"chain": o.chain, "kind": s.Kind.String(), "outcome": s.Outcome.String()}).Inc()
	if s.Retries > 0 {
		o.stepRetries.With(prometheus.Labels{"chain": o.chain, "kind": s.Kind.String()}).Add(float64(s.Retries))
	}
	if s.Outcome != orchestrator.OutcomeSkipped {
		o.stepDuration.With(prometheus.Labels{"chain": o.chain, "kind": s.Kind.String()}).Observe(s.Duration.Seconds())
	}
}

// ValidationFinished implements orchestrator.Observer.
func (o *LifecycleObserver) ValidationFinished(v orchestrator.ValidationResult) {
	result := "passed"
	if !v.Passed {
		result = "failed"
	}
	o.validations.With(prometheus.Labels{"chain": o.chain, "result": result}).Inc()
}

// TeardownFinished implements orchestrator.Observer.
func (o *LifecycleObserver) TeardownFinished(t orchestrator.TeardownResult) {
	o.teardowns.With(prometheus.Labels{"chain": o.chain, "kind": t.Kind.String(), "outcome": t.Outcome.String()}).Inc()
}

// RunFinished implements orchestrator.Observer.
func (o *LifecycleObserver) RunFinished(r *orchestrator.ExecutionReport) {
	labels := prometheus.Labels{"chain": o.chain}
	o.runs.With(prometheus.Labels{"chain": o.chain, "result": r.Result.String()}).Inc()
	o.lastRun.With(labels).Set(float64(r.EndedAt.Unix()))
	o.runDuration.With(labels).Set(r.EndedAt.Sub(r.StartedAt).Seconds())
	o.leftBehind.With(labels).Set(float64(len(r.LeftBehind())))
	if r.Succeeded() {
		o.lastResult.With(labels).Set(1)
	} else {
		o.lastResult.With(labels).Set(0)
	}
}
