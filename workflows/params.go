// Package workflows builds runnable workflows from the chains in the configuration.
// Unlike the generic workflow package (which handles running and grouping),
// this package knows about configuration, providers and metrics.
package workflows

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/brightkeycloud-chad/lifecycle/config"
	"github.com/brightkeycloud-chad/lifecycle/logging"
	"github.com/brightkeycloud-chad/lifecycle/metrics"
	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
	"github.com/brightkeycloud-chad/lifecycle/providers"
)

// Params contains common parameters for workflow construction.
type Params struct {
	// Config is the application configuration.
	Config *config.Config

	// Providers creates the capabilities of each step. Required.
	Providers *providers.Registry

	// Logger is the base logger for the workflow.
	Logger *slog.Logger

	// StepLoggers creates per-step loggers, keyed by StepKey. If nil, logging.Plain(Logger) is used.
	StepLoggers logging.StepLoggers

	// Status receives a status line per step. May be nil.
	Status orchestrator.StatusSink

	// Observer records lifecycle metrics. May be nil if metrics are not needed.
	Observer *metrics.LifecycleObserver

	// Tracer overrides the global tracer provider. May be nil.
	Tracer trace.Tracer

	// Sleeper replaces the retry wait. Tests use it to avoid sleeping.
	Sleeper orchestrator.Sleeper

	// Now replaces time.Now.
	Now func() time.Time
}

// options returns the orchestrator options shared by every chain.
func (p Params) options(chain string) []orchestrator.Option {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := []orchestrator.Option{
		orchestrator.WithName(chain),
		orchestrator.WithLogger(logger.With("chain", chain)),
	}
	stepLoggers := p.StepLoggers
	if stepLoggers == nil {
		stepLoggers = logging.Plain(logger)
	}
	opts = append(opts, orchestrator.WithLoggerFactory(func(step string) *slog.Logger {
		return stepLoggers(StepKey(chain, step))
	}))
	if p.Status != nil {
		opts = append(opts, orchestrator.WithStatusSink(chainSink{chain: chain, next: p.Status}))
	}
	if p.Observer != nil {
		opts = append(opts, orchestrator.WithObserver(p.Observer.Bind(chain)))
	}
	if p.Tracer != nil {
		opts = append(opts, orchestrator.WithTracer(p.Tracer))
	}
	if p.Sleeper != nil {
		opts = append(opts, orchestrator.WithSleeper(p.Sleeper))
	}
	if p.Now != nil {
		opts = append(opts, orchestrator.WithClock(p.Now))
	}
	return opts
}

// StepKey is the key under which a step's logs and status are recorded. Chains
// running side by side may use the same step names.
func StepKey(chain, step string) string {
	return chain + "/" + step
}

type chainSink struct {
	chain string
	next  orchestrator.StatusSink
}

func (s chainSink) Set(step, status string) {
	s.next.Set(StepKey(s.chain, step), status)
}

func (p Params) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
