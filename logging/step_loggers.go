package logging

import "log/slog"

// StepLoggers hands out per-step loggers. The orchestrator calls it once per step
// through orchestrator.WithLoggerFactory.
type StepLoggers func(step string) *slog.Logger

// Plain returns loggers that only add a "step" attribute.
func Plain(base *slog.Logger) StepLoggers {
	return func(step string) *slog.Logger {
		return base.With("step", step)
	}
}

// Capturing returns loggers whose records are also stored in collector.
func Capturing(base *slog.Logger, collector *Collector) StepLoggers {
	return func(step string) *slog.Logger {
		return slog.New(NewCaptureHandler(base.Handler(), collector, step)).With("step", step)
	}
}
