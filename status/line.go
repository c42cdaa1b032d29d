package status

import "log/slog"

// Sink receives status messages. *Board and orchestrator.StatusSink implementations satisfy it.
type Sink interface {
	Set(step, message string)
}

// Line logs status messages for one step and forwards them to a Sink.
type Line struct {
	logger *slog.Logger
	sink   Sink
	step   string
}

// NewLine creates a status line bound to step. sink may be nil, in which case
// messages are only logged.
func NewLine(step string, logger *slog.Logger, sink Sink) *Line {
	return &Line{logger: logger, sink: sink, step: step}
}

// Set logs the message and updates the sink.
func (l *Line) Set(message string) {
	if l == nil {
		return
	}
	l.logger.Info(message, "step", l.step)
	if l.sink != nil {
		l.sink.Set(l.step, message)
	}
}

// CaptureError runs f and, if it fails, sets the status to the error prefixed with ❌.
func CaptureError(line *Line, f func() error) error {
	err := f()
	if err != nil && line != nil {
		line.Set("❌ " + err.Error())
	}
	return err
}
