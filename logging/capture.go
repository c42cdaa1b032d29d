package logging

import (
	"context"
	"log/slog"
	"strings"
)

// CaptureHandler records every log record into a Collector under a step name and
// passes it on to the wrapped handler.
type CaptureHandler struct {
	next      slog.Handler
	collector *Collector
	step      string
	attrs     []slog.Attr
	group     string
}

// NewCaptureHandler wraps next so that records are also stored in collector under step.
func NewCaptureHandler(next slog.Handler, collector *Collector, step string) *CaptureHandler {
	return &CaptureHandler{
		next:      next,
		collector: collector,
		step:      step,
	}
}

// Enabled captures every level. The wrapped handler still applies its own level in Handle.
func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle stores the record and forwards it if the wrapped handler accepts its level.
func (h *CaptureHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := Entry{
		Time:       r.Time,
		Level:      strings.ToLower(r.Level.String()),
		Message:    r.Message,
		Attributes: make(map[string]any, r.NumAttrs()+len(h.attrs)),
	}
	for _, a := range h.attrs {
		entry.Attributes[a.Key] = resolveValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		entry.Attributes[h.group+a.Key] = resolveValue(a.Value)
		return true
	})
	h.collector.Add(h.step, entry)

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs keeps capturing through logger.With chains.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.next = h.next.WithAttrs(attrs)
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.group + a.Key, Value: a.Value})
	}
	return &next
}

// WithGroup keeps capturing through logger.WithGroup chains. Captured keys of
// grouped attributes are prefixed with "group.".
func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.next = h.next.WithGroup(name)
	next.group = h.group + name + "."
	return &next
}

// resolveValue converts a slog.Value into something encoding/json can write.
func resolveValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindGroup:
		attrs := v.Group()
		group := make(map[string]any, len(attrs))
		for _, a := range attrs {
			group[a.Key] = resolveValue(a.Value)
		}
		return group
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	}
}
