package logging

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureHandler_CapturesAndPassesThrough(t *testing.T) {
	collector := NewCollector()
	var buf bytes.Buffer
	logger := slog.New(NewCaptureHandler(slog.NewJSONHandler(&buf, nil), collector, "role"))

	logger.Info("resource active", "external_id", "lifecycle-role-1", "retries", 2)

	entries := collector.Entries("role")
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "resource active", entries[0].Message)
	assert.Equal(t, "lifecycle-role-1", entries[0].Attributes["external_id"])
	assert.Equal(t, int64(2), entries[0].Attributes["retries"], "integers are captured as int64")

	assert.Contains(t, buf.String(), "resource active", "the record reaches the wrapped handler")
}

func TestCaptureHandler_CapturesBelowUnderlyingLevel(t *testing.T) {
	collector := NewCollector()
	var buf bytes.Buffer
	underlying := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(NewCaptureHandler(underlying, collector, "unit"))

	logger.Debug("creating resource", "attempt", 1)
	logger.Warn("resource not yet consistent, retrying")

	entries := collector.Entries("unit")
	require.Len(t, entries, 2, "debug records are captured even when not written")
	assert.Equal(t, "debug", entries[0].Level)
	assert.NotContains(t, buf.String(), "creating resource")
	assert.Contains(t, buf.String(), "not yet consistent")
}

func TestCaptureHandler_WithAttrsAndGroup(t *testing.T) {
	collector := NewCollector()
	logger := slog.New(NewCaptureHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), collector, "unit"))

	logger.With("component", "step_executor").
		WithGroup("aws").
		With("region", "us-east-1").
		Info("call", "op", "CreateFunction")

	entries := collector.Entries("unit")
	require.Len(t, entries, 1)
	attrs := entries[0].Attributes
	assert.Equal(t, "step_executor", attrs["component"])
	assert.Equal(t, "us-east-1", attrs["aws.region"])
	assert.Equal(t, "CreateFunction", attrs["aws.op"])
}

func TestResolveValue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   slog.Value
		want any
	}{
		{"string", slog.StringValue("x"), "x"},
		{"int", slog.IntValue(3), int64(3)},
		{"uint", slog.Uint64Value(4), uint64(4)},
		{"float", slog.Float64Value(1.5), 1.5},
		{"bool", slog.BoolValue(true), true},
		{"duration", slog.DurationValue(10 * time.Second), "10s"},
		{"time", slog.TimeValue(now), now},
		{"error", slog.AnyValue(errors.New("boom")), "boom"},
		{"group", slog.GroupValue(slog.String("a", "b")), map[string]any{"a": "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveValue(tt.in))
		})
	}
}

func TestStepLoggers(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	collector := NewCollector()
	loggers := Capturing(base, collector)

	loggers("role").Info("from role")
	loggers("unit").Info("from unit")
	loggers("role").Warn("role again")

	assert.Equal(t, []string{"role", "unit"}, collector.Steps())
	assert.Len(t, collector.Entries("role"), 2)
	assert.Equal(t, "role", collector.Entries("role")[0].Attributes["step"])
	assert.Contains(t, buf.String(), `"step":"unit"`)

	buf.Reset()
	Plain(base)("logs").Info("plain")
	assert.Contains(t, buf.String(), `"step":"logs"`)
}

func TestCollector_Limit(t *testing.T) {
	collector := NewCollector(WithEntryLimit(2))
	for i := 0; i < 5; i++ {
		collector.Add("unit", Entry{Message: fmt.Sprintf("m%d", i)})
	}
	entries := collector.Entries("unit")
	require.Len(t, entries, 2)
	assert.Equal(t, "m0", entries[0].Message)
	assert.Equal(t, 3, collector.Dropped("unit"))

	collector.Reset()
	assert.Empty(t, collector.Steps())
	assert.Empty(t, collector.All())
	assert.Zero(t, collector.Dropped("unit"))
}

func TestCollector_CopiesAreIndependent(t *testing.T) {
	collector := NewCollector()
	collector.Add("unit", Entry{Message: "original"})

	entries := collector.Entries("unit")
	entries[0].Message = "changed"
	all := collector.All()
	all["unit"][0].Message = "changed too"

	assert.Equal(t, "original", collector.Entries("unit")[0].Message)
	assert.Nil(t, collector.Entries("missing"))
}

func TestCollector_Concurrent(t *testing.T) {
	collector := NewCollector()
	loggers := Capturing(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)), collector)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(step string) {
			defer wg.Done()
			l := loggers(step)
			for j := 0; j < 20; j++ {
				l.Info("tick", "j", j)
			}
		}(fmt.Sprintf("step-%d", i))
	}
	wg.Wait()

	assert.Len(t, collector.Steps(), 10)
	for _, step := range collector.Steps() {
		assert.Len(t, collector.Entries(step), 20)
	}
}
