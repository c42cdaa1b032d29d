// Package metrics records lifecycle run metrics in a Prometheus-compatible form.
//
// The package supports two modes of operation:
//   - Scrape mode (server): metrics are registered with a Prometheus registry and exposed on /metrics
//   - Push mode (CLI): metrics are sent to a VictoriaMetrics/Prometheus remote write endpoint
//
// LifecycleObserver turns orchestrator events into metrics in either mode.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge is a metric that represents a single numerical value that can go up and down.
type Gauge interface {
	// Set sets the Gauge to the given value.
	Set(float64)
}

// Counter is a metric that represents a single monotonically increasing counter.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()
	// Add adds the given value to the counter. It panics if the value is negative.
	Add(float64)
}

// Histogram samples observations such as step durations.
type Histogram interface {
	// Observe adds a single observation.
	Observe(float64)
}

// GaugeVec is a Gauge with labels.
type GaugeVec interface {
	// With returns the Gauge for the given Labels.
	With(prometheus.Labels) Gauge
}

// CounterVec is a Counter with labels.
type CounterVec interface {
	// With returns the Counter for the given Labels.
	With(prometheus.Labels) Counter
}

// HistogramVec is a Histogram with labels.
type HistogramVec interface {
	// With returns the Histogram for the given Labels.
	With(prometheus.Labels) Histogram
}

// Registry creates and registers metrics.
// Implementations handle the differences between push and scrape modes.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
	NewHistogramVec(opts prometheus.HistogramOpts, labels []string) (HistogramVec, error)
}
