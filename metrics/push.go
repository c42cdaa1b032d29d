package metrics

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:8428").
	URL string
	// Prefix is prepended to every metric name, followed by an underscore.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// PushRegistry implements Registry for a short-lived process such as the CLI.
// Values are held in memory and sent in a single remote write request by Flush.
type PushRegistry struct {
	writer *remoteWriter

	mu     sync.Mutex
	series map[string]*Metric
	order  []string
}

// NewPushRegistry creates a PushRegistry that writes to cfg.URL.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	return &PushRegistry{
		writer: newRemoteWriter(cfg.URL, cfg.Prefix, cfg.Timeout, map[string]string{
			"job":      cfg.Job,
			"instance": cfg.Instance,
		}),
		series: make(map[string]*Metric),
	}
}

// Flush sends the current value of every series. Series are kept, so a later
// Flush resends them with fresh timestamps.
func (r *PushRegistry) Flush(ctx context.Context) error {
	return r.writer.write(ctx, r.Snapshot())
}

// Snapshot returns the current value of every series in creation order.
func (r *PushRegistry) Snapshot() []Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Metric, 0, len(r.order))
	for _, key := range r.order {
		m := *r.series[key]
		m.Labels = maps.Clone(m.Labels)
		out = append(out, m)
	}
	return out
}

func (r *PushRegistry) update(name string, labels prometheus.Labels, f func(old float64) float64) {
	key := seriesKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.series[key]
	if !ok {
		m = &Metric{Name: name, Labels: maps.Clone(labels)}
		r.series[key] = m
		r.order = append(r.order, key)
	}
	m.Value = f(m.Value)
	m.Timestamp = r.writer.now()
}

// NewGauge creates a push-mode Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return pushGauge{r: r, name: opts.Name}, nil
}

// NewGaugeVec creates a push-mode GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, _ []string) (GaugeVec, error) {
	return pushGaugeVec{r: r, name: opts.Name}, nil
}

// NewCounter creates a push-mode Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return pushCounter{r: r, name: opts.Name}, nil
}

// NewCounterVec creates a push-mode CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, _ []string) (CounterVec, error) {
	return pushCounterVec{r: r, name: opts.Name}, nil
}

// NewHistogramVec creates a push-mode HistogramVec. Remote write has no native
// histogram here; observations are sent as <name>_sum and <name>_count.
func (r *PushRegistry) NewHistogramVec(opts prometheus.HistogramOpts, _ []string) (HistogramVec, error) {
	return pushHistogramVec{r: r, name: opts.Name}, nil
}

type pushGauge struct {
	r      *PushRegistry
	name   string
	labels prometheus.Labels
}

func (g pushGauge) Set(v float64) {
	g.r.update(g.name, g.labels, func(float64) float64 { return v })
}

type pushGaugeVec struct {
	r    *PushRegistry
	name string
}

func (g pushGaugeVec) With(l prometheus.Labels) Gauge {
	return pushGauge{r: g.r, name: g.name, labels: l}
}

type pushCounter struct {
	r      *PushRegistry
	name   string
	labels prometheus.Labels
}

func (c pushCounter) Inc() { c.Add(1) }

func (c pushCounter) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	c.r.update(c.name, c.labels, func(old float64) float64 { return old + v })
}

type pushCounterVec struct {
	r    *PushRegistry
	name string
}

func (c pushCounterVec) With(l prometheus.Labels) Counter {
	return pushCounter{r: c.r, name: c.name, labels: l}
}

type pushHistogram struct {
	r      *PushRegistry
	name   string
	labels prometheus.Labels
}

func (h pushHistogram) Observe(v float64) {
	h.r.update(h.name+"_sum", h.labels, func(old float64) float64 { return old + v })
	h.r.update(h.name+"_count", h.labels, func(old float64) float64 { return old + 1 })
}

type pushHistogramVec struct {
	r    *PushRegistry
	name string
}

func (h pushHistogramVec) With(l prometheus.Labels) Histogram {
	return pushHistogram{r: h.r, name: h.name, labels: l}
}

// seriesKey identifies a series independent of label map order.
func seriesKey(name string, labels prometheus.Labels) string {
	var b strings.Builder
	b.WriteString(name)
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		b.WriteString("|" + k + "=" + labels[k])
	}
	return b.String()
}
