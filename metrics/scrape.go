package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScrapeRegistry implements Registry for scrape-based metrics collection.
// Metrics are registered with a Prometheus registry and exposed via HTTP.
type ScrapeRegistry struct {
	prom *prometheus.Registry
}

// NewScrapeRegistry creates a ScrapeRegistry with the Go and process collectors registered.
func NewScrapeRegistry() (*ScrapeRegistry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("registering go collector: %w", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("registering process collector: %w", err)
	}
	return &ScrapeRegistry{prom: reg}, nil
}

// Handler returns an http.Handler for the /metrics endpoint.
func (r *ScrapeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *ScrapeRegistry) Gatherer() prometheus.Gatherer {
	return r.prom
}

// NewGauge creates and registers a new Gauge.
func (r *ScrapeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	g := prometheus.NewGauge(opts)
	if err := r.register(opts.Name, g); err != nil {
		return nil, err
	}
	return g, nil
}

// NewGaugeVec creates and registers a new GaugeVec.
func (r *ScrapeRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	g := prometheus.NewGaugeVec(opts, labels)
	if err := r.register(opts.Name, g); err != nil {
		return nil, err
	}
	return gaugeVec{g}, nil
}

// NewCounter creates and registers a new Counter.
func (r *ScrapeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	c := prometheus.NewCounter(opts)
	if err := r.register(opts.Name, c); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCounterVec creates and registers a new CounterVec.
func (r *ScrapeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	c := prometheus.NewCounterVec(opts, labels)
	if err := r.register(opts.Name, c); err != nil {
		return nil, err
	}
	return counterVec{c}, nil
}

// NewHistogramVec creates and registers a new HistogramVec.
func (r *ScrapeRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) (HistogramVec, error) {
	h := prometheus.NewHistogramVec(opts, labels)
	if err := r.register(opts.Name, h); err != nil {
		return nil, err
	}
	return histogramVec{h}, nil
}

func (r *ScrapeRegistry) register(name string, c prometheus.Collector) error {
	if err := r.prom.Register(c); err != nil {
		return fmt.Errorf("registering %q: %w", name, err)
	}
	return nil
}

// The prometheus vec types return prometheus interfaces from With; these adapters
// narrow them to ours.

type gaugeVec struct{ v *prometheus.GaugeVec }

func (g gaugeVec) With(l prometheus.Labels) Gauge { return g.v.With(l) }

type counterVec struct{ v *prometheus.CounterVec }

func (c counterVec) With(l prometheus.Labels) Counter { return c.v.With(l) }

type histogramVec struct{ v *prometheus.HistogramVec }

func (h histogramVec) With(l prometheus.Labels) Histogram { return h.v.With(l) }
