package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteWriteServer decodes every remote write request it receives and sends the
// series on the returned channel.
func remoteWriteServer(t *testing.T, status int) (*httptest.Server, <-chan []prompb.TimeSeries) {
	t.Helper()
	received := make(chan []prompb.TimeSeries, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/write", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var writeReq prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(decoded, &writeReq))
		received <- writeReq.Timeseries
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, received
}

func findLabel(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func findSeries(series []prompb.TimeSeries, name string, labels map[string]string) (prompb.TimeSeries, bool) {
	for _, ts := range series {
		if findLabel(ts.Labels, "__name__") != name {
			continue
		}
		match := true
		for k, v := range labels {
			if findLabel(ts.Labels, k) != v {
				match = false
			}
		}
		if match {
			return ts, true
		}
	}
	return prompb.TimeSeries{}, false
}

func receive(t *testing.T, ch <-chan []prompb.TimeSeries) []prompb.TimeSeries {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for metrics to be received")
		return nil
	}
}

// Tests
// ---------------------------------------------------------------------

func TestPushRegistry_Flush(t *testing.T) {
	server, received := remoteWriteServer(t, http.StatusNoContent)

	registry := NewPushRegistry(PushConfig{
		URL:      server.URL,
		Prefix:   "test",
		Job:      "lifecycle",
		Instance: "ci",
	})

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "up"})
	require.NoError(t, err)
	gauge.Set(1)
	gauge.Set(42)

	counters, err := registry.NewCounterVec(prometheus.CounterOpts{Name: "steps_total"}, []string{"outcome"})
	require.NoError(t, err)
	counters.With(prometheus.Labels{"outcome": "succeeded"}).Inc()
	counters.With(prometheus.Labels{"outcome": "succeeded"}).Add(2)
	counters.With(prometheus.Labels{"outcome": "failed"}).Inc()

	hist, err := registry.NewHistogramVec(prometheus.HistogramOpts{Name: "duration_seconds"}, []string{"kind"})
	require.NoError(t, err)
	hist.With(prometheus.Labels{"kind": "role"}).Observe(1.5)
	hist.With(prometheus.Labels{"kind": "role"}).Observe(2.5)

	require.NoError(t, registry.Flush(context.Background()))
	series := receive(t, received)
	require.Len(t, series, 5, "one series per name and label set")

	up, ok := findSeries(series, "test_up", nil)
	require.True(t, ok)
	assert.Equal(t, "lifecycle", findLabel(up.Labels, "job"))
	assert.Equal(t, "ci", findLabel(up.Labels, "instance"))
	require.Len(t, up.Samples, 1)
	assert.Equal(t, 42.0, up.Samples[0].Value, "gauges send their latest value")

	succeeded, ok := findSeries(series, "test_steps_total", map[string]string{"outcome": "succeeded"})
	require.True(t, ok)
	assert.Equal(t, 3.0, succeeded.Samples[0].Value, "counters accumulate")

	sum, ok := findSeries(series, "test_duration_seconds_sum", map[string]string{"kind": "role"})
	require.True(t, ok)
	assert.Equal(t, 4.0, sum.Samples[0].Value)
	count, ok := findSeries(series, "test_duration_seconds_count", map[string]string{"kind": "role"})
	require.True(t, ok)
	assert.Equal(t, 2.0, count.Samples[0].Value)

	for i := 1; i < len(up.Labels); i++ {
		assert.Less(t, up.Labels[i-1].Name, up.Labels[i].Name, "labels are sorted")
	}
}

func TestPushRegistry_FlushEmpty(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://127.0.0.1:1"})
	assert.NoError(t, registry.Flush(context.Background()), "nothing to send means no request")
}

func TestPushRegistry_CounterRejectsNegative(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://localhost"})
	c, err := registry.NewCounter(prometheus.CounterOpts{Name: "c"})
	require.NoError(t, err)
	assert.Panics(t, func() { c.Add(-1) })
}

func TestPushRegistry_SnapshotIsACopy(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://localhost"})
	g, err := registry.NewGaugeVec(prometheus.GaugeOpts{Name: "g"}, []string{"chain"})
	require.NoError(t, err)
	g.With(prometheus.Labels{"chain": "demo"}).Set(1)

	snap := registry.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Labels["chain"] = "changed"
	assert.Equal(t, "demo", registry.Snapshot()[0].Labels["chain"])
}

func TestClient_PushMetrics(t *testing.T) {
	server, received := remoteWriteServer(t, http.StatusOK)
	client := NewClient(server.URL+"/", "acme")

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	err := client.PushMetrics(context.Background(), []Metric{
		{Name: "lifecycle_last_run_success", Value: 1, Labels: map[string]string{"chain": "demo"}, Timestamp: at},
	})
	require.NoError(t, err)

	series := receive(t, received)
	require.Len(t, series, 1)
	assert.Equal(t, "acme_lifecycle_last_run_success", findLabel(series[0].Labels, "__name__"))
	assert.Equal(t, "demo", findLabel(series[0].Labels, "chain"))
	assert.Equal(t, at.UnixMilli(), series[0].Samples[0].Timestamp)

	assert.NoError(t, client.PushMetrics(context.Background(), nil))
}

func TestClient_PushMetrics_ErrorStatus(t *testing.T) {
	server, _ := remoteWriteServer(t, http.StatusBadRequest)
	err := NewClient(server.URL, "").WithTimeout(time.Second).
		PushMetrics(context.Background(), []Metric{{Name: "x", Value: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestScrapeRegistry(t *testing.T) {
	registry, err := NewScrapeRegistry()
	require.NoError(t, err)

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "A test gauge"})
	require.NoError(t, err)
	gauge.Set(42.0)

	counter, err := registry.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "A test counter"})
	require.NoError(t, err)
	counter.Inc()

	hist, err := registry.NewHistogramVec(prometheus.HistogramOpts{Name: "test_hist", Help: "A test histogram"}, []string{"kind"})
	require.NoError(t, err)
	hist.With(prometheus.Labels{"kind": "role"}).Observe(0.2)

	_, err = registry.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "duplicate"})
	assert.Error(t, err, "names can only be registered once")

	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "test_gauge 42")
	assert.Contains(t, body, "test_counter 1")
	assert.Contains(t, body, `test_hist_count{kind="role"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
