package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

// DefaultTimeout is the default timeout for remote write requests.
const DefaultTimeout = 30 * time.Second

// Metric is a single sample to send with remote write.
type Metric struct {
	Name      string
	Value     float64
	Labels    map[string]string
	Timestamp time.Time
}

// remoteWriter encodes samples as a snappy-compressed prompb.WriteRequest and posts them.
type remoteWriter struct {
	url        string
	httpClient *http.Client
	prefix     string
	// static labels added to every series, e.g. job and instance
	static map[string]string
	now    func() time.Time
}

func newRemoteWriter(baseURL, prefix string, timeout time.Duration, static map[string]string) *remoteWriter {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &remoteWriter{
		url:        strings.TrimRight(baseURL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     prefix,
		static:     static,
		now:        time.Now,
	}
}

func (w *remoteWriter) write(ctx context.Context, metrics []Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	series := make([]prompb.TimeSeries, 0, len(metrics))
	for _, m := range metrics {
		series = append(series, w.timeSeries(m))
	}

	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: series})
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(snappy.Encode(nil, data)))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// timeSeries converts a Metric to the remote write format. Labels are sorted by
// name as remote write requires.
func (w *remoteWriter) timeSeries(m Metric) prompb.TimeSeries {
	name := m.Name
	if w.prefix != "" {
		name = w.prefix + "_" + name
	}

	labels := make([]prompb.Label, 0, len(m.Labels)+len(w.static)+1)
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})
	for k, v := range w.static {
		if _, overridden := m.Labels[k]; !overridden && v != "" {
			labels = append(labels, prompb.Label{Name: k, Value: v})
		}
	}
	for k, v := range m.Labels {
		labels = append(labels, prompb.Label{Name: k, Value: v})
	}
	slices.SortFunc(labels, func(a, b prompb.Label) int { return strings.Compare(a.Name, b.Name) })

	ts := m.Timestamp
	if ts.IsZero() {
		ts = w.now()
	}
	return prompb.TimeSeries{
		Labels:  labels,
		Samples: []prompb.Sample{{Value: m.Value, Timestamp: ts.UnixMilli()}},
	}
}
