package metrics

import (
	"context"
	"net/http"
	"time"
)

// Client pushes ad-hoc samples to a remote write endpoint.
type Client struct {
	writer *remoteWriter
}

// NewClient creates a Client for the endpoint at url. Metric names are prefixed with prefix.
func NewClient(url, prefix string) *Client {
	return &Client{writer: newRemoteWriter(url, prefix, DefaultTimeout, nil)}
}

// WithTimeout returns a copy of the client with a different request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	w := *c.writer
	w.httpClient = &http.Client{Timeout: d}
	return &Client{writer: &w}
}

// PushMetrics sends every metric in one request.
func (c *Client) PushMetrics(ctx context.Context, metrics []Metric) error {
	return c.writer.write(ctx, metrics)
}
