// Package tracing installs the OpenTelemetry tracer provider used for run and step spans.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects a span exporter.
type Config struct {
	// Exporter is one of none, stdout or otlp. Empty means none.
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=none stdout otlp"`
	// Endpoint is the OTLP gRPC collector address, e.g. localhost:4317.
	Endpoint string `yaml:"endpoint" validate:"required_if=Exporter otlp"`
	// Insecure disables TLS for the OTLP connection.
	Insecure bool `yaml:"insecure"`
	// Headers are sent with every OTLP export, typically for authentication.
	Headers map[string]string `yaml:"headers"`
	// SampleRatio is the fraction of runs traced. Zero means 1.
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// Shutdown flushes pending spans and stops the exporter.
type Shutdown func(context.Context) error

// Option adjusts Setup.
type Option func(*options)

type options struct {
	stdout io.Writer
}

// WithStdoutWriter sends the stdout exporter's output to w instead of os.Stdout.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *options) {
		o.stdout = w
	}
}

// Setup installs a global tracer provider for cfg and returns its shutdown function.
// With Exporter none the global no-op provider is left in place.
func Setup(ctx context.Context, cfg Config, service, version string, opts ...Option) (Shutdown, error) {
	o := options{stdout: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "", "none":
		return func(context.Context) error { return nil }, nil
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(o.stdout), stdouttrace.WithPrettyPrint())
	case "otlp":
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, grpcOpts...)
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s trace exporter: %w", cfg.Exporter, err)
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio == 0 {
		ratio = 1
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider.Shutdown, nil
}
