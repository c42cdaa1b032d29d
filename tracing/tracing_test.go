package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_None(t *testing.T) {
	for _, exporter := range []string{"", "none"} {
		shutdown, err := Setup(context.Background(), Config{Exporter: exporter}, "lifecycle", "test")
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestSetup_Stdout(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), Config{Exporter: "stdout"}, "lifecycle", "v1.2.3", WithStdoutWriter(&buf))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "lifecycle.run")
	span.End()
	require.NoError(t, shutdown(context.Background()), "shutdown flushes the batcher")

	out := buf.String()
	assert.Contains(t, out, "lifecycle.run")
	assert.Contains(t, out, "v1.2.3")
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), Config{Exporter: "zipkin"}, "lifecycle", "test")
	assert.Error(t, err)
}
