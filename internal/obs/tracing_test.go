package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerNoneExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracer(context.Background(), TracingConfig{ServiceName: "backoffice-test", Exporter: "none"})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracerRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracer(context.Background(), TracingConfig{Exporter: "zipkin"})
	assert.ErrorContains(t, err, "unsupported tracing exporter")
}

func TestSamplerClampsRatio(t *testing.T) {
	assert.Contains(t, TracingConfig{SamplingRatio: 0}.Sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, TracingConfig{SamplingRatio: 0.25}.Sampler().Description(), "TraceIDRatioBased{0.25}")
}
