package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestInitTracing_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	tr, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)

	assert.False(t, tr.Enabled())
	assert.NotNil(t, tr.Tracer())
	assert.Equal(t, before, otel.GetTracerProvider())

	_, span := tr.Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestInitTracing_ExportsSpans(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()

	tr, err := InitTracing(ctx, TracingConfig{
		Enabled:     true,
		ServiceName: "graph-api-test",
		SampleRate:  1.0,
	}, WithExporter(exporter), WithServiceVersion("v0.0.1"))
	require.NoError(t, err)
	require.True(t, tr.Enabled())

	_, span := tr.Tracer().Start(ctx, "graphapi.backend.execute_query")
	span.End()

	require.NoError(t, tr.provider.ForceFlush(ctx))
	defer tr.Shutdown(ctx)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "graphapi.backend.execute_query", spans[0].Name)

	var serviceName string
	for _, attr := range spans[0].Resource.Attributes() {
		if attr.Key == "service.name" {
			serviceName = attr.Value.AsString()
		}
	}
	assert.Equal(t, "graph-api-test", serviceName)
}

func TestInitTracing_ZeroSampleRateDropsRootSpans(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()

	tr, err := InitTracing(ctx, TracingConfig{Enabled: true, SampleRate: 0}, WithExporter(exporter))
	require.NoError(t, err)

	_, span := tr.Tracer().Start(ctx, "dropped")
	assert.False(t, span.IsRecording())
	span.End()

	require.NoError(t, tr.provider.ForceFlush(ctx))
	defer tr.Shutdown(ctx)
	assert.Empty(t, exporter.GetSpans())
}

func TestInitTracing_NoEndpointStillCorrelates(t *testing.T) {
	ctx := context.Background()

	tr, err := InitTracing(ctx, TracingConfig{Enabled: true, SampleRate: 1})
	require.NoError(t, err)
	defer tr.Shutdown(ctx)

	spanCtx, span := tr.Tracer().Start(ctx, "local")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(spanCtx).TraceID())
}
