package observability

import (
	"context"
	"time"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	defaultBatchTimeout = 5 * time.Second
	defaultServiceName  = "graph-api"
)

// TracingConfig selects how spans are exported.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	SampleRate  float64
	// Endpoint is an OTLP/gRPC collector address. Empty keeps spans in
	// process, which is enough for log correlation.
	Endpoint string
	Insecure bool
}

// TracingOption is a functional option for configuring tracing initialization.
type TracingOption func(*tracingOptions)

type tracingOptions struct {
	exporter       sdktrace.SpanExporter
	batchTimeout   time.Duration
	serviceVersion string
}

// WithExporter replaces the OTLP exporter, mostly for tests.
func WithExporter(exporter sdktrace.SpanExporter) TracingOption {
	return func(o *tracingOptions) {
		o.exporter = exporter
	}
}

// WithBatchTimeout sets the maximum time between batch exports.
func WithBatchTimeout(timeout time.Duration) TracingOption {
	return func(o *tracingOptions) {
		o.batchTimeout = timeout
	}
}

// WithServiceVersion stamps the service.version resource attribute.
func WithServiceVersion(version string) TracingOption {
	return func(o *tracingOptions) {
		o.serviceVersion = version
	}
}

// Tracing owns the tracer used by the backends and the shutdown hook that
// flushes it.
type Tracing struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// Tracer returns the configured tracer. When tracing is disabled it is a
// no-op tracer.
func (t *Tracing) Tracer() trace.Tracer {
	return t.tracer
}

// Enabled reports whether spans are being recorded.
func (t *Tracing) Enabled() bool {
	return t.provider != nil
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return types.WrapError(types.TELEMETRY_FAILED, "failed to shutdown tracer provider", err)
	}
	return nil
}

// InitTracing sets up the global tracer provider. A disabled config yields a
// no-op tracer and leaves the global provider untouched.
func InitTracing(ctx context.Context, cfg TracingConfig, opts ...TracingOption) (*Tracing, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	if !cfg.Enabled {
		return &Tracing{tracer: noop.NewTracerProvider().Tracer(serviceName)}, nil
	}

	options := &tracingOptions{batchTimeout: defaultBatchTimeout}
	for _, opt := range opts {
		opt(options)
	}

	attrs := resource.WithAttributes(semconv.ServiceName(serviceName))
	if options.serviceVersion != "" {
		attrs = resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(options.serviceVersion),
		)
	}
	res, err := resource.New(ctx, attrs, resource.WithFromEnv(), resource.WithTelemetrySDK())
	if err != nil {
		return nil, types.WrapError(types.TELEMETRY_FAILED, "failed to create tracing resource", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
		sdktrace.WithResource(res),
	}

	exporter := options.exporter
	if exporter == nil && cfg.Endpoint != "" {
		otlpOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			otlpOpts = append(otlpOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, otlpOpts...)
		if err != nil {
			return nil, types.WrapError(types.TELEMETRY_FAILED, "failed to create OTLP exporter for "+cfg.Endpoint, err)
		}
	}
	if exporter != nil {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(options.batchTimeout)))
	}

	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)

	return &Tracing{provider: tp, tracer: tp.Tracer(serviceName)}, nil
}
