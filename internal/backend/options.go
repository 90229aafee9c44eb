package backend

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/RoboFinSystems/robosystems-sub012/internal/admission"
)

type options struct {
	logger    *slog.Logger
	admission *admission.Controller
	tracer    trace.Tracer
	creds     CredentialsProvider
}

func defaultOptions() options {
	return options{logger: slog.Default()}
}

// Option configures a backend.
type Option func(*options)

// WithLogger sets the backend's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithAdmission guards queries and ingestions with c.
func WithAdmission(c *admission.Controller) Option {
	return func(o *options) {
		o.admission = c
	}
}

// WithTracer makes New wrap the backend in a TracedBackend.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithCredentialsProvider supplies Neo4j credentials at connect time instead
// of reading them from the config.
func WithCredentialsProvider(p CredentialsProvider) Option {
	return func(o *options) {
		o.creds = p
	}
}
