package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/veriquery/veriquery/internal/config"
)

// Tracing wraps an OpenTelemetry tracer for the query pipeline. A nil
// *Tracing runs the traced function directly with no span.
type Tracing struct {
	config config.TracingConfig
	tracer trace.Tracer
}

// NewTracing creates a tracing instance using the globally configured
// tracer provider (a no-op provider unless the host process installs
// a real one).
func NewTracing(cfg config.TracingConfig) *Tracing {
	return &Tracing{
		config: cfg,
		tracer: otel.Tracer(cfg.ServiceName),
	}
}

// StartSpan starts a span for the given operation.
func (t *Tracing) StartSpan(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || !t.config.Enabled {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, operation, opts...)
}

// SetAttributes sets string attributes on the current span.
func (t *Tracing) SetAttributes(ctx context.Context, attributes map[string]string) {
	if t == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	span.SetAttributes(attrs...)
}

// TraceOperation runs fn inside a span, recording duration and error
// status.
func (t *Tracing) TraceOperation(ctx context.Context, operation string, fn func(context.Context) error) error {
	if t == nil || !t.config.Enabled {
		return fn(ctx)
	}

	ctx, span := t.tracer.Start(ctx, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	span.SetAttributes(
		attribute.String("operation", operation),
		attribute.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}
