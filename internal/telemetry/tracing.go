package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tjfontaine/lambda-api"

// Tracer wraps named operations in spans tagged with a project. A disabled
// Tracer runs the operation without a span.
type Tracer struct {
	project string
	enabled bool
}

// NewTracer creates a Tracer.
func NewTracer(project string, enabled bool) *Tracer {
	return &Tracer{project: project, enabled: enabled}
}

// Enabled reports whether spans are recorded.
func (t *Tracer) Enabled() bool {
	return t != nil && t.enabled
}

// Run executes fn inside a span named name. Errors are recorded on the span.
func (t *Tracer) Run(ctx context.Context, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	if !t.Enabled() {
		return fn(ctx)
	}

	attrs = append(attrs, attribute.String("project", t.project))
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
