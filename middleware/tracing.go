package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for flowline tracing.
const tracerName = "github.com/xraph/flowline"

// Tracing returns middleware that wraps action invocation in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: flowline.action.type, flowline.step.id,
// flowline.execution.id, flowline.workflow.id, flowline.attempt,
// flowline.tenant.id. On error, the span status is set to codes.Error
// with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		ctx, span := tracer.Start(ctx, "flowline.action.execute",
			trace.WithAttributes(
				attribute.String("flowline.action.type", inv.ActionType),
				attribute.String("flowline.step.id", inv.StepID),
				attribute.String("flowline.execution.id", inv.ExecutionID),
				attribute.String("flowline.workflow.id", inv.WorkflowID),
				attribute.Int("flowline.attempt", inv.Attempt),
				attribute.String("flowline.tenant.id", inv.TenantID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
