package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for flowline metrics.
const meterName = "github.com/xraph/flowline"

// Metrics returns middleware that records per-action execution metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - flowline.action.duration (Float64Histogram): execution time in seconds,
//     with attributes: action_type, step_id, status ("ok" or "error")
//   - flowline.action.invocations (Int64Counter): total invocations,
//     with attributes: action_type, step_id, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"flowline.action.duration",
		metric.WithDescription("Duration of action execution in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	invocations, iErr := meter.Int64Counter(
		"flowline.action.invocations",
		metric.WithDescription("Total number of action invocations"),
		metric.WithUnit("{invocation}"),
	)
	_ = iErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, inv *Invocation, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("action_type", inv.ActionType),
			attribute.String("step_id", inv.StepID),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		invocations.Add(ctx, 1, attrs)

		return err
	}
}
