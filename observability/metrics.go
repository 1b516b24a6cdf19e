package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/flowline/execution"
)

// Metrics is the recording contract used by the engine and executor.
// Implementations must be safe for concurrent use.
type Metrics interface {
	// RecordExecution records a finished execution with its terminal
	// status and wall-clock duration.
	RecordExecution(ctx context.Context, e *execution.Execution, elapsed time.Duration)

	// RecordStepExecution records a single step attempt.
	RecordStepExecution(ctx context.Context, workflowID, stepID string, elapsed time.Duration, success bool)

	// RecordError records a classified execution error.
	RecordError(ctx context.Context, workflowID, code, stepID string)

	// RecordScheduleFired records a scheduler trigger for a workflow.
	RecordScheduleFired(ctx context.Context, workflowID string)
}

// OTelMetrics records through an OpenTelemetry meter.
type OTelMetrics struct {
	executions    metric.Int64Counter
	executionTime metric.Float64Histogram
	steps         metric.Int64Counter
	stepTime      metric.Float64Histogram
	errors        metric.Int64Counter
	schedules     metric.Int64Counter
}

var _ Metrics = (*OTelMetrics)(nil)

// NewOTelMetrics creates the Flowline instrument set on the given meter.
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	executions, err := meter.Int64Counter("flowline.executions",
		metric.WithDescription("Finished workflow executions by terminal status"))
	if err != nil {
		return nil, err
	}
	executionTime, err := meter.Float64Histogram("flowline.execution.duration",
		metric.WithDescription("Workflow execution duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	steps, err := meter.Int64Counter("flowline.steps",
		metric.WithDescription("Step attempts by outcome"))
	if err != nil {
		return nil, err
	}
	stepTime, err := meter.Float64Histogram("flowline.step.duration",
		metric.WithDescription("Step execution duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("flowline.errors",
		metric.WithDescription("Execution errors by code"))
	if err != nil {
		return nil, err
	}
	schedules, err := meter.Int64Counter("flowline.schedules.fired",
		metric.WithDescription("Scheduler triggers by workflow"))
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		executions:    executions,
		executionTime: executionTime,
		steps:         steps,
		stepTime:      stepTime,
		errors:        errs,
		schedules:     schedules,
	}, nil
}

// RecordExecution implements Metrics.
func (m *OTelMetrics) RecordExecution(ctx context.Context, e *execution.Execution, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tenant_id", e.TenantID),
		attribute.String("workflow_id", e.WorkflowID.String()),
		attribute.String("status", string(e.Status)),
	)
	m.executions.Add(ctx, 1, attrs)
	m.executionTime.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

// RecordStepExecution implements Metrics.
func (m *OTelMetrics) RecordStepExecution(ctx context.Context, workflowID, stepID string, elapsed time.Duration, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("workflow_id", workflowID),
		attribute.String("step_id", stepID),
		attribute.Bool("success", success),
	)
	m.steps.Add(ctx, 1, attrs)
	m.stepTime.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

// RecordError implements Metrics.
func (m *OTelMetrics) RecordError(ctx context.Context, workflowID, code, stepID string) {
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow_id", workflowID),
		attribute.String("code", code),
		attribute.String("step_id", stepID),
	))
}

// RecordScheduleFired implements Metrics.
func (m *OTelMetrics) RecordScheduleFired(ctx context.Context, workflowID string) {
	m.schedules.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow_id", workflowID),
	))
}

// NoopMetrics discards all recordings. Useful as a default when no meter
// is configured.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

func (NoopMetrics) RecordExecution(context.Context, *execution.Execution, time.Duration) {}

func (NoopMetrics) RecordStepExecution(context.Context, string, string, time.Duration, bool) {}

func (NoopMetrics) RecordError(context.Context, string, string, string) {}

func (NoopMetrics) RecordScheduleFired(context.Context, string) {}
