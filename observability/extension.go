package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/ext"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.ExecutionCompleted = (*MetricsExtension)(nil)
	_ ext.ExecutionFailed    = (*MetricsExtension)(nil)
	_ ext.ExecutionCancelled = (*MetricsExtension)(nil)
	_ ext.StepCompleted      = (*MetricsExtension)(nil)
	_ ext.StepFailed         = (*MetricsExtension)(nil)
	_ ext.ScheduleFired      = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics through a
// [Metrics] implementation. Register it as a Flowline extension to
// automatically track execution outcomes, step latencies, error codes,
// and schedule fires.
type MetricsExtension struct {
	metrics Metrics
}

// NewMetricsExtension creates a MetricsExtension on the global
// OpenTelemetry meter provider.
func NewMetricsExtension() (*MetricsExtension, error) {
	m, err := NewOTelMetrics(otel.Meter("flowline/observability"))
	if err != nil {
		return nil, err
	}
	return NewMetricsExtensionWith(m), nil
}

// NewMetricsExtensionWith creates a MetricsExtension with the provided
// Metrics implementation.
func NewMetricsExtensionWith(m Metrics) *MetricsExtension {
	return &MetricsExtension{metrics: m}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Execution lifecycle hooks ───────────────────────

// OnExecutionCompleted implements ext.ExecutionCompleted.
func (m *MetricsExtension) OnExecutionCompleted(ctx context.Context, e *execution.Execution, elapsed time.Duration) error {
	m.metrics.RecordExecution(ctx, e, elapsed)
	return nil
}

// OnExecutionFailed implements ext.ExecutionFailed.
func (m *MetricsExtension) OnExecutionFailed(ctx context.Context, e *execution.Execution, _ error) error {
	m.metrics.RecordExecution(ctx, e, e.Duration())
	if e.Error != nil {
		m.metrics.RecordError(ctx, e.WorkflowID.String(), e.Error.Code, "")
	}
	return nil
}

// OnExecutionCancelled implements ext.ExecutionCancelled.
func (m *MetricsExtension) OnExecutionCancelled(ctx context.Context, e *execution.Execution) error {
	m.metrics.RecordExecution(ctx, e, e.Duration())
	return nil
}

// ── Step hooks ──────────────────────────────────────

// OnStepCompleted implements ext.StepCompleted.
func (m *MetricsExtension) OnStepCompleted(ctx context.Context, e *execution.Execution, step *execution.StepExecution, elapsed time.Duration) error {
	m.metrics.RecordStepExecution(ctx, e.WorkflowID.String(), step.StepID, elapsed, true)
	return nil
}

// OnStepFailed implements ext.StepFailed.
func (m *MetricsExtension) OnStepFailed(ctx context.Context, e *execution.Execution, step *execution.StepExecution, _ error) error {
	var elapsed time.Duration
	if step.FinishedAt != nil {
		elapsed = step.FinishedAt.Sub(step.StartedAt)
	}
	m.metrics.RecordStepExecution(ctx, e.WorkflowID.String(), step.StepID, elapsed, false)
	if step.Error != nil {
		m.metrics.RecordError(ctx, e.WorkflowID.String(), step.Error.Code, step.StepID)
	}
	return nil
}

// ── Schedule hooks ──────────────────────────────────

// OnScheduleFired implements ext.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(ctx context.Context, j *cron.Job) error {
	m.metrics.RecordScheduleFired(ctx, j.WorkflowID.String())
	return nil
}
