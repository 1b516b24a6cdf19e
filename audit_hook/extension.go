package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/ext"
	"github.com/xraph/flowline/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension             = (*Extension)(nil)
	_ ext.WorkflowCreated       = (*Extension)(nil)
	_ ext.WorkflowUpdated       = (*Extension)(nil)
	_ ext.WorkflowPublished     = (*Extension)(nil)
	_ ext.WorkflowDeprecated    = (*Extension)(nil)
	_ ext.ExecutionStarted      = (*Extension)(nil)
	_ ext.ExecutionCompleted    = (*Extension)(nil)
	_ ext.ExecutionFailed       = (*Extension)(nil)
	_ ext.ExecutionCancelled    = (*Extension)(nil)
	_ ext.ExecutionWaiting      = (*Extension)(nil)
	_ ext.StepCompleted         = (*Extension)(nil)
	_ ext.StepFailed            = (*Extension)(nil)
	_ ext.StepRetried           = (*Extension)(nil)
	_ ext.StepEscalated         = (*Extension)(nil)
	_ ext.ApprovalRequested     = (*Extension)(nil)
	_ ext.CompensationStarted   = (*Extension)(nil)
	_ ext.CompensationCompleted = (*Extension)(nil)
	_ ext.ScheduleFired         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so this package does not depend on any particular
// audit store — callers inject their concrete backend at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	TenantID   string         `json:"tenant_id,omitempty"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges Flowline lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Workflow lifecycle hooks ────────────────────────

// OnWorkflowCreated implements ext.WorkflowCreated.
func (e *Extension) OnWorkflowCreated(ctx context.Context, def *workflow.Definition) error {
	return e.record(ctx, ActionWorkflowCreated, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, def.VersionID.String(), CategoryWorkflow, def.TenantID, nil,
		"workflow_id", def.ID.String(),
		"workflow_name", def.Name,
		"version", def.Version,
	)
}

// OnWorkflowUpdated implements ext.WorkflowUpdated.
func (e *Extension) OnWorkflowUpdated(ctx context.Context, def *workflow.Definition) error {
	return e.record(ctx, ActionWorkflowUpdated, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, def.VersionID.String(), CategoryWorkflow, def.TenantID, nil,
		"workflow_id", def.ID.String(),
		"workflow_name", def.Name,
		"version", def.Version,
	)
}

// OnWorkflowPublished implements ext.WorkflowPublished.
func (e *Extension) OnWorkflowPublished(ctx context.Context, def *workflow.Definition) error {
	return e.record(ctx, ActionWorkflowPublished, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, def.VersionID.String(), CategoryWorkflow, def.TenantID, nil,
		"workflow_id", def.ID.String(),
		"workflow_name", def.Name,
		"version", def.Version,
	)
}

// OnWorkflowDeprecated implements ext.WorkflowDeprecated.
func (e *Extension) OnWorkflowDeprecated(ctx context.Context, def *workflow.Definition) error {
	return e.record(ctx, ActionWorkflowDeprecated, SeverityWarning, OutcomeSuccess,
		ResourceWorkflow, def.VersionID.String(), CategoryWorkflow, def.TenantID, nil,
		"workflow_id", def.ID.String(),
		"workflow_name", def.Name,
		"version", def.Version,
	)
}

// ── Execution lifecycle hooks ───────────────────────

// OnExecutionStarted implements ext.ExecutionStarted.
func (e *Extension) OnExecutionStarted(ctx context.Context, x *execution.Execution) error {
	return e.record(ctx, ActionExecutionStarted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, x.ID.String(), CategoryExecution, x.TenantID, nil,
		"workflow_id", x.WorkflowID.String(),
		"correlation_id", x.CorrelationID,
	)
}

// OnExecutionCompleted implements ext.ExecutionCompleted.
func (e *Extension) OnExecutionCompleted(ctx context.Context, x *execution.Execution, elapsed time.Duration) error {
	return e.record(ctx, ActionExecutionCompleted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, x.ID.String(), CategoryExecution, x.TenantID, nil,
		"workflow_id", x.WorkflowID.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnExecutionFailed implements ext.ExecutionFailed.
func (e *Extension) OnExecutionFailed(ctx context.Context, x *execution.Execution, execErr error) error {
	return e.record(ctx, ActionExecutionFailed, SeverityCritical, OutcomeFailure,
		ResourceExecution, x.ID.String(), CategoryExecution, x.TenantID, execErr,
		"workflow_id", x.WorkflowID.String(),
		"status", string(x.Status),
	)
}

// OnExecutionCancelled implements ext.ExecutionCancelled.
func (e *Extension) OnExecutionCancelled(ctx context.Context, x *execution.Execution) error {
	return e.record(ctx, ActionExecutionCancelled, SeverityWarning, OutcomeSuccess,
		ResourceExecution, x.ID.String(), CategoryExecution, x.TenantID, nil,
		"workflow_id", x.WorkflowID.String(),
	)
}

// OnExecutionWaiting implements ext.ExecutionWaiting.
func (e *Extension) OnExecutionWaiting(ctx context.Context, x *execution.Execution, reason string) error {
	return e.record(ctx, ActionExecutionWaiting, SeverityInfo, OutcomeSuccess,
		ResourceExecution, x.ID.String(), CategoryExecution, x.TenantID, nil,
		"workflow_id", x.WorkflowID.String(),
		"wait_reason", reason,
	)
}

// ── Step hooks ──────────────────────────────────────

// OnStepCompleted implements ext.StepCompleted.
func (e *Extension) OnStepCompleted(ctx context.Context, x *execution.Execution, step *execution.StepExecution, elapsed time.Duration) error {
	return e.record(ctx, ActionStepCompleted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, x.ID.String(), CategoryExecution, x.TenantID, nil,
		"step_id", step.StepID,
		"step_type", string(step.Type),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnStepFailed implements ext.StepFailed.
func (e *Extension) OnStepFailed(ctx context.Context, x *execution.Execution, step *execution.StepExecution, stepErr error) error {
	return e.record(ctx, ActionStepFailed, SeverityWarning, OutcomeFailure,
		ResourceExecution, x.ID.String(), CategoryExecution, x.TenantID, stepErr,
		"step_id", step.StepID,
		"step_type", string(step.Type),
		"retry_count", step.RetryCount,
	)
}

// OnStepRetried implements ext.StepRetried.
func (e *Extension) OnStepRetried(ctx context.Context, x *execution.Execution, step *execution.StepExecution, attempt int, delay time.Duration) error {
	return e.record(ctx, ActionStepRetried, SeverityWarning, OutcomeFailure,
		ResourceExecution, x.ID.String(), CategoryExecution, x.TenantID, nil,
		"step_id", step.StepID,
		"attempt", attempt,
		"delay_ms", delay.Milliseconds(),
	)
}

// OnStepEscalated implements ext.StepEscalated.
func (e *Extension) OnStepEscalated(ctx context.Context, x *execution.Execution, step *execution.StepExecution, target string, stepErr error) error {
	return e.record(ctx, ActionStepEscalated, SeverityCritical, OutcomeFailure,
		ResourceExecution, x.ID.String(), CategoryExecution, x.TenantID, stepErr,
		"step_id", step.StepID,
		"escalate_to", target,
	)
}

// OnApprovalRequested implements ext.ApprovalRequested.
func (e *Extension) OnApprovalRequested(ctx context.Context, x *execution.Execution, step *execution.StepExecution, approvers []string, message string) error {
	return e.record(ctx, ActionApprovalRequested, SeverityInfo, OutcomeSuccess,
		ResourceExecution, x.ID.String(), CategoryExecution, x.TenantID, nil,
		"step_id", step.StepID,
		"approvers", approvers,
		"message", message,
	)
}

// ── Compensation hooks ──────────────────────────────

// OnCompensationStarted implements ext.CompensationStarted.
func (e *Extension) OnCompensationStarted(ctx context.Context, x *execution.Execution) error {
	return e.record(ctx, ActionCompensationStarted, SeverityWarning, OutcomeSuccess,
		ResourceExecution, x.ID.String(), CategoryExecution, x.TenantID, nil,
		"workflow_id", x.WorkflowID.String(),
	)
}

// OnCompensationCompleted implements ext.CompensationCompleted.
func (e *Extension) OnCompensationCompleted(ctx context.Context, x *execution.Execution, compErr error) error {
	severity, outcome := SeverityInfo, OutcomeSuccess
	if compErr != nil {
		severity, outcome = SeverityCritical, OutcomeFailure
	}
	return e.record(ctx, ActionCompensationCompleted, severity, outcome,
		ResourceExecution, x.ID.String(), CategoryExecution, x.TenantID, compErr,
		"workflow_id", x.WorkflowID.String(),
	)
}

// ── Schedule hooks ──────────────────────────────────

// OnScheduleFired implements ext.ScheduleFired.
func (e *Extension) OnScheduleFired(ctx context.Context, j *cron.Job) error {
	return e.record(ctx, ActionScheduleFired, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, j.ID.String(), CategorySchedule, j.TenantID, nil,
		"workflow_id", j.WorkflowID.String(),
		"expression", j.Expression,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category, tenantID string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		TenantID:   tenantID,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
