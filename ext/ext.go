// Package ext defines the extension system for Flowline.
// Extensions are notified of lifecycle events (workflow published,
// execution completed, step failed, etc.) and can react to them —
// audit logging, metrics, tracing, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/workflow"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Workflow lifecycle hooks
// ──────────────────────────────────────────────────

// WorkflowCreated is called after a new workflow version is persisted.
type WorkflowCreated interface {
	OnWorkflowCreated(ctx context.Context, def *workflow.Definition) error
}

// WorkflowUpdated is called after a draft workflow version is updated.
type WorkflowUpdated interface {
	OnWorkflowUpdated(ctx context.Context, def *workflow.Definition) error
}

// WorkflowPublished is called after a workflow version is published.
type WorkflowPublished interface {
	OnWorkflowPublished(ctx context.Context, def *workflow.Definition) error
}

// WorkflowDeprecated is called after a workflow version is deprecated.
type WorkflowDeprecated interface {
	OnWorkflowDeprecated(ctx context.Context, def *workflow.Definition) error
}

// ──────────────────────────────────────────────────
// Execution lifecycle hooks
// ──────────────────────────────────────────────────

// ExecutionStarted is called when an execution begins running.
type ExecutionStarted interface {
	OnExecutionStarted(ctx context.Context, e *execution.Execution) error
}

// ExecutionCompleted is called after an execution finishes successfully.
type ExecutionCompleted interface {
	OnExecutionCompleted(ctx context.Context, e *execution.Execution, elapsed time.Duration) error
}

// ExecutionFailed is called when an execution fails or times out.
type ExecutionFailed interface {
	OnExecutionFailed(ctx context.Context, e *execution.Execution, err error) error
}

// ExecutionCancelled is called when an execution is cancelled.
type ExecutionCancelled interface {
	OnExecutionCancelled(ctx context.Context, e *execution.Execution) error
}

// ExecutionWaiting is called when an execution is parked pending an
// external continuation (approval, timer, subworkflow).
type ExecutionWaiting interface {
	OnExecutionWaiting(ctx context.Context, e *execution.Execution, reason string) error
}

// ──────────────────────────────────────────────────
// Step hooks
// ──────────────────────────────────────────────────

// StepCompleted is called after a step finishes successfully.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, e *execution.Execution, step *execution.StepExecution, elapsed time.Duration) error
}

// StepFailed is called when a step fails terminally (no more retries).
type StepFailed interface {
	OnStepFailed(ctx context.Context, e *execution.Execution, step *execution.StepExecution, err error) error
}

// StepRetried is called when a step attempt fails and will be retried.
type StepRetried interface {
	OnStepRetried(ctx context.Context, e *execution.Execution, step *execution.StepExecution, attempt int, delay time.Duration) error
}

// StepEscalated is called when a step failure is escalated to a
// configured target instead of being handled inline.
type StepEscalated interface {
	OnStepEscalated(ctx context.Context, e *execution.Execution, step *execution.StepExecution, target string, err error) error
}

// ApprovalRequested is called when an approval step parks the execution.
type ApprovalRequested interface {
	OnApprovalRequested(ctx context.Context, e *execution.Execution, step *execution.StepExecution, approvers []string, message string) error
}

// ──────────────────────────────────────────────────
// Compensation hooks
// ──────────────────────────────────────────────────

// CompensationStarted is called when a failed execution begins rolling
// back its completed steps.
type CompensationStarted interface {
	OnCompensationStarted(ctx context.Context, e *execution.Execution) error
}

// CompensationCompleted is called after the rollback sweep finishes.
type CompensationCompleted interface {
	OnCompensationCompleted(ctx context.Context, e *execution.Execution, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// ScheduleFired is called when the scheduler triggers a workflow.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, j *cron.Job) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
