package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/workflow"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type workflowCreatedEntry struct {
	name string
	hook WorkflowCreated
}

type workflowUpdatedEntry struct {
	name string
	hook WorkflowUpdated
}

type workflowPublishedEntry struct {
	name string
	hook WorkflowPublished
}

type workflowDeprecatedEntry struct {
	name string
	hook WorkflowDeprecated
}

type executionStartedEntry struct {
	name string
	hook ExecutionStarted
}

type executionCompletedEntry struct {
	name string
	hook ExecutionCompleted
}

type executionFailedEntry struct {
	name string
	hook ExecutionFailed
}

type executionCancelledEntry struct {
	name string
	hook ExecutionCancelled
}

type executionWaitingEntry struct {
	name string
	hook ExecutionWaiting
}

type stepCompletedEntry struct {
	name string
	hook StepCompleted
}

type stepFailedEntry struct {
	name string
	hook StepFailed
}

type stepRetriedEntry struct {
	name string
	hook StepRetried
}

type stepEscalatedEntry struct {
	name string
	hook StepEscalated
}

type approvalRequestedEntry struct {
	name string
	hook ApprovalRequested
}

type compensationStartedEntry struct {
	name string
	hook CompensationStarted
}

type compensationCompletedEntry struct {
	name string
	hook CompensationCompleted
}

type scheduleFiredEntry struct {
	name string
	hook ScheduleFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	workflowCreated       []workflowCreatedEntry
	workflowUpdated       []workflowUpdatedEntry
	workflowPublished     []workflowPublishedEntry
	workflowDeprecated    []workflowDeprecatedEntry
	executionStarted      []executionStartedEntry
	executionCompleted    []executionCompletedEntry
	executionFailed       []executionFailedEntry
	executionCancelled    []executionCancelledEntry
	executionWaiting      []executionWaitingEntry
	stepCompleted         []stepCompletedEntry
	stepFailed            []stepFailedEntry
	stepRetried           []stepRetriedEntry
	stepEscalated         []stepEscalatedEntry
	approvalRequested     []approvalRequestedEntry
	compensationStarted   []compensationStartedEntry
	compensationCompleted []compensationCompletedEntry
	scheduleFired         []scheduleFiredEntry
	shutdown              []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(WorkflowCreated); ok {
		r.workflowCreated = append(r.workflowCreated, workflowCreatedEntry{name, h})
	}
	if h, ok := e.(WorkflowUpdated); ok {
		r.workflowUpdated = append(r.workflowUpdated, workflowUpdatedEntry{name, h})
	}
	if h, ok := e.(WorkflowPublished); ok {
		r.workflowPublished = append(r.workflowPublished, workflowPublishedEntry{name, h})
	}
	if h, ok := e.(WorkflowDeprecated); ok {
		r.workflowDeprecated = append(r.workflowDeprecated, workflowDeprecatedEntry{name, h})
	}
	if h, ok := e.(ExecutionStarted); ok {
		r.executionStarted = append(r.executionStarted, executionStartedEntry{name, h})
	}
	if h, ok := e.(ExecutionCompleted); ok {
		r.executionCompleted = append(r.executionCompleted, executionCompletedEntry{name, h})
	}
	if h, ok := e.(ExecutionFailed); ok {
		r.executionFailed = append(r.executionFailed, executionFailedEntry{name, h})
	}
	if h, ok := e.(ExecutionCancelled); ok {
		r.executionCancelled = append(r.executionCancelled, executionCancelledEntry{name, h})
	}
	if h, ok := e.(ExecutionWaiting); ok {
		r.executionWaiting = append(r.executionWaiting, executionWaitingEntry{name, h})
	}
	if h, ok := e.(StepCompleted); ok {
		r.stepCompleted = append(r.stepCompleted, stepCompletedEntry{name, h})
	}
	if h, ok := e.(StepFailed); ok {
		r.stepFailed = append(r.stepFailed, stepFailedEntry{name, h})
	}
	if h, ok := e.(StepRetried); ok {
		r.stepRetried = append(r.stepRetried, stepRetriedEntry{name, h})
	}
	if h, ok := e.(StepEscalated); ok {
		r.stepEscalated = append(r.stepEscalated, stepEscalatedEntry{name, h})
	}
	if h, ok := e.(ApprovalRequested); ok {
		r.approvalRequested = append(r.approvalRequested, approvalRequestedEntry{name, h})
	}
	if h, ok := e.(CompensationStarted); ok {
		r.compensationStarted = append(r.compensationStarted, compensationStartedEntry{name, h})
	}
	if h, ok := e.(CompensationCompleted); ok {
		r.compensationCompleted = append(r.compensationCompleted, compensationCompletedEntry{name, h})
	}
	if h, ok := e.(ScheduleFired); ok {
		r.scheduleFired = append(r.scheduleFired, scheduleFiredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Workflow event emitters
// ──────────────────────────────────────────────────

// EmitWorkflowCreated notifies all extensions that implement WorkflowCreated.
func (r *Registry) EmitWorkflowCreated(ctx context.Context, def *workflow.Definition) {
	for _, e := range r.workflowCreated {
		if err := e.hook.OnWorkflowCreated(ctx, def); err != nil {
			r.logHookError("OnWorkflowCreated", e.name, err)
		}
	}
}

// EmitWorkflowUpdated notifies all extensions that implement WorkflowUpdated.
func (r *Registry) EmitWorkflowUpdated(ctx context.Context, def *workflow.Definition) {
	for _, e := range r.workflowUpdated {
		if err := e.hook.OnWorkflowUpdated(ctx, def); err != nil {
			r.logHookError("OnWorkflowUpdated", e.name, err)
		}
	}
}

// EmitWorkflowPublished notifies all extensions that implement WorkflowPublished.
func (r *Registry) EmitWorkflowPublished(ctx context.Context, def *workflow.Definition) {
	for _, e := range r.workflowPublished {
		if err := e.hook.OnWorkflowPublished(ctx, def); err != nil {
			r.logHookError("OnWorkflowPublished", e.name, err)
		}
	}
}

// EmitWorkflowDeprecated notifies all extensions that implement WorkflowDeprecated.
func (r *Registry) EmitWorkflowDeprecated(ctx context.Context, def *workflow.Definition) {
	for _, e := range r.workflowDeprecated {
		if err := e.hook.OnWorkflowDeprecated(ctx, def); err != nil {
			r.logHookError("OnWorkflowDeprecated", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Execution event emitters
// ──────────────────────────────────────────────────

// EmitExecutionStarted notifies all extensions that implement ExecutionStarted.
func (r *Registry) EmitExecutionStarted(ctx context.Context, exec *execution.Execution) {
	for _, e := range r.executionStarted {
		if err := e.hook.OnExecutionStarted(ctx, exec); err != nil {
			r.logHookError("OnExecutionStarted", e.name, err)
		}
	}
}

// EmitExecutionCompleted notifies all extensions that implement ExecutionCompleted.
func (r *Registry) EmitExecutionCompleted(ctx context.Context, exec *execution.Execution, elapsed time.Duration) {
	for _, e := range r.executionCompleted {
		if err := e.hook.OnExecutionCompleted(ctx, exec, elapsed); err != nil {
			r.logHookError("OnExecutionCompleted", e.name, err)
		}
	}
}

// EmitExecutionFailed notifies all extensions that implement ExecutionFailed.
func (r *Registry) EmitExecutionFailed(ctx context.Context, exec *execution.Execution, execErr error) {
	for _, e := range r.executionFailed {
		if err := e.hook.OnExecutionFailed(ctx, exec, execErr); err != nil {
			r.logHookError("OnExecutionFailed", e.name, err)
		}
	}
}

// EmitExecutionCancelled notifies all extensions that implement ExecutionCancelled.
func (r *Registry) EmitExecutionCancelled(ctx context.Context, exec *execution.Execution) {
	for _, e := range r.executionCancelled {
		if err := e.hook.OnExecutionCancelled(ctx, exec); err != nil {
			r.logHookError("OnExecutionCancelled", e.name, err)
		}
	}
}

// EmitExecutionWaiting notifies all extensions that implement ExecutionWaiting.
func (r *Registry) EmitExecutionWaiting(ctx context.Context, exec *execution.Execution, reason string) {
	for _, e := range r.executionWaiting {
		if err := e.hook.OnExecutionWaiting(ctx, exec, reason); err != nil {
			r.logHookError("OnExecutionWaiting", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Step event emitters
// ──────────────────────────────────────────────────

// EmitStepCompleted notifies all extensions that implement StepCompleted.
func (r *Registry) EmitStepCompleted(ctx context.Context, exec *execution.Execution, step *execution.StepExecution, elapsed time.Duration) {
	for _, e := range r.stepCompleted {
		if err := e.hook.OnStepCompleted(ctx, exec, step, elapsed); err != nil {
			r.logHookError("OnStepCompleted", e.name, err)
		}
	}
}

// EmitStepFailed notifies all extensions that implement StepFailed.
func (r *Registry) EmitStepFailed(ctx context.Context, exec *execution.Execution, step *execution.StepExecution, stepErr error) {
	for _, e := range r.stepFailed {
		if err := e.hook.OnStepFailed(ctx, exec, step, stepErr); err != nil {
			r.logHookError("OnStepFailed", e.name, err)
		}
	}
}

// EmitStepRetried notifies all extensions that implement StepRetried.
func (r *Registry) EmitStepRetried(ctx context.Context, exec *execution.Execution, step *execution.StepExecution, attempt int, delay time.Duration) {
	for _, e := range r.stepRetried {
		if err := e.hook.OnStepRetried(ctx, exec, step, attempt, delay); err != nil {
			r.logHookError("OnStepRetried", e.name, err)
		}
	}
}

// EmitStepEscalated notifies all extensions that implement StepEscalated.
func (r *Registry) EmitStepEscalated(ctx context.Context, exec *execution.Execution, step *execution.StepExecution, target string, stepErr error) {
	for _, e := range r.stepEscalated {
		if err := e.hook.OnStepEscalated(ctx, exec, step, target, stepErr); err != nil {
			r.logHookError("OnStepEscalated", e.name, err)
		}
	}
}

// EmitApprovalRequested notifies all extensions that implement ApprovalRequested.
func (r *Registry) EmitApprovalRequested(ctx context.Context, exec *execution.Execution, step *execution.StepExecution, approvers []string, message string) {
	for _, e := range r.approvalRequested {
		if err := e.hook.OnApprovalRequested(ctx, exec, step, approvers, message); err != nil {
			r.logHookError("OnApprovalRequested", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Compensation event emitters
// ──────────────────────────────────────────────────

// EmitCompensationStarted notifies all extensions that implement CompensationStarted.
func (r *Registry) EmitCompensationStarted(ctx context.Context, exec *execution.Execution) {
	for _, e := range r.compensationStarted {
		if err := e.hook.OnCompensationStarted(ctx, exec); err != nil {
			r.logHookError("OnCompensationStarted", e.name, err)
		}
	}
}

// EmitCompensationCompleted notifies all extensions that implement CompensationCompleted.
func (r *Registry) EmitCompensationCompleted(ctx context.Context, exec *execution.Execution, compErr error) {
	for _, e := range r.compensationCompleted {
		if err := e.hook.OnCompensationCompleted(ctx, exec, compErr); err != nil {
			r.logHookError("OnCompensationCompleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitScheduleFired notifies all extensions that implement ScheduleFired.
func (r *Registry) EmitScheduleFired(ctx context.Context, j *cron.Job) {
	for _, e := range r.scheduleFired {
		if err := e.hook.OnScheduleFired(ctx, j); err != nil {
			r.logHookError("OnScheduleFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block execution.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}

var _ cron.Emitter = (*Registry)(nil)
