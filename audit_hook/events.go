package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionWorkflowCreated       = "workflow.created"
	ActionWorkflowUpdated       = "workflow.updated"
	ActionWorkflowPublished     = "workflow.published"
	ActionWorkflowDeprecated    = "workflow.deprecated"
	ActionExecutionStarted      = "execution.started"
	ActionExecutionCompleted    = "execution.completed"
	ActionExecutionFailed       = "execution.failed"
	ActionExecutionCancelled    = "execution.cancelled"
	ActionExecutionWaiting      = "execution.waiting"
	ActionStepCompleted         = "step.completed"
	ActionStepFailed            = "step.failed"
	ActionStepRetried           = "step.retried"
	ActionStepEscalated         = "step.escalated"
	ActionApprovalRequested     = "approval.requested"
	ActionCompensationStarted   = "compensation.started"
	ActionCompensationCompleted = "compensation.completed"
	ActionScheduleFired         = "schedule.fired"
)

// Audit event categories group related actions.
const (
	CategoryWorkflow  = "flowline.workflow"
	CategoryExecution = "flowline.execution"
	CategorySchedule  = "flowline.schedule"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceWorkflow  = "workflow_version"
	ResourceExecution = "execution"
	ResourceSchedule  = "schedule"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionWorkflowCreated,
		ActionWorkflowUpdated,
		ActionWorkflowPublished,
		ActionWorkflowDeprecated,
		ActionExecutionStarted,
		ActionExecutionCompleted,
		ActionExecutionFailed,
		ActionExecutionCancelled,
		ActionExecutionWaiting,
		ActionStepCompleted,
		ActionStepFailed,
		ActionStepRetried,
		ActionStepEscalated,
		ActionApprovalRequested,
		ActionCompensationStarted,
		ActionCompensationCompleted,
		ActionScheduleFired,
	}
}
