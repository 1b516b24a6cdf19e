// Package execution defines workflow execution records, their status
// state machine, per-step audit records, the mutable execution context,
// and the execution store interface.
package execution

import (
	"fmt"
	"time"

	flowline "github.com/xraph/flowline"
	"github.com/xraph/flowline/id"
	"github.com/xraph/flowline/workflow"
)

// Status is the lifecycle state of an execution. Transitions are
// monotonic toward a terminal state; terminal states are immutable.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusRunning      Status = "RUNNING"
	StatusWaiting      Status = "WAITING"
	StatusCompensating Status = "COMPENSATING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCancelled    Status = "CANCELLED"
	StatusTimedOut     Status = "TIMED_OUT"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

var allowedTransitions = map[Status][]Status{
	StatusPending:      {StatusRunning, StatusCancelled},
	StatusRunning:      {StatusWaiting, StatusCompensating, StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusWaiting:      {StatusRunning, StatusCancelled, StatusFailed, StatusTimedOut},
	StatusCompensating: {StatusFailed, StatusCancelled},
}

// Error is the structured terminal error carried by FAILED, TIMED_OUT,
// and CANCELLED executions.
type Error struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

// Execution is one run of one published workflow version.
type Execution struct {
	flowline.Entity

	ID         id.ExecutionID `json:"id"`
	WorkflowID id.WorkflowID  `json:"workflowId"`
	VersionID  id.VersionID   `json:"versionId"`
	TenantID   string         `json:"tenantId"`

	// IdempotencyKey deduplicates start requests; empty means none.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`

	// CorrelationID threads tracing across systems.
	CorrelationID string `json:"correlationId,omitempty"`

	Status  Status           `json:"status"`
	Context *Context         `json:"context"`
	Steps   []*StepExecution `json:"steps"`

	// Error is set only in terminal failure states.
	Error *Error `json:"error,omitempty"`

	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// New creates a PENDING execution for one workflow version.
func New(def *workflow.Definition, ctx *Context, idempotencyKey string) *Execution {
	return &Execution{
		Entity:         flowline.NewEntity(),
		ID:             id.NewExecutionID(),
		WorkflowID:     def.ID,
		VersionID:      def.VersionID,
		TenantID:       def.TenantID,
		IdempotencyKey: idempotencyKey,
		CorrelationID:  id.NewEventID().String(),
		Status:         StatusPending,
		Context:        ctx,
	}
}

// TransitionTo moves the execution's status, enforcing monotonicity.
// Transitions out of a terminal state, self-transitions, and any other
// edge not in the state machine fail with ErrInvalidState.
func (e *Execution) TransitionTo(next Status) error {
	for _, allowed := range allowedTransitions[e.Status] {
		if allowed == next {
			e.Status = next
			e.Touch()
			now := time.Now()
			if next == StatusRunning && e.StartedAt == nil {
				e.StartedAt = &now
			}
			if next.Terminal() {
				e.FinishedAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("%w: execution %s cannot move %s -> %s",
		flowline.ErrInvalidState, e.ID, e.Status, next)
}

// Terminal reports whether the execution has reached a final state.
func (e *Execution) Terminal() bool { return e.Status.Terminal() }

// Duration returns wall time from start to finish, or zero when the
// execution has not finished.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(*e.StartedAt)
}

// StepStatus is the reduced status set for per-step records.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepWaiting   StepStatus = "WAITING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
)

// BranchResult records one PARALLEL branch's outcome.
type BranchResult struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// IterationResult records one LOOP iteration's outcome.
type IterationResult struct {
	Index   int            `json:"index"`
	Output  map[string]any `json:"output,omitempty"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
}

// StepExecution is the per-step audit record. It is created when a step
// begins and finalized when the step completes or exhausts retries.
type StepExecution struct {
	StepID   string            `json:"stepId"`
	StepName string            `json:"stepName"`
	Type     workflow.StepType `json:"type"`

	Status     StepStatus `json:"status"`
	RetryCount int        `json:"retryCount"`

	Input  map[string]any `json:"input,omitempty"`
	Output map[string]any `json:"output,omitempty"`

	Branches   []BranchResult    `json:"branches,omitempty"`
	Iterations []IterationResult `json:"iterations,omitempty"`

	Error *Error `json:"error,omitempty"`

	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// BeginStep appends a RUNNING step record and returns it.
func (e *Execution) BeginStep(step *workflow.Step) *StepExecution {
	rec := &StepExecution{
		StepID:    step.ID,
		StepName:  step.Name,
		Type:      step.Type,
		Status:    StepRunning,
		StartedAt: time.Now(),
	}
	e.Steps = append(e.Steps, rec)
	return rec
}

// Finish finalizes the record with a terminal step status.
func (s *StepExecution) Finish(status StepStatus, stepErr *Error) {
	now := time.Now()
	s.Status = status
	s.Error = stepErr
	s.FinishedAt = &now
}

// CompletedSteps returns the step records that finished successfully,
// in execution order. Compensation sweeps walk this in reverse.
func (e *Execution) CompletedSteps() []*StepExecution {
	var out []*StepExecution
	for _, s := range e.Steps {
		if s.Status == StepCompleted {
			out = append(out, s)
		}
	}
	return out
}
