package executor

import (
	"fmt"
	"time"
)

// Suspend reasons. An execution parked with one of these resumes through
// the engine: an approval decision, a timer firing, or a child workflow
// finishing.
const (
	SuspendApproval      = "APPROVAL"
	SuspendDelayUntil    = "DELAY_UNTIL"
	SuspendDelaySchedule = "DELAY_SCHEDULE"
	SuspendSubworkflow   = "SUBWORKFLOW"
)

// SuspendError signals that an execution cannot proceed synchronously
// and must be parked in WAITING until an external continuation arrives.
// It is not a failure.
type SuspendError struct {
	// Reason is one of the Suspend* constants.
	Reason string

	// StepID is the step that requested the suspension.
	StepID string

	// ResumeAt is set for timer suspensions.
	ResumeAt *time.Time

	// WorkflowID and Input are set for subworkflow suspensions, so the
	// engine can start the child.
	WorkflowID string
	Input      map[string]any
}

func (e *SuspendError) Error() string {
	return fmt.Sprintf("execution suspended at step %s: %s", e.StepID, e.Reason)
}
