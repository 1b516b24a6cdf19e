package flowline

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("flowline: no store configured")
	ErrStoreClosed = errors.New("flowline: store closed")

	// Not found errors.
	ErrWorkflowNotFound  = errors.New("flowline: workflow not found")
	ErrVersionNotFound   = errors.New("flowline: workflow version not found")
	ErrExecutionNotFound = errors.New("flowline: execution not found")
	ErrScheduleNotFound  = errors.New("flowline: scheduled job not found")

	// Conflict errors.
	ErrDuplicateSchedule = errors.New("flowline: duplicate scheduled job")

	// State errors.
	ErrInvalidState = errors.New("flowline: invalid state transition")

	// Quota errors.
	ErrQuotaExceeded = errors.New("flowline: quota exceeded")
)
