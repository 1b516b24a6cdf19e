package cron

import (
	"context"
	"time"

	"github.com/xraph/flowline/id"
)

// Store defines the persistence contract for scheduled jobs and their
// distributed locks.
type Store interface {
	// RegisterSchedule persists a new job. A second job for the same
	// workflow is rejected.
	RegisterSchedule(ctx context.Context, job *Job) error

	// GetSchedule retrieves a job by id.
	GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*Job, error)

	// ListSchedules returns every persisted job. Malformed persisted
	// records are skipped, not fatal.
	ListSchedules(ctx context.Context) ([]*Job, error)

	// UpdateSchedule persists changes to a job (NextRun, LastRun, Enabled).
	UpdateSchedule(ctx context.Context, job *Job) error

	// DeleteSchedule removes a job by id.
	DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error

	// DeleteByWorkflow removes the job scheduled for a workflow, if any.
	// Used when a workflow is deprecated.
	DeleteByWorkflow(ctx context.Context, tenantID string, workflowID id.WorkflowID) error

	// AcquireLock attempts a set-if-absent lock on one job. Returns true
	// when this owner holds the lock; the lock expires after ttl.
	AcquireLock(ctx context.Context, scheduleID id.ScheduleID, owner string, ttl time.Duration) (bool, error)

	// ReleaseLock removes the lock only if it still belongs to owner.
	ReleaseLock(ctx context.Context, scheduleID id.ScheduleID, owner string) error
}
