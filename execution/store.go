package execution

import (
	"context"
	"time"

	"github.com/xraph/flowline/id"
)

// ListOpts controls pagination for execution list queries.
type ListOpts struct {
	// Limit is the maximum number of executions to return. Zero means
	// no limit.
	Limit int
	// Offset is the number of executions to skip.
	Offset int
	// Status filters by execution status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for executions. All lookups
// are tenant-scoped.
type Store interface {
	// CreateExecution persists a new execution.
	CreateExecution(ctx context.Context, e *Execution) error

	// UpdateExecution persists changes to an existing execution.
	UpdateExecution(ctx context.Context, e *Execution) error

	// GetExecution retrieves an execution by id.
	GetExecution(ctx context.Context, tenantID string, executionID id.ExecutionID) (*Execution, error)

	// ListExecutions returns a workflow's executions, newest first.
	ListExecutions(ctx context.Context, tenantID string, workflowID id.WorkflowID, opts ListOpts) ([]*Execution, error)

	// FindByIdempotencyKey returns the execution previously started with
	// the given key, or ErrExecutionNotFound.
	FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*Execution, error)

	// CountActive returns the tenant's non-terminal execution count.
	// Used for the concurrency quota.
	CountActive(ctx context.Context, tenantID string) (int, error)

	// CountStartedSince returns how many executions the tenant started
	// at or after the given instant. Used for the hourly-rate quota.
	CountStartedSince(ctx context.Context, tenantID string, since time.Time) (int, error)
}
