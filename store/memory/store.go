// Package memory provides a fully in-memory store.Store implementation.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	flowline "github.com/xraph/flowline"
	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/id"
	"github.com/xraph/flowline/workflow"
)

// Ensure Store implements store.Store at compile time, one subsystem at
// a time.
var (
	_ workflow.Store  = (*Store)(nil)
	_ execution.Store = (*Store)(nil)
	_ cron.Store      = (*Store)(nil)
)

// lease is one held schedule lock.
type lease struct {
	owner string
	until time.Time
}

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	defs       map[string]*workflow.Definition // key: version id
	executions map[string]*execution.Execution // key: execution id
	schedules  map[string]*cron.Job            // key: schedule id
	locks      map[string]lease                // key: schedule id

	// idempotency maps "tenant\x00key" to an execution id.
	idempotency map[string]string
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		defs:        make(map[string]*workflow.Definition),
		executions:  make(map[string]*execution.Execution),
		schedules:   make(map[string]*cron.Job),
		locks:       make(map[string]lease),
		idempotency: make(map[string]string),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Ping / Close
// ──────────────────────────────────────────────────

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Workflow Store
// ──────────────────────────────────────────────────

// CreateDefinition persists a new workflow version.
func (m *Store) CreateDefinition(_ context.Context, def *workflow.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := def.VersionID.String()
	if _, exists := m.defs[key]; exists {
		return fmt.Errorf("%w: version %s already exists", flowline.ErrInvalidState, key)
	}
	m.defs[key] = copyDefinition(def)
	return nil
}

// UpdateDefinition persists changes to an existing version.
func (m *Store) UpdateDefinition(_ context.Context, def *workflow.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := def.VersionID.String()
	if _, ok := m.defs[key]; !ok {
		return flowline.ErrVersionNotFound
	}
	cp := copyDefinition(def)
	cp.UpdatedAt = time.Now().UTC()
	m.defs[key] = cp
	return nil
}

// GetDefinition retrieves the latest version of a workflow.
func (m *Store) GetDefinition(_ context.Context, tenantID string, workflowID id.WorkflowID) (*workflow.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := m.latestVersion(tenantID, workflowID)
	if latest == nil {
		return nil, flowline.ErrWorkflowNotFound
	}
	return copyDefinition(latest), nil
}

// GetVersion retrieves one specific workflow version.
func (m *Store) GetVersion(_ context.Context, tenantID string, versionID id.VersionID) (*workflow.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.defs[versionID.String()]
	if !ok || def.TenantID != tenantID {
		return nil, flowline.ErrVersionNotFound
	}
	return copyDefinition(def), nil
}

// ListDefinitions returns the latest version of each workflow owned by a
// tenant, oldest workflow first.
func (m *Store) ListDefinitions(_ context.Context, tenantID string, opts workflow.ListOpts) ([]*workflow.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[string]*workflow.Definition)
	for _, def := range m.defs {
		if def.TenantID != tenantID {
			continue
		}
		key := def.ID.String()
		if cur, ok := latest[key]; !ok || def.Version > cur.Version {
			latest[key] = def
		}
	}

	result := make([]*workflow.Definition, 0, len(latest))
	for _, def := range latest {
		if opts.Status != "" && def.Status != opts.Status {
			continue
		}
		result = append(result, copyDefinition(def))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// ListVersions returns every version of one workflow, oldest first.
func (m *Store) ListVersions(_ context.Context, tenantID string, workflowID id.WorkflowID) ([]*workflow.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*workflow.Definition
	for _, def := range m.defs {
		if def.TenantID == tenantID && def.ID == workflowID {
			result = append(result, copyDefinition(def))
		}
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].Version < result[k].Version
	})
	return result, nil
}

// CountDefinitions returns the number of distinct workflows a tenant owns.
func (m *Store) CountDefinitions(_ context.Context, tenantID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, def := range m.defs {
		if def.TenantID == tenantID {
			seen[def.ID.String()] = struct{}{}
		}
	}
	return len(seen), nil
}

// CountVersions returns the number of versions of one workflow.
func (m *Store) CountVersions(_ context.Context, tenantID string, workflowID id.WorkflowID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, def := range m.defs {
		if def.TenantID == tenantID && def.ID == workflowID {
			count++
		}
	}
	return count, nil
}

// latestVersion returns the stored definition with the highest version
// number, or nil. Caller holds m.mu.
func (m *Store) latestVersion(tenantID string, workflowID id.WorkflowID) *workflow.Definition {
	var latest *workflow.Definition
	for _, def := range m.defs {
		if def.TenantID != tenantID || def.ID != workflowID {
			continue
		}
		if latest == nil || def.Version > latest.Version {
			latest = def
		}
	}
	return latest
}

// ──────────────────────────────────────────────────
// Execution Store
// ──────────────────────────────────────────────────

// CreateExecution persists a new execution and, when the execution
// carries an idempotency key, indexes it.
func (m *Store) CreateExecution(_ context.Context, e *execution.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.ID.String()
	if _, exists := m.executions[key]; exists {
		return fmt.Errorf("%w: execution %s already exists", flowline.ErrInvalidState, key)
	}
	m.executions[key] = copyExecution(e)
	if e.IdempotencyKey != "" {
		m.idempotency[idempotencyKey(e.TenantID, e.IdempotencyKey)] = key
	}
	return nil
}

// UpdateExecution persists changes to an existing execution. A record
// already in a terminal state is immutable and refuses the write.
func (m *Store) UpdateExecution(_ context.Context, e *execution.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.ID.String()
	cur, ok := m.executions[key]
	if !ok {
		return flowline.ErrExecutionNotFound
	}
	if cur.Status.Terminal() {
		return fmt.Errorf("%w: execution %s is %s", flowline.ErrInvalidState, key, cur.Status)
	}
	cp := copyExecution(e)
	cp.UpdatedAt = time.Now().UTC()
	m.executions[key] = cp
	return nil
}

// GetExecution retrieves an execution by id.
func (m *Store) GetExecution(_ context.Context, tenantID string, executionID id.ExecutionID) (*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.executions[executionID.String()]
	if !ok || e.TenantID != tenantID {
		return nil, flowline.ErrExecutionNotFound
	}
	return copyExecution(e), nil
}

// ListExecutions returns a workflow's executions, newest first.
func (m *Store) ListExecutions(_ context.Context, tenantID string, workflowID id.WorkflowID, opts execution.ListOpts) ([]*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*execution.Execution
	for _, e := range m.executions {
		if e.TenantID != tenantID || e.WorkflowID != workflowID {
			continue
		}
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		result = append(result, copyExecution(e))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// FindByIdempotencyKey returns the execution previously started with the
// given key.
func (m *Store) FindByIdempotencyKey(_ context.Context, tenantID, key string) (*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	execID, ok := m.idempotency[idempotencyKey(tenantID, key)]
	if !ok {
		return nil, flowline.ErrExecutionNotFound
	}
	e, ok := m.executions[execID]
	if !ok {
		return nil, flowline.ErrExecutionNotFound
	}
	return copyExecution(e), nil
}

// CountActive returns the tenant's non-terminal execution count.
func (m *Store) CountActive(_ context.Context, tenantID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.executions {
		if e.TenantID == tenantID && !e.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

// CountStartedSince returns how many executions the tenant started at or
// after the given instant.
func (m *Store) CountStartedSince(_ context.Context, tenantID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.executions {
		if e.TenantID == tenantID && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Cron Store
// ──────────────────────────────────────────────────

// RegisterSchedule persists a new job. A second job for the same
// workflow is rejected.
func (m *Store) RegisterSchedule(_ context.Context, job *cron.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := job.ID.String()
	if _, exists := m.schedules[key]; exists {
		return flowline.ErrDuplicateSchedule
	}
	for _, j := range m.schedules {
		if j.TenantID == job.TenantID && j.WorkflowID == job.WorkflowID {
			return flowline.ErrDuplicateSchedule
		}
	}
	cp := *job
	m.schedules[key] = &cp
	return nil
}

// GetSchedule retrieves a job by id.
func (m *Store) GetSchedule(_ context.Context, scheduleID id.ScheduleID) (*cron.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.schedules[scheduleID.String()]
	if !ok {
		return nil, flowline.ErrScheduleNotFound
	}
	cp := *j
	return &cp, nil
}

// ListSchedules returns every persisted job, oldest first.
func (m *Store) ListSchedules(_ context.Context) ([]*cron.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cron.Job, 0, len(m.schedules))
	for _, j := range m.schedules {
		cp := *j
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// UpdateSchedule persists changes to a job.
func (m *Store) UpdateSchedule(_ context.Context, job *cron.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := job.ID.String()
	if _, ok := m.schedules[key]; !ok {
		return flowline.ErrScheduleNotFound
	}
	cp := *job
	cp.UpdatedAt = time.Now().UTC()
	m.schedules[key] = &cp
	return nil
}

// DeleteSchedule removes a job and its lock by id.
func (m *Store) DeleteSchedule(_ context.Context, scheduleID id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scheduleID.String()
	if _, ok := m.schedules[key]; !ok {
		return flowline.ErrScheduleNotFound
	}
	delete(m.schedules, key)
	delete(m.locks, key)
	return nil
}

// DeleteByWorkflow removes the job scheduled for a workflow, if any.
func (m *Store) DeleteByWorkflow(_ context.Context, tenantID string, workflowID id.WorkflowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, j := range m.schedules {
		if j.TenantID == tenantID && j.WorkflowID == workflowID {
			delete(m.schedules, key)
			delete(m.locks, key)
		}
	}
	return nil
}

// AcquireLock attempts a set-if-absent lock on one job. A lock held by
// the same owner is extended; a live lock held by another owner wins.
func (m *Store) AcquireLock(_ context.Context, scheduleID id.ScheduleID, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scheduleID.String()
	now := time.Now().UTC()
	if l, ok := m.locks[key]; ok && l.until.After(now) && l.owner != owner {
		return false, nil
	}
	m.locks[key] = lease{owner: owner, until: now.Add(ttl)}
	return true, nil
}

// ReleaseLock removes the lock only if it still belongs to owner.
func (m *Store) ReleaseLock(_ context.Context, scheduleID id.ScheduleID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scheduleID.String()
	if l, ok := m.locks[key]; ok && l.owner == owner {
		delete(m.locks, key)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func idempotencyKey(tenantID, key string) string {
	return tenantID + "\x00" + key
}

// copyDefinition returns a copy whose step slice is detached, so callers
// can mutate without racing with the store.
func copyDefinition(def *workflow.Definition) *workflow.Definition {
	cp := *def
	cp.Steps = make([]workflow.Step, len(def.Steps))
	copy(cp.Steps, def.Steps)
	return &cp
}

// copyExecution detaches the step-record slice. The records themselves
// are shared; callers treat stored executions as read-only snapshots.
func copyExecution(e *execution.Execution) *execution.Execution {
	cp := *e
	cp.Steps = make([]*execution.StepExecution, len(e.Steps))
	copy(cp.Steps, e.Steps)
	return &cp
}

// paginate applies offset/limit to a sorted result slice.
func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
