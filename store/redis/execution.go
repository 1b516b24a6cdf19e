package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	flowline "github.com/xraph/flowline"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/id"
)

// CreateExecution persists a new execution and, when the execution
// carries an idempotency key, indexes it.
func (s *Store) CreateExecution(ctx context.Context, e *execution.Execution) error {
	eID := e.ID.String()
	key := execKey(eID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("flowline/redis: create execution exists: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: execution %s already exists", flowline.ErrInvalidState, eID)
	}

	if setErr := s.setEntity(ctx, key, e); setErr != nil {
		return fmt.Errorf("flowline/redis: create execution set: %w", setErr)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, execIDsKey(e.TenantID), eID)
	if e.IdempotencyKey != "" {
		pipe.HSet(ctx, idempotencyKey(e.TenantID), e.IdempotencyKey, eID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowline/redis: create execution indexes: %w", err)
	}
	return nil
}

// UpdateExecution persists changes to an existing execution. A record
// already in a terminal state is immutable and refuses the write.
func (s *Store) UpdateExecution(ctx context.Context, e *execution.Execution) error {
	key := execKey(e.ID.String())
	var cur execution.Execution
	if err := s.getEntity(ctx, key, &cur); err != nil {
		if isRedisNil(err) {
			return flowline.ErrExecutionNotFound
		}
		return fmt.Errorf("flowline/redis: update execution get: %w", err)
	}
	if cur.Status.Terminal() {
		return fmt.Errorf("%w: execution %s is %s", flowline.ErrInvalidState, e.ID, cur.Status)
	}

	cp := *e
	cp.UpdatedAt = now()
	if setErr := s.setEntity(ctx, key, &cp); setErr != nil {
		return fmt.Errorf("flowline/redis: update execution set: %w", setErr)
	}
	return nil
}

// GetExecution retrieves an execution by id.
func (s *Store) GetExecution(ctx context.Context, tenantID string, executionID id.ExecutionID) (*execution.Execution, error) {
	var e execution.Execution
	if err := s.getEntity(ctx, execKey(executionID.String()), &e); err != nil {
		if isRedisNil(err) {
			return nil, flowline.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("flowline/redis: get execution: %w", err)
	}
	if e.TenantID != tenantID {
		return nil, flowline.ErrExecutionNotFound
	}
	return &e, nil
}

// ListExecutions returns a workflow's executions, newest first.
func (s *Store) ListExecutions(ctx context.Context, tenantID string, workflowID id.WorkflowID, opts execution.ListOpts) ([]*execution.Execution, error) {
	all, err := s.loadExecutions(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := make([]*execution.Execution, 0, len(all))
	for _, e := range all {
		if e.WorkflowID != workflowID {
			continue
		}
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		result = append(result, e)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// FindByIdempotencyKey returns the execution previously started with
// the given key.
func (s *Store) FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*execution.Execution, error) {
	eID, err := s.client.HGet(ctx, idempotencyKey(tenantID), key).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, flowline.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("flowline/redis: find by idempotency key: %w", err)
	}

	var e execution.Execution
	if err := s.getEntity(ctx, execKey(eID), &e); err != nil {
		if isRedisNil(err) {
			return nil, flowline.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("flowline/redis: find by idempotency key get: %w", err)
	}
	return &e, nil
}

// CountActive returns the tenant's non-terminal execution count.
func (s *Store) CountActive(ctx context.Context, tenantID string) (int, error) {
	all, err := s.loadExecutions(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, e := range all {
		if !e.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

// CountStartedSince returns how many executions the tenant started at
// or after the given instant.
func (s *Store) CountStartedSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	all, err := s.loadExecutions(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, e := range all {
		if !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// loadExecutions reads every persisted execution of one tenant,
// skipping malformed records.
func (s *Store) loadExecutions(ctx context.Context, tenantID string) ([]*execution.Execution, error) {
	ids, err := s.client.SMembers(ctx, execIDsKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("flowline/redis: list executions: %w", err)
	}

	result := make([]*execution.Execution, 0, len(ids))
	for _, eID := range ids {
		var e execution.Execution
		if getErr := s.getEntity(ctx, execKey(eID), &e); getErr != nil {
			continue
		}
		result = append(result, &e)
	}
	return result, nil
}
