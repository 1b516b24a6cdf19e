package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	flowline "github.com/xraph/flowline"
	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/id"
)

// releaseScript deletes a lock key only when its value still matches
// the releasing owner, so an expired-and-reacquired lock is never
// removed by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// schedWorkflowField is the dedup-hash field for one scheduled workflow.
func schedWorkflowField(tenantID, workflowID string) string {
	return tenantID + ":" + workflowID
}

// RegisterSchedule persists a new job. A second job for the same
// workflow is rejected.
func (s *Store) RegisterSchedule(ctx context.Context, job *cron.Job) error {
	jID := job.ID.String()
	field := schedWorkflowField(job.TenantID, job.WorkflowID.String())

	existing, err := s.client.HGet(ctx, schedWorkflowsKey, field).Result()
	if err != nil && !isRedisNil(err) {
		return fmt.Errorf("flowline/redis: register schedule check: %w", err)
	}
	if existing != "" {
		return flowline.ErrDuplicateSchedule
	}

	if setErr := s.setEntity(ctx, schedKey(jID), job); setErr != nil {
		return fmt.Errorf("flowline/redis: register schedule set: %w", setErr)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, schedIDsKey, jID)
	pipe.HSet(ctx, schedWorkflowsKey, field, jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowline/redis: register schedule indexes: %w", err)
	}
	return nil
}

// GetSchedule retrieves a job by id.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*cron.Job, error) {
	var job cron.Job
	if err := s.getEntity(ctx, schedKey(scheduleID.String()), &job); err != nil {
		if isRedisNil(err) {
			return nil, flowline.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("flowline/redis: get schedule: %w", err)
	}
	return &job, nil
}

// ListSchedules returns every persisted job, oldest first. Malformed
// records are skipped.
func (s *Store) ListSchedules(ctx context.Context) ([]*cron.Job, error) {
	ids, err := s.client.SMembers(ctx, schedIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("flowline/redis: list schedules: %w", err)
	}

	jobs := make([]*cron.Job, 0, len(ids))
	for _, jID := range ids {
		var job cron.Job
		if getErr := s.getEntity(ctx, schedKey(jID), &job); getErr != nil {
			continue
		}
		jobs = append(jobs, &job)
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
	return jobs, nil
}

// UpdateSchedule persists changes to a job.
func (s *Store) UpdateSchedule(ctx context.Context, job *cron.Job) error {
	key := schedKey(job.ID.String())
	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("flowline/redis: update schedule exists: %w", err)
	}
	if !exists {
		return flowline.ErrScheduleNotFound
	}

	cp := *job
	cp.UpdatedAt = now()
	if setErr := s.setEntity(ctx, key, &cp); setErr != nil {
		return fmt.Errorf("flowline/redis: update schedule set: %w", setErr)
	}
	return nil
}

// DeleteSchedule removes a job, its dedup entry, and its lock.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	jID := scheduleID.String()
	key := schedKey(jID)

	var job cron.Job
	if err := s.getEntity(ctx, key, &job); err != nil {
		if isRedisNil(err) {
			return flowline.ErrScheduleNotFound
		}
		return fmt.Errorf("flowline/redis: delete schedule get: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, schedIDsKey, jID)
	pipe.HDel(ctx, schedWorkflowsKey, schedWorkflowField(job.TenantID, job.WorkflowID.String()))
	pipe.Del(ctx, schedLockKey(jID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowline/redis: delete schedule: %w", err)
	}
	return nil
}

// DeleteByWorkflow removes the job scheduled for a workflow, if any.
func (s *Store) DeleteByWorkflow(ctx context.Context, tenantID string, workflowID id.WorkflowID) error {
	field := schedWorkflowField(tenantID, workflowID.String())
	jID, err := s.client.HGet(ctx, schedWorkflowsKey, field).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil // nothing scheduled, no-op
		}
		return fmt.Errorf("flowline/redis: delete by workflow: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, schedKey(jID))
	pipe.SRem(ctx, schedIDsKey, jID)
	pipe.HDel(ctx, schedWorkflowsKey, field)
	pipe.Del(ctx, schedLockKey(jID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowline/redis: delete by workflow: %w", err)
	}
	return nil
}

// AcquireLock attempts a SET NX lock on one job. A lock already held by
// the same owner is extended.
func (s *Store) AcquireLock(ctx context.Context, scheduleID id.ScheduleID, owner string, ttl time.Duration) (bool, error) {
	key := schedLockKey(scheduleID.String())

	ok, err := s.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("flowline/redis: acquire lock: %w", err)
	}
	if ok {
		return true, nil
	}

	holder, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if isRedisNil(err) {
			// Expired between SETNX and GET; next tick retries.
			return false, nil
		}
		return false, fmt.Errorf("flowline/redis: acquire lock get: %w", err)
	}
	if holder != owner {
		return false, nil
	}

	// Re-acquire: extend the TTL.
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return false, fmt.Errorf("flowline/redis: acquire lock extend: %w", err)
	}
	return true, nil
}

// ReleaseLock removes the lock only if it still belongs to owner.
func (s *Store) ReleaseLock(ctx context.Context, scheduleID id.ScheduleID, owner string) error {
	key := schedLockKey(scheduleID.String())
	if err := releaseScript.Run(ctx, s.client, []string{key}, owner).Err(); err != nil && !isRedisNil(err) {
		return fmt.Errorf("flowline/redis: release lock: %w", err)
	}
	return nil
}
