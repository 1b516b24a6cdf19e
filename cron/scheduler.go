package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/flowline/backoff"
)

// TriggerFunc starts an execution of the scheduled workflow. The engine
// provides the implementation; the indirection breaks the import cycle.
type TriggerFunc func(ctx context.Context, job *Job) error

// Emitter observes schedule firings. ext.Registry satisfies this via
// EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, job *Job)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler evaluates due jobs.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLockTTL sets the TTL for per-job distributed locks.
func WithLockTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.lockTTL = d }
}

// WithEmitter registers a firing observer.
func WithEmitter(e Emitter) SchedulerOption {
	return func(s *Scheduler) { s.emitter = e }
}

// WithClock overrides the time source. Used by tests.
func WithClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.clock = clock }
}

// WithStoreRetry sets the backoff and attempt budget applied when
// listing schedules fails mid-tick.
func WithStoreRetry(strategy backoff.Strategy, attempts int) SchedulerOption {
	return func(s *Scheduler) {
		s.storeRetry = strategy
		s.storeAttempts = attempts
	}
}

// Scheduler fires due jobs on a tick loop. Multiple instances may run
// concurrently; the per-job lock guarantees each due run fires once.
type Scheduler struct {
	store      Store
	trigger    TriggerFunc
	emitter    Emitter
	instanceID string
	logger     *slog.Logger
	clock      func() time.Time

	tickInterval time.Duration
	lockTTL      time.Duration

	storeRetry    backoff.Strategy
	storeAttempts int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler. instanceID identifies this process
// as a lock owner and must be unique across scheduler instances.
func NewScheduler(store Store, trigger TriggerFunc, instanceID string, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:         store,
		trigger:       trigger,
		instanceID:    instanceID,
		logger:        logger,
		clock:         time.Now,
		tickInterval:  time.Minute,
		lockTTL:       30 * time.Second,
		storeRetry:    backoff.DefaultStrategy(),
		storeAttempts: 3,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick loop.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("workflow scheduler started",
		slog.String("instance_id", s.instanceID),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the loop to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("workflow scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(context.Background())
		}
	}
}

// Tick evaluates every persisted job once and fires the due ones.
func (s *Scheduler) Tick(ctx context.Context) {
	jobs, err := s.listSchedules(ctx)
	if err != nil {
		s.logger.Error("list schedules error", slog.String("error", err.Error()))
		return
	}

	now := s.clock().UTC()
	for _, job := range jobs {
		if !job.Due(now) {
			continue
		}
		s.fire(ctx, job, now)
	}
}

// listSchedules retries transient store failures so one blip does not
// skip a whole scheduling interval.
func (s *Scheduler) listSchedules(ctx context.Context) ([]*Job, error) {
	for attempt := 1; ; attempt++ {
		jobs, err := s.store.ListSchedules(ctx)
		if err == nil {
			return jobs, nil
		}
		if attempt >= s.storeAttempts {
			return nil, err
		}
		s.logger.Warn("list schedules error, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(s.storeRetry.Delay(attempt)):
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, job *Job, now time.Time) {
	acquired, err := s.store.AcquireLock(ctx, job.ID, s.instanceID, s.lockTTL)
	if err != nil {
		s.logger.Error("acquire schedule lock error",
			slog.String("schedule_id", job.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !acquired {
		return // Another instance got it.
	}
	defer func() {
		if relErr := s.store.ReleaseLock(ctx, job.ID, s.instanceID); relErr != nil {
			s.logger.Error("release schedule lock error",
				slog.String("schedule_id", job.ID.String()),
				slog.String("error", relErr.Error()),
			)
		}
	}()

	// Re-read under the lock: our listing may carry a stale next-run
	// that another instance already advanced.
	fresh, err := s.store.GetSchedule(ctx, job.ID)
	if err != nil {
		s.logger.Error("reload schedule error",
			slog.String("schedule_id", job.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !fresh.Due(now) {
		return
	}

	if trigErr := s.trigger(ctx, fresh); trigErr != nil {
		s.logger.Error("schedule trigger error",
			slog.String("schedule_id", fresh.ID.String()),
			slog.String("workflow_id", fresh.WorkflowID.String()),
			slog.String("error", trigErr.Error()),
		)
		// Fall through: the next run is still advanced so a persistently
		// failing workflow does not refire every tick.
	}

	fired := now
	fresh.LastRun = &fired

	next, nextErr := Next(fresh.Expression, fresh.Timezone, now)
	if nextErr != nil {
		// A persisted expression that no longer parses would refire
		// forever; disable it instead.
		s.logger.Error("schedule recompute error, disabling job",
			slog.String("schedule_id", fresh.ID.String()),
			slog.String("expression", fresh.Expression),
			slog.String("error", nextErr.Error()),
		)
		fresh.Enabled = false
	} else {
		fresh.NextRun = next
	}
	fresh.Touch()

	if updErr := s.store.UpdateSchedule(ctx, fresh); updErr != nil {
		s.logger.Error("update schedule error",
			slog.String("schedule_id", fresh.ID.String()),
			slog.String("error", updErr.Error()),
		)
		return
	}

	if s.emitter != nil {
		s.emitter.EmitScheduleFired(ctx, fresh)
	}

	s.logger.Info("schedule fired",
		slog.String("schedule_id", fresh.ID.String()),
		slog.String("workflow_id", fresh.WorkflowID.String()),
		slog.Time("next_run", fresh.NextRun),
	)
}
