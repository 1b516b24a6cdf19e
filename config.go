package flowline

import "time"

// Config holds engine-wide execution defaults.
type Config struct {
	// DefaultStepTimeout bounds a single step's handler when the step
	// declares no timeout of its own.
	DefaultStepTimeout time.Duration

	// DefaultMaxIterations bounds LOOP steps that declare no limit.
	DefaultMaxIterations int

	// SchedulerTick is how often the scheduler checks for due jobs.
	SchedulerTick time.Duration

	// ScheduleLockTTL is the TTL for per-job distributed locks.
	ScheduleLockTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultStepTimeout:   30 * time.Second,
		DefaultMaxIterations: 100,
		SchedulerTick:        time.Minute,
		ScheduleLockTTL:      30 * time.Second,
	}
}
