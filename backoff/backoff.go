// Package backoff provides the retry delay policy applied to failed
// actions and the Strategy seam the scheduler uses for transient store
// errors. Everything here is stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ExponentialWithJitter doubles a base delay each attempt and spreads
// the result across [0, base], so retries triggered by the same outage
// fan out instead of stampeding.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// DefaultStrategy returns the backoff the scheduler applies when the
// schedule store fails mid-tick: exponential with full jitter, 1s
// initial, 1m cap.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 1*time.Minute)
}
