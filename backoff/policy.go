package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy is the per-step retry policy applied when an action fails with a
// retryable error. Unlike a Strategy it also carries the attempt budget.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `json:"maxAttempts"`

	// InitialDelay seeds the exponential schedule.
	InitialDelay time.Duration `json:"initialDelay"`

	// Multiplier grows the delay between consecutive attempts.
	Multiplier float64 `json:"backoffMultiplier"`

	// MaxDelay caps the base delay before jitter.
	MaxDelay time.Duration `json:"maxDelay"`

	// Jitter is the symmetric random fraction applied to the base delay,
	// e.g. 0.1 spreads each delay across ±10%.
	Jitter float64 `json:"jitter"`
}

// DefaultPolicy returns the retry policy used when a step declares none:
// 3 attempts, 1s initial delay, 2x multiplier, 30s cap, ±10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     30 * time.Second,
		Jitter:       0.1,
	}
}

// Base returns the pre-jitter delay before the given attempt (2-indexed:
// attempt 2 is the first retry). Base = InitialDelay * Multiplier^(attempt-1),
// capped at MaxDelay.
func (p Policy) Base(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := time.Duration(float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Delay returns the jittered delay before the given attempt.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.Base(attempt)
	if p.Jitter <= 0 {
		return base
	}
	spread := 1 - p.Jitter + 2*p.Jitter*rand.Float64() //nolint:gosec // jitter intentionally uses non-crypto rand
	return time.Duration(float64(base) * spread)
}

var _ Strategy = Policy{}
