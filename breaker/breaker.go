// Package breaker provides a per-action-type circuit breaker that gates
// calls to unreliable external actions. Breakers track failures and slow
// calls, fail fast while a dependency is unhealthy, and probe it with a
// bounded number of trial calls before resuming traffic.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned when a call is rejected because the circuit is open.
// The downstream action was never invoked. Callers must not retry through
// the breaker on this error.
var ErrOpen = errors.New("breaker: circuit open")

// State is the position of a breaker's state machine.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Listener observes state transitions. It is invoked after the breaker's
// lock is released, so it may safely call back into the breaker.
type Listener func(name string, from, to State)

// Config tunes a breaker's trip and recovery behavior.
type Config struct {
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker, once VolumeThreshold requests have been observed.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker again.
	SuccessThreshold int

	// VolumeThreshold is the minimum request count before failure or
	// slow-call statistics can trip the breaker.
	VolumeThreshold int

	// SlowCallThreshold is the duration above which a call counts as slow.
	SlowCallThreshold time.Duration

	// SlowCallRateThreshold is the slow-call fraction (0..1) that trips
	// the breaker, once VolumeThreshold requests have been observed.
	SlowCallRateThreshold float64

	// ResetTimeout is how long the breaker stays open before the next
	// call is allowed through as a half-open trial.
	ResetTimeout time.Duration

	// HalfOpenRequests bounds how many trial calls may be in flight or
	// completed during one half-open period.
	HalfOpenRequests int
}

// DefaultConfig returns the breaker tuning used when none is supplied.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:      5,
		SuccessThreshold:      3,
		VolumeThreshold:       10,
		SlowCallThreshold:     5 * time.Second,
		SlowCallRateThreshold: 0.5,
		ResetTimeout:          30 * time.Second,
		HalfOpenRequests:      3,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = def.VolumeThreshold
	}
	if c.SlowCallThreshold <= 0 {
		c.SlowCallThreshold = def.SlowCallThreshold
	}
	if c.SlowCallRateThreshold <= 0 {
		c.SlowCallRateThreshold = def.SlowCallRateThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = def.ResetTimeout
	}
	if c.HalfOpenRequests <= 0 {
		c.HalfOpenRequests = def.HalfOpenRequests
	}
	return c
}

// Counts is a point-in-time snapshot of a breaker's statistics.
type Counts struct {
	Requests          int
	Failures          int
	SlowCalls         int
	HalfOpenSuccesses int
	LastFailure       time.Time
	LastSuccess       time.Time
}

// Breaker is a single circuit breaker. Safe for concurrent use; state is
// shared across every execution that invokes the same action type.
type Breaker struct {
	name     string
	cfg      Config
	listener Listener
	clock    func() time.Time

	mu             sync.Mutex
	state          State
	stateChangedAt time.Time
	requests       int
	failures       int
	slowCalls      int
	halfOpenTrials int
	halfOpenOKs    int
	lastFailure    time.Time
	lastSuccess    time.Time
}

// Option customizes a Breaker or every Breaker created by a Registry.
type Option func(*Breaker)

// WithListener registers a state-transition observer.
func WithListener(l Listener) Option {
	return func(b *Breaker) { b.listener = l }
}

// WithClock overrides the time source. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(b *Breaker) { b.clock = clock }
}

// New creates a closed Breaker named for the action type it protects.
func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:  name,
		cfg:   cfg.withDefaults(),
		clock: time.Now,
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.stateChangedAt = b.clock()
	return b
}

// Name returns the action type this breaker protects.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, promoting OPEN to HALF_OPEN if the
// reset timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.clock().Sub(b.stateChangedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Counts returns a snapshot of the breaker's statistics.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{
		Requests:          b.requests,
		Failures:          b.failures,
		SlowCalls:         b.slowCalls,
		HalfOpenSuccesses: b.halfOpenOKs,
		LastFailure:       b.lastFailure,
		LastSuccess:       b.lastSuccess,
	}
}

// Do runs fn through the breaker. When the circuit is open the call is
// rejected with ErrOpen and fn is never invoked; otherwise fn's error and
// elapsed time feed the breaker's statistics and the error is returned
// unchanged.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	tr, err := b.acquire()
	b.notify(tr)
	if err != nil {
		return err
	}

	start := b.clock()
	callErr := fn(ctx)
	tr = b.record(callErr, b.clock().Sub(start))
	b.notify(tr)
	return callErr
}

// Reset forces the breaker CLOSED and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	tr := b.transition(StateClosed)
	b.mu.Unlock()
	b.notify(tr)
}

// ForceOpen forces the breaker OPEN. The breaker recovers through the
// normal reset-timeout path.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	tr := b.transition(StateOpen)
	b.mu.Unlock()
	b.notify(tr)
}

type change struct {
	from, to State
}

func (b *Breaker) acquire() (*change, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.requests++
		return nil, nil

	case StateOpen:
		if b.clock().Sub(b.stateChangedAt) < b.cfg.ResetTimeout {
			return nil, fmt.Errorf("%w: %s", ErrOpen, b.name)
		}
		tr := b.transition(StateHalfOpen)
		b.halfOpenTrials++
		return tr, nil

	case StateHalfOpen:
		if b.halfOpenTrials >= b.cfg.HalfOpenRequests {
			return nil, fmt.Errorf("%w: %s", ErrOpen, b.name)
		}
		b.halfOpenTrials++
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrOpen, b.name)
	}
}

func (b *Breaker) record(callErr error, elapsed time.Duration) *change {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()

	switch b.state {
	case StateClosed:
		if elapsed > b.cfg.SlowCallThreshold {
			b.slowCalls++
		}
		if callErr != nil {
			b.failures++
			b.lastFailure = now
		} else {
			b.failures = 0
			b.lastSuccess = now
		}
		if b.shouldTrip() {
			return b.transition(StateOpen)
		}
		return nil

	case StateHalfOpen:
		if callErr != nil {
			b.lastFailure = now
			return b.transition(StateOpen)
		}
		b.lastSuccess = now
		b.halfOpenOKs++
		if b.halfOpenOKs >= b.cfg.SuccessThreshold {
			return b.transition(StateClosed)
		}
		return nil

	default:
		// Forced open while the call was in flight; the outcome no
		// longer feeds statistics.
		return nil
	}
}

func (b *Breaker) shouldTrip() bool {
	if b.requests < b.cfg.VolumeThreshold {
		return false
	}
	if b.failures >= b.cfg.FailureThreshold {
		return true
	}
	slowRate := float64(b.slowCalls) / float64(b.requests)
	return slowRate >= b.cfg.SlowCallRateThreshold
}

// transition moves the state machine and resets the counters the target
// state owns. Caller holds the lock.
func (b *Breaker) transition(to State) *change {
	if b.state == to {
		return nil
	}
	from := b.state
	b.state = to
	b.stateChangedAt = b.clock()

	switch to {
	case StateClosed:
		b.requests = 0
		b.failures = 0
		b.slowCalls = 0
		b.halfOpenTrials = 0
		b.halfOpenOKs = 0
	case StateHalfOpen:
		b.halfOpenTrials = 0
		b.halfOpenOKs = 0
	}

	return &change{from: from, to: to}
}

func (b *Breaker) notify(tr *change) {
	if tr == nil || b.listener == nil {
		return
	}
	b.listener(b.name, tr.from, tr.to)
}
