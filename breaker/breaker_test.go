package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/flowline/breaker"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testConfig() breaker.Config {
	return breaker.Config{
		FailureThreshold:      3,
		SuccessThreshold:      2,
		VolumeThreshold:       5,
		SlowCallThreshold:     time.Second,
		SlowCallRateThreshold: 0.5,
		ResetTimeout:          30 * time.Second,
		HalfOpenRequests:      2,
	}
}

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

// drive runs fn through the breaker n times, ignoring results.
func drive(t *testing.T, b *breaker.Breaker, n int, fn func(context.Context) error) {
	t.Helper()
	for i := 0; i < n; i++ {
		_ = b.Do(context.Background(), fn)
	}
}

func TestBreaker_TripsAtFailureThresholdWithVolume(t *testing.T) {
	clock := newFakeClock()
	b := breaker.New("http_request", testConfig(), breaker.WithClock(clock.Now))

	// Failures below the volume threshold never trip.
	drive(t, b, 2, ok)
	drive(t, b, 2, fail)
	if got := b.State(); got != breaker.StateClosed {
		t.Fatalf("state before volume threshold = %v, want CLOSED", got)
	}

	// The third consecutive failure lands at request #5 and trips.
	drive(t, b, 1, fail)
	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("state after threshold failures = %v, want OPEN", got)
	}
}

func TestBreaker_SuccessResetsFailureCounter(t *testing.T) {
	clock := newFakeClock()
	b := breaker.New("http_request", testConfig(), breaker.WithClock(clock.Now))

	drive(t, b, 2, fail)
	drive(t, b, 1, ok)
	drive(t, b, 2, fail)
	if got := b.State(); got != breaker.StateClosed {
		t.Fatalf("state = %v, want CLOSED (failures never consecutive enough)", got)
	}
}

func TestBreaker_SlowCallRateTrips(t *testing.T) {
	clock := newFakeClock()
	b := breaker.New("http_request", testConfig(), breaker.WithClock(clock.Now))

	slow := func(context.Context) error {
		clock.Advance(2 * time.Second)
		return nil
	}

	// 3 slow successes out of 5 requests: rate 0.6 >= 0.5.
	drive(t, b, 2, ok)
	drive(t, b, 3, slow)
	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("state after slow calls = %v, want OPEN", got)
	}
}

func TestBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	clock := newFakeClock()
	b := breaker.New("http_request", testConfig(), breaker.WithClock(clock.Now))
	b.ForceOpen()

	invoked := false
	err := b.Do(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("Do() error = %v, want ErrOpen", err)
	}
	if invoked {
		t.Fatal("handler must not run while circuit is open")
	}
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	clock := newFakeClock()
	b := breaker.New("http_request", testConfig(), breaker.WithClock(clock.Now))

	drive(t, b, 5, fail)
	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("state = %v, want OPEN", got)
	}

	clock.Advance(30 * time.Second)
	if got := b.State(); got != breaker.StateHalfOpen {
		t.Fatalf("state after reset timeout = %v, want HALF_OPEN", got)
	}

	// Two successes (the success threshold) close the circuit.
	if err := b.Do(context.Background(), ok); err != nil {
		t.Fatalf("first trial call: %v", err)
	}
	if err := b.Do(context.Background(), ok); err != nil {
		t.Fatalf("second trial call: %v", err)
	}
	if got := b.State(); got != breaker.StateClosed {
		t.Fatalf("state after trial successes = %v, want CLOSED", got)
	}

	counts := b.Counts()
	if counts.Requests != 0 || counts.Failures != 0 || counts.SlowCalls != 0 {
		t.Errorf("counters not reset on CLOSED transition: %+v", counts)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := breaker.New("http_request", testConfig(), breaker.WithClock(clock.Now))

	drive(t, b, 5, fail)
	clock.Advance(30 * time.Second)

	if err := b.Do(context.Background(), fail); !errors.Is(err, errBoom) {
		t.Fatalf("trial call error = %v, want boom", err)
	}
	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("state after half-open failure = %v, want OPEN", got)
	}

	// Still rejecting until another reset timeout elapses.
	if err := b.Do(context.Background(), ok); !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("Do() after reopen = %v, want ErrOpen", err)
	}
}

func TestBreaker_HalfOpenBoundsTrialCalls(t *testing.T) {
	clock := newFakeClock()
	b := breaker.New("http_request", testConfig(), breaker.WithClock(clock.Now))

	drive(t, b, 5, fail)
	clock.Advance(30 * time.Second)

	// HalfOpenRequests=2 with SuccessThreshold=2: one success leaves the
	// circuit half-open with one trial slot left; a hanging outcome would
	// leave further calls rejected.
	if err := b.Do(context.Background(), ok); err != nil {
		t.Fatalf("first trial: %v", err)
	}
	if err := b.Do(context.Background(), ok); err != nil {
		t.Fatalf("second trial: %v", err)
	}
	if got := b.State(); got != breaker.StateClosed {
		t.Fatalf("state = %v, want CLOSED", got)
	}
}

func TestBreaker_ResetForcesClosed(t *testing.T) {
	clock := newFakeClock()
	b := breaker.New("http_request", testConfig(), breaker.WithClock(clock.Now))

	b.ForceOpen()
	b.Reset()
	if got := b.State(); got != breaker.StateClosed {
		t.Fatalf("state after Reset = %v, want CLOSED", got)
	}
	if err := b.Do(context.Background(), ok); err != nil {
		t.Fatalf("Do() after Reset: %v", err)
	}
}

func TestBreaker_ListenerObservesTransitions(t *testing.T) {
	clock := newFakeClock()

	type hop struct{ from, to breaker.State }
	var hops []hop
	listener := func(name string, from, to breaker.State) {
		if name != "http_request" {
			t.Errorf("listener name = %q, want http_request", name)
		}
		hops = append(hops, hop{from, to})
	}

	b := breaker.New("http_request", testConfig(),
		breaker.WithClock(clock.Now), breaker.WithListener(listener))

	drive(t, b, 5, fail)
	clock.Advance(30 * time.Second)
	drive(t, b, 2, ok)

	want := []hop{
		{breaker.StateClosed, breaker.StateOpen},
		{breaker.StateOpen, breaker.StateHalfOpen},
		{breaker.StateHalfOpen, breaker.StateClosed},
	}
	if len(hops) != len(want) {
		t.Fatalf("transitions = %v, want %v", hops, want)
	}
	for i := range want {
		if hops[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, hops[i], want[i])
		}
	}
}

func TestRegistry_SharesBreakerPerActionType(t *testing.T) {
	r := breaker.NewRegistry(testConfig())

	if r.Get("send_email") != r.Get("send_email") {
		t.Fatal("same action type must resolve to the same breaker")
	}
	if r.Get("send_email") == r.Get("http_request") {
		t.Fatal("distinct action types must have independent breakers")
	}

	r.Get("send_email").ForceOpen()
	states := r.States()
	if states["send_email"] != breaker.StateOpen {
		t.Errorf("send_email state = %v, want OPEN", states["send_email"])
	}
	if states["http_request"] != breaker.StateClosed {
		t.Errorf("http_request state = %v, want CLOSED", states["http_request"])
	}
}
