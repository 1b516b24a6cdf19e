package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/flowline/backoff"
)

func TestPolicy_BaseDelaySchedule(t *testing.T) {
	p := backoff.Policy{
		MaxAttempts:  3,
		InitialDelay: 1000 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     30000 * time.Millisecond,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{2, 2000 * time.Millisecond},
		{3, 4000 * time.Millisecond},
		{4, 8000 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.Base(tt.attempt); got != tt.want {
			t.Errorf("Base(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_BaseCapsAtMaxDelay(t *testing.T) {
	p := backoff.Policy{
		MaxAttempts:  10,
		InitialDelay: 1000 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     30000 * time.Millisecond,
	}

	// 1s * 2^9 = 512s, well past the 30s cap.
	if got := p.Base(10); got != 30*time.Second {
		t.Errorf("Base(10) = %v, want %v (capped)", got, 30*time.Second)
	}
}

func TestPolicy_DelayStaysWithinJitterBand(t *testing.T) {
	p := backoff.DefaultPolicy()

	base := p.Base(2)
	lo := time.Duration(float64(base) * 0.9)
	hi := time.Duration(float64(base) * 1.1)
	for range 200 {
		d := p.Delay(2)
		if d < lo || d > hi {
			t.Fatalf("Delay(2) = %v, want within [%v, %v]", d, lo, hi)
		}
	}
}

func TestPolicy_ZeroJitterIsDeterministic(t *testing.T) {
	p := backoff.Policy{InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}
	for range 10 {
		if got := p.Delay(3); got != 4*time.Second {
			t.Fatalf("Delay(3) = %v, want 4s", got)
		}
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := backoff.DefaultPolicy()
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if p.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want 1s", p.InitialDelay)
	}
	if p.Multiplier != 2 {
		t.Errorf("Multiplier = %v, want 2", p.Multiplier)
	}
	if p.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", p.MaxDelay)
	}
}
