package resilience

import (
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("downstream down")

func TestNewBreakerDefaults(t *testing.T) {
	b := NewBreaker(Settings{Name: "test"})
	if b.threshold != 5 {
		t.Errorf("threshold = %d, want 5", b.threshold)
	}
	if b.cooldown != 30*time.Second {
		t.Errorf("cooldown = %v, want 30s", b.cooldown)
	}
	if b.probes != 3 {
		t.Errorf("probes = %d, want 3", b.probes)
	}
	if b.State() != Closed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreakerClosedForwardsCalls(t *testing.T) {
	b := NewBreaker(Settings{Name: "test"})
	called := false
	if err := b.Do(func() error { called = true; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("fn was not called")
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", Threshold: 3})
	for range 3 {
		if err := b.Do(func() error { return errDown }); !errors.Is(err, errDown) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}
	err := b.Do(func() error {
		t.Error("fn called while open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("error = %v, want ErrOpen", err)
	}
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", Threshold: 3})
	b.Do(func() error { return errDown })
	b.Do(func() error { return errDown })
	b.Do(func() error { return nil })
	b.Do(func() error { return errDown })
	b.Do(func() error { return errDown })
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerHalfOpenClosesAfterProbes(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", Threshold: 1, Cooldown: time.Millisecond, Probes: 2})
	b.Do(func() error { return errDown })
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(5 * time.Millisecond)
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	for range 2 {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe failed: %v", err)
		}
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", Threshold: 1, Cooldown: time.Millisecond})
	b.Do(func() error { return errDown })
	time.Sleep(5 * time.Millisecond)

	if err := b.Do(func() error { return errDown }); !errors.Is(err, errDown) {
		t.Fatalf("unexpected error: %v", err)
	}
	// Fresh failure timestamp means the cooldown restarts.
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("error = %v, want ErrOpen", err)
	}
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker(Settings{Name: "test", Threshold: 1})
	b.Do(func() error { return errDown })
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}
	b.Reset()
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("unexpected error after reset: %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.s.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.s, got, tc.want)
		}
	}
}
