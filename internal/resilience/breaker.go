// Package resilience implements a three-state circuit breaker used to guard
// calls against an unhealthy downstream. The breaker moves from closed to open
// after a run of consecutive failures, waits out a cooldown, then probes the
// downstream through a half-open state before closing again.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects every call with [ErrOpen] until the cooldown elapses.
	Open

	// HalfOpen lets a bounded number of probe calls through. Probes that all
	// succeed close the breaker; a single failure re-opens it.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Settings configures a [Breaker]. Zero-value fields get defaults.
type Settings struct {
	// Name labels the breaker in log output.
	Name string

	// Threshold is the number of consecutive failures that trips the breaker.
	// Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open before probing. Default: 30s.
	Cooldown time.Duration

	// Probes is how many half-open calls must succeed to close. Default: 3.
	Probes int

	// Logger receives state transition events. Default: slog.Default().
	Logger *slog.Logger
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	probes    int
	log       *slog.Logger

	mu         sync.Mutex
	state      State
	failures   int
	lastFail   time.Time
	probeCalls int
	probeFails int
}

// NewBreaker creates a [Breaker] from s, filling in defaults for zero fields.
func NewBreaker(s Settings) *Breaker {
	if s.Threshold <= 0 {
		s.Threshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Probes <= 0 {
		s.Probes = 3
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	return &Breaker{
		name:      s.Name,
		threshold: s.Threshold,
		cooldown:  s.Cooldown,
		probes:    s.Probes,
		log:       s.Logger,
		state:     Closed,
	}
}

// Do runs fn if the breaker allows it. While open it returns [ErrOpen] without
// calling fn; while half-open only the configured number of probes get through.
// fn's error is returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.lastFail) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.probeCalls = 0
		b.probeFails = 0
		b.log.Info("circuit half-open", "breaker", b.name)

	case HalfOpen:
		if b.probeCalls >= b.probes {
			b.mu.Unlock()
			return ErrOpen
		}
	}

	probing := b.state == HalfOpen
	if probing {
		b.probeCalls++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.lastFail = time.Now()

	if probing {
		b.probeFails++
		b.state = Open
		b.failures = b.threshold
		b.log.Warn("circuit re-opened", "breaker", b.name)
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = Open
		b.log.Warn("circuit opened", "breaker", b.name, "failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probeCalls-b.probeFails >= b.probes {
			b.state = Closed
			b.failures = 0
			b.probeCalls = 0
			b.probeFails = 0
			b.log.Info("circuit closed", "breaker", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's current state. An open breaker whose cooldown
// has elapsed reports [HalfOpen]; the transition itself happens on the next
// [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.lastFail) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [Closed] and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probeCalls = 0
	b.probeFails = 0
	b.log.Info("circuit reset", "breaker", b.name)
}
