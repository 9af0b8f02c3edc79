package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// OpenError is returned when a guarded call is rejected because the
// breaker is open. It carries the source name and the remaining cooldown
// so callers can surface a meaningful retry hint.
type OpenError struct {
	Source            string
	CooldownRemaining time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %q, retry in %.0fs",
		e.Source, e.CooldownRemaining.Seconds())
}

// BreakerConfig tunes a circuit breaker. Zero values fall back to defaults.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	Window           time.Duration
}

func (c *BreakerConfig) withDefaults() BreakerConfig {
	out := *c
	if out.FailureThreshold <= 0 {
		out.FailureThreshold = 5
	}
	if out.Cooldown <= 0 {
		out.Cooldown = 5 * time.Minute
	}
	if out.Window <= 0 {
		out.Window = 10 * time.Minute
	}
	return out
}

// Breaker tracks failures for one upstream source and gates calls to it.
//
// CLOSED: calls flow through; failures accumulate in a sliding window.
// OPEN: calls are rejected until the cooldown elapses.
// HALF_OPEN: one trial call is allowed; its outcome decides the next state.
//
// Cooldown expiry is observed lazily on the next state read, not by a
// timer.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures []time.Time
	openedAt time.Time

	now func() time.Time
}

// NewBreaker creates a breaker guarding the named source.
func NewBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "circuit_breaker", "source", name),
		state:  StateClosed,
		now:    time.Now,
	}
}

// Name returns the guarded source name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, transitioning OPEN to HALF_OPEN first
// when the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	if b.state == StateOpen {
		elapsed := b.now().Sub(b.openedAt)
		if elapsed >= b.cfg.Cooldown {
			b.state = StateHalfOpen
			b.logger.Info("breaker half-open after cooldown", "elapsed", elapsed.Round(time.Second))
		}
	}
	return b.state
}

// CooldownRemaining reports how long until an open breaker allows a trial
// call. Zero when the breaker is not open.
func (b *Breaker) CooldownRemaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cooldownRemainingLocked()
}

func (b *Breaker) cooldownRemainingLocked() time.Duration {
	if b.state != StateOpen {
		return 0
	}
	remaining := b.cfg.Cooldown - b.now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordSuccess clears the failure window and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.logger.Info("breaker closed after successful trial call")
	}
	b.state = StateClosed
	b.failures = b.failures[:0]
}

// RecordFailure appends a failure and may trip the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.failures = append(b.failures, now)
	b.pruneLocked(now)

	switch {
	case b.state == StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
		b.logger.Warn("breaker re-opened, trial call failed")
	case len(b.failures) >= b.cfg.FailureThreshold:
		b.state = StateOpen
		b.openedAt = now
		b.logger.Warn("breaker opened",
			"failures", len(b.failures),
			"window", b.cfg.Window)
	}
}

func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

// Allow checks whether a guarded call may proceed. It returns an
// *OpenError when the breaker is open. A HALF_OPEN breaker admits the
// call as its single trial.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case StateOpen:
		return &OpenError{Source: b.name, CooldownRemaining: b.cooldownRemainingLocked()}
	case StateHalfOpen:
		b.logger.Info("breaker allowing trial call")
	}
	return nil
}

// Do guards fn with the breaker: it rejects immediately when open and
// records fn's outcome on return. The underlying error is never
// suppressed or wrapped.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
