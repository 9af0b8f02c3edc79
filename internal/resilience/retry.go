package resilience

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// RetryConfig tunes a Retryer. Zero values fall back to defaults.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	JitterPct  float64
}

func (c *RetryConfig) withDefaults() RetryConfig {
	out := *c
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = 2 * time.Second
	}
	if out.Multiplier <= 0 {
		out.Multiplier = 2.0
	}
	if out.JitterPct <= 0 {
		out.JitterPct = 0.25
	}
	return out
}

// Retryer re-invokes a fallible operation with exponential backoff and
// jitter. An operation runs at most MaxRetries+1 times. Failures the
// retryable predicate rejects propagate immediately; an exhausted budget
// re-raises the last failure unchanged.
type Retryer struct {
	cfg       RetryConfig
	retryable func(error) bool
	logger    *slog.Logger

	randFloat func() float64
}

// NewRetryer creates a Retryer. A nil retryable predicate retries every
// failure.
func NewRetryer(cfg RetryConfig, retryable func(error) bool, logger *slog.Logger) *Retryer {
	if retryable == nil {
		retryable = func(error) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retryer{
		cfg:       cfg.withDefaults(),
		retryable: retryable,
		logger:    logger.With("component", "retryer"),
		randFloat: rand.Float64,
	}
}

// Do runs op until it succeeds, fails non-retryably, exhausts the attempt
// budget, or ctx is cancelled. Backoff sleeps honor ctx.
func (r *Retryer) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.retryable(err) {
			return err
		}
		if attempt == r.cfg.MaxRetries {
			r.logger.Error("retries exhausted",
				"attempts", r.cfg.MaxRetries+1,
				"error", err)
			return err
		}

		delay := r.backoff(attempt)
		r.logger.Warn("attempt failed, backing off",
			"attempt", attempt+1,
			"of", r.cfg.MaxRetries+1,
			"delay", delay.Round(time.Millisecond),
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// backoff computes delay = base * multiplier^attempt, then applies jitter
// of delay * jitterPct * U(-1,1), floored at zero.
func (r *Retryer) backoff(attempt int) time.Duration {
	delay := float64(r.cfg.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= r.cfg.Multiplier
	}
	jitter := delay * r.cfg.JitterPct * (2*r.randFloat() - 1)
	actual := delay + jitter
	if actual < 0 {
		actual = 0
	}
	return time.Duration(actual)
}
