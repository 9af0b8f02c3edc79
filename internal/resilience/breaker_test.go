package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker("amazon", BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         300 * time.Second,
		Window:           600 * time.Second,
	}, nil)
	b.now = func() time.Time { return current }
	return b, &current
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.State())
		*clock = clock.Add(time.Second)
	}

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	err := b.Allow()
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "amazon", openErr.Source)
	assert.Equal(t, 300*time.Second, openErr.CooldownRemaining)
}

func TestBreakerSuccessResetsWindow(t *testing.T) {
	b, _ := newTestBreaker(t)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()

	// Window cleared: four more failures should not trip it.
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerFailuresOutsideWindowPruned(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	// Old failures age out of the 600s window before the fifth arrives.
	*clock = clock.Add(601 * time.Second)
	b.RecordFailure()

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())

	*clock = clock.Add(299 * time.Second)
	assert.Equal(t, StateOpen, b.State())

	*clock = clock.Add(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*clock = clock.Add(300 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	// Cooldown restarted from the trial failure.
	var openErr *OpenError
	require.ErrorAs(t, b.Allow(), &openErr)
	assert.Equal(t, 300*time.Second, openErr.CooldownRemaining)
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(t)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*clock = clock.Add(300 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerDoRecordsNetOutcome(t *testing.T) {
	b, _ := newTestBreaker(t)
	boom := errors.New("boom")

	// One guarded call that internally failed counts as one failure.
	err := b.Do(context.Background(), func(context.Context) error { return boom })
	assert.Same(t, boom, err)

	err = b.Do(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerDoRejectsWhenOpen(t *testing.T) {
	b, _ := newTestBreaker(t)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	called := false
	err := b.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.False(t, called)
}
