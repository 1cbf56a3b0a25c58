package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy(cfg RetryConfig) (*RetryPolicy, *[]time.Duration) {
	p := NewRetryPolicy(cfg)

	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return p, &slept
}

func TestRetryDelaysAreExact(t *testing.T) {
	p, slept := newTestPolicy(RetryConfig{
		MaxRetries:        3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Minute,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	})

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		if calls <= 3 {
			return errDownstream
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, *slept)
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	p, slept := newTestPolicy(RetryConfig{
		MaxRetries:        2,
		BaseDelay:         100 * time.Millisecond,
		BackoffMultiplier: 2.0,
	})

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return errDownstream
	})

	assert.ErrorIs(t, err, errDownstream)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
	assert.Len(t, *slept, 2)
}

func TestRetryDelayCappedAtMax(t *testing.T) {
	p, slept := newTestPolicy(RetryConfig{
		MaxRetries:        4,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          300 * time.Millisecond,
		BackoffMultiplier: 2.0,
	})

	_ = p.Execute(context.Background(), func() error { return errDownstream })

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
	}, *slept)
}

func TestRetryJitterIsDeterministicWithFrozenRand(t *testing.T) {
	p, slept := newTestPolicy(RetryConfig{
		MaxRetries:        1,
		BaseDelay:         100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	})
	p.randF = func() float64 { return 0.5 }

	_ = p.Execute(context.Background(), func() error { return errDownstream })

	require.Len(t, *slept, 1)
	assert.Equal(t, 150*time.Millisecond, (*slept)[0])
}

func TestRetryDoesNotRetryCircuitOpen(t *testing.T) {
	p, slept := newTestPolicy(RetryConfig{MaxRetries: 5})

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return ErrCircuitOpen
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls, "open breaker must not be hammered")
	assert.Empty(t, *slept)
}

func TestRetryDoesNotRetryNonRetryableErrors(t *testing.T) {
	rejection := errors.New("insufficient funds")
	p, slept := newTestPolicy(RetryConfig{
		MaxRetries: 5,
		Retryable:  func(err error) bool { return !errors.Is(err, rejection) },
	})

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return rejection
	})

	assert.ErrorIs(t, err, rejection)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.Execute(ctx, func() error {
		calls++
		cancel()
		return errDownstream
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryComposesWithBreaker(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Hour)
	p, _ := newTestPolicy(RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond})

	calls := 0
	err := p.Execute(context.Background(), func() error {
		return cb.Execute(func() error {
			calls++
			return errDownstream
		})
	})

	// Three transient failures trip the breaker; the open-circuit error
	// then short-circuits the remaining retry budget.
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, calls)
	assert.Equal(t, StateOpen, cb.State())
}
