package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	logger "github.com/sirupsen/logrus"
)

// RetryConfig configures a RetryPolicy.
type RetryConfig struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool

	// Retryable decides whether an error is worth another attempt. Nil
	// means every error is retryable. ErrCircuitOpen is never retried
	// regardless of this predicate.
	Retryable func(error) bool
}

// RetryPolicy wraps a call with bounded, exponentially backed-off retries.
// After exhausting MaxRetries the last error is returned unchanged, so a
// persistent fault is always observable to the caller.
type RetryPolicy struct {
	maxRetries        int
	baseDelay         time.Duration
	maxDelay          time.Duration
	backoffMultiplier float64
	jitter            bool
	retryable         func(error) bool

	sleep func(context.Context, time.Duration) error
	randF func() float64
}

// NewRetryPolicy builds a policy from the given config, applying defaults
// for zero values.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(err error) bool { return err != nil }
	}

	return &RetryPolicy{
		maxRetries:        cfg.MaxRetries,
		baseDelay:         cfg.BaseDelay,
		maxDelay:          cfg.MaxDelay,
		backoffMultiplier: cfg.BackoffMultiplier,
		jitter:            cfg.Jitter,
		retryable:         cfg.Retryable,
		sleep:             sleepCtx,
		randF:             rand.Float64,
	}
}

// Execute runs fn, retrying on retryable failures with exponential
// backoff. The context is checked before every attempt and during the
// backoff sleep; cancellation surfaces as ctx.Err().
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		// An open breaker means the dependency is systemically down.
		// Hammering it with backoff attempts is pure waste.
		if errors.Is(lastErr, ErrCircuitOpen) {
			return lastErr
		}

		if !p.retryable(lastErr) {
			return lastErr
		}

		if attempt > p.maxRetries {
			logger.WithFields(map[string]interface{}{
				"attempts": attempt,
			}).WithError(lastErr).Warn("retries exhausted")
			return lastErr
		}

		delay := p.delayFor(attempt)

		logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay,
		}).WithError(lastErr).Debug("retrying after transient failure")

		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// delayFor computes the backoff delay for the given 1-based attempt:
// min(maxDelay, baseDelay * multiplier^(attempt-1)), plus an optional
// random jitter fraction of the delay.
func (p *RetryPolicy) delayFor(attempt int) time.Duration {
	backoff := float64(p.baseDelay) * math.Pow(p.backoffMultiplier, float64(attempt-1))
	if backoff > float64(p.maxDelay) {
		backoff = float64(p.maxDelay)
	}

	if p.jitter {
		backoff += backoff * p.randF()
	}

	return time.Duration(backoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
