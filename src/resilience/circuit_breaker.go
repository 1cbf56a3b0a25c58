package resilience

import (
	"errors"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// Circuit breaker states.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// ErrCircuitOpen is returned without invoking the wrapped call while the
// breaker is open. It signals systemic unavailability of the dependency
// and must never be retried by the backoff wrapper nor counted against an
// individual order's retry budget.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig configures one CircuitBreaker instance.
type BreakerConfig struct {
	// Name identifies the guarded dependency in logs, e.g. "kite_orders".
	Name string

	// FailureThreshold is the number of consecutive qualifying failures
	// before the breaker opens.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open before admitting
	// a single half-open trial call.
	RecoveryTimeout time.Duration

	// IsFailure decides whether an error counts toward the threshold.
	// Errors it rejects propagate to the caller without affecting breaker
	// state. Nil means every non-nil error qualifies.
	IsFailure func(error) bool
}

// CircuitBreaker guards one external call category, failing fast while the
// downstream dependency is persistently unhealthy.
//
// The mutex is held only around state reads/writes, never around the
// wrapped call, so a slow downstream call does not block state checks.
// The tradeoff is that a burst of concurrent calls while half-open can all
// be admitted; callers are expected to serialize through one breaker
// instance per dependency.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	isFailure        func(error) bool

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	lastFailureTime time.Time

	now func() time.Time
}

// NewCircuitBreaker builds a closed breaker from the given config,
// applying defaults for zero values.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	return &CircuitBreaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		isFailure:        cfg.IsFailure,
		state:            StateClosed,
		now:              time.Now,
	}
}

// Execute runs fn under the breaker. While open and before the recovery
// timeout elapses it returns ErrCircuitOpen without invoking fn. After the
// timeout a single trial call is admitted half-open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	// fn runs outside the lock.
	err := fn()

	cb.afterCall(err)
	return err
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the current consecutive-failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// Reset forces the breaker closed and zeroes counters. Operational
// tooling only; the happy path recovers through the half-open trial.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	prev := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.lastFailureTime = time.Time{}

	logger.WithFields(map[string]interface{}{
		"breaker": cb.name,
		"from":    prev,
		"to":      StateClosed,
	}).Warn("circuit breaker manually reset")
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}

	if cb.now().Sub(cb.lastFailureTime) < cb.recoveryTimeout {
		return ErrCircuitOpen
	}

	cb.transition(StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || !cb.isFailure(err) {
		if err == nil {
			cb.failureCount = 0
			if cb.state == StateHalfOpen {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch {
	case cb.state == StateHalfOpen:
		// A failed trial reopens immediately, no threshold needed.
		cb.transition(StateOpen)
	case cb.state == StateClosed && cb.failureCount >= cb.failureThreshold:
		cb.transition(StateOpen)
	}
}

// transition must be called with the mutex held.
func (cb *CircuitBreaker) transition(to BreakerState) {
	if cb.state == to {
		return
	}

	logger.WithFields(map[string]interface{}{
		"breaker":       cb.name,
		"from":          cb.state,
		"to":            to,
		"failure_count": cb.failureCount,
	}).Info("circuit breaker state transition")

	cb.state = to
}
