package connectors

import (
	"context"

	"tradeassist/src/resilience"
)

// ResilientBroker decorates a Broker with the retry policy and circuit
// breaker. The retry policy wraps the breaker-wrapped call so repeated
// transient failures accumulate toward the breaker threshold, while an
// open breaker's fail-fast error is surfaced unretried.
//
// One breaker per call category: order placement/cancellation share the
// trading breaker, status polling has its own so a broken order endpoint
// does not blind the monitor (and vice versa).
type ResilientBroker struct {
	inner Broker

	retry        *resilience.RetryPolicy
	tradeBreaker *resilience.CircuitBreaker
	queryBreaker *resilience.CircuitBreaker
}

func NewResilientBroker(inner Broker, cfg resilience.Config) *ResilientBroker {
	isFailure := func(err error) bool {
		// Business rejections say nothing about dependency health.
		return err != nil && !IsRejection(err)
	}

	return &ResilientBroker{
		inner: inner,
		retry: resilience.NewRetryPolicy(resilience.RetryConfig{
			MaxRetries:        cfg.RetryMaxAttempts,
			BaseDelay:         cfg.RetryBaseDelay,
			MaxDelay:          cfg.RetryMaxDelay,
			BackoffMultiplier: cfg.RetryBackoffMultiplier,
			Jitter:            cfg.RetryJitter,
			Retryable:         IsRetryable,
		}),
		tradeBreaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{
			Name:             "broker_trading",
			FailureThreshold: cfg.BreakerFailureThreshold,
			RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
			IsFailure:        isFailure,
		}),
		queryBreaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{
			Name:             "broker_query",
			FailureThreshold: cfg.BreakerFailureThreshold,
			RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
			IsFailure:        isFailure,
		}),
	}
}

func (b *ResilientBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*PlaceOrderResult, error) {
	var result *PlaceOrderResult

	err := b.retry.Execute(ctx, func() error {
		return b.tradeBreaker.Execute(func() error {
			var innerErr error
			result, innerErr = b.inner.PlaceOrder(ctx, req)
			return innerErr
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *ResilientBroker) OrderStatus(ctx context.Context, brokerOrderID string) (*OrderStatusResult, error) {
	var result *OrderStatusResult

	err := b.retry.Execute(ctx, func() error {
		return b.queryBreaker.Execute(func() error {
			var innerErr error
			result, innerErr = b.inner.OrderStatus(ctx, brokerOrderID)
			return innerErr
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *ResilientBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	return b.retry.Execute(ctx, func() error {
		return b.tradeBreaker.Execute(func() error {
			return b.inner.CancelOrder(ctx, brokerOrderID)
		})
	})
}

// ResetBreakers forces both breakers closed. Exposed for ops tooling.
func (b *ResilientBroker) ResetBreakers() {
	b.tradeBreaker.Reset()
	b.queryBreaker.Reset()
}
