package executors

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradeassist/src/model"
	"tradeassist/src/repository"
)

type retryOrderSource interface {
	FindRetryQueue(ctx context.Context, maxRetries int, limit int) ([]model.Order, error)
	FindByID(ctx context.Context, id uint) (*model.Order, error)
}

// RetryDispatcher re-places pending orders whose first placement attempt
// failed with a retryable error. The lifecycle bumps retry bookkeeping on
// each failed attempt, so an order cycles through here at most maxRetries
// times before it is forced to failed.
type RetryDispatcher struct {
	lifecycle  orderLifecycle
	orders     retryOrderSource
	maxRetries int
	batchSize  int
}

func NewRetryDispatcher(lifecycle orderLifecycle, maxRetries, batchSize int) *RetryDispatcher {
	return &RetryDispatcher{
		lifecycle:  lifecycle,
		orders:     repository.NewOrderRepository(),
		maxRetries: maxRetries,
		batchSize:  batchSize,
	}
}

// StartRetryLoop runs the dispatcher until the context is cancelled.
func StartRetryLoop(ctx context.Context, dispatcher *RetryDispatcher) error {
	config := GetConfig()

	ticker := time.NewTicker(config.RetryLoopPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("retry loop stopped")
			return nil

		case <-ticker.C:
			if err := dispatcher.RunOnce(ctx); err != nil {
				logger.WithError(err).Error("retry loop iteration failed")
			}
		}
	}
}

// RunOnce drains one batch of the retry queue.
func (d *RetryDispatcher) RunOnce(ctx context.Context) error {
	queue, err := d.orders.FindRetryQueue(ctx, d.maxRetries, d.batchSize)
	if err != nil {
		return err
	}

	for i := range queue {
		order := &queue[i]

		// Reload before each attempt: the order may have been cancelled
		// or transitioned by another task since the queue was listed.
		fresh, err := d.orders.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if fresh == nil || model.IsTerminalOrderStatus(fresh.Status) {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"component":   "RetryDispatcher",
			"order_id":    fresh.ID,
			"symbol":      fresh.Symbol,
			"retry_count": fresh.RetryCount,
		}).Info("retrying order placement")

		if err := d.lifecycle.Submit(ctx, fresh); err != nil {
			// Classified and recorded by the lifecycle, keep draining.
			logger.WithFields(map[string]interface{}{
				"component": "RetryDispatcher",
				"order_id":  fresh.ID,
			}).WithError(err).Warn("retry attempt failed")
		}
	}

	return nil
}
