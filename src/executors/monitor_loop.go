package executors

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeassist/src/connectors"
	"tradeassist/src/model"
	"tradeassist/src/repository"
)

type monitorOrderSource interface {
	FindOpenOrders(ctx context.Context, limit int) ([]model.Order, error)
	TouchStatusCheck(ctx context.Context, orderID uint) error
}

type orderStatusSource interface {
	OrderStatus(ctx context.Context, brokerOrderID string) (*connectors.OrderStatusResult, error)
}

// FillMonitor polls the broker for orders awaiting resolution and feeds
// the outcome back into the lifecycle. The broker reports fill progress
// cumulatively, so each poll derives the incremental fill from the delta
// against what is already recorded.
type FillMonitor struct {
	lifecycle orderLifecycle
	orders    monitorOrderSource
	broker    orderStatusSource
	batchSize int
}

func NewFillMonitor(lifecycle orderLifecycle, broker orderStatusSource, batchSize int) *FillMonitor {
	return &FillMonitor{
		lifecycle: lifecycle,
		orders:    repository.NewOrderRepository(),
		broker:    broker,
		batchSize: batchSize,
	}
}

// StartMonitorLoop runs the fill monitor until the context is cancelled.
func StartMonitorLoop(ctx context.Context, monitor *FillMonitor) error {
	config := GetConfig()

	ticker := time.NewTicker(config.MonitorLoopPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("monitor loop stopped")
			return nil

		case <-ticker.C:
			if err := monitor.RunOnce(ctx); err != nil {
				logger.WithError(err).Error("monitor loop iteration failed")
			}
		}
	}
}

// RunOnce polls one batch of open orders. Per-order poll failures are
// logged and skipped; a broker that is briefly unreachable must not stop
// the sweep.
func (m *FillMonitor) RunOnce(ctx context.Context) error {
	open, err := m.orders.FindOpenOrders(ctx, m.batchSize)
	if err != nil {
		return err
	}

	for i := range open {
		order := &open[i]
		if order.BrokerOrderID == nil {
			continue
		}

		status, err := m.broker.OrderStatus(ctx, *order.BrokerOrderID)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"component":       "FillMonitor",
				"order_id":        order.ID,
				"broker_order_id": *order.BrokerOrderID,
			}).WithError(err).Warn("status poll failed")
			continue
		}

		if err := m.orders.TouchStatusCheck(ctx, order.ID); err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "FillMonitor",
				"order_id":  order.ID,
			}).WithError(err).Warn("failed to stamp status check")
		}

		if err := m.applyStatus(ctx, order, status); err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "FillMonitor",
				"order_id":  order.ID,
				"status":    status.Status,
			}).WithError(err).Error("failed to apply broker status")
		}
	}

	return nil
}

func (m *FillMonitor) applyStatus(ctx context.Context, order *model.Order, status *connectors.OrderStatusResult) error {
	// Record any new fills first so a terminal snapshot that also carries
	// fill progress is not lost.
	recorded := order.FilledQuantity()
	delta := status.FilledQuantity - recorded

	if delta > 0 {
		price := incrementalFillPrice(order, status, delta)

		ts := time.Now()
		if status.LastFillAt != nil {
			ts = *status.LastFillAt
		}

		if err := m.lifecycle.ApplyFill(ctx, order, delta, price, ts); err != nil {
			return err
		}
	}

	switch status.Status {
	case connectors.BrokerStatusRejected:
		return m.lifecycle.RecordFailure(ctx, order, connectors.NewBrokerError("OrderException", status.Reason))
	case connectors.BrokerStatusCancelled:
		return m.lifecycle.AdoptCancellation(ctx, order, status.Reason)
	}
	return nil
}

// incrementalFillPrice backs the price of the newest fill out of the
// broker's cumulative average. Falls back to the cumulative average when
// the arithmetic degenerates (first fill, or an inconsistent snapshot).
func incrementalFillPrice(order *model.Order, status *connectors.OrderStatusResult, delta float64) float64 {
	recordedValue := decimal.Zero
	for _, f := range order.Fills {
		recordedValue = recordedValue.Add(
			decimal.NewFromFloat(f.Quantity).Mul(decimal.NewFromFloat(f.Price)))
	}

	totalValue := decimal.NewFromFloat(status.AveragePrice).
		Mul(decimal.NewFromFloat(status.FilledQuantity))

	price, _ := totalValue.Sub(recordedValue).
		Div(decimal.NewFromFloat(delta)).
		Float64()

	if price <= 0 {
		return status.AveragePrice
	}
	return price
}
