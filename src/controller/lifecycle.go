package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeassist/src/connectors"
	"tradeassist/src/model"
	"tradeassist/src/positions"
	"tradeassist/src/repository"
	"tradeassist/src/resilience"
)

type orderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id uint) (*model.Order, error)
	TransitionStatus(ctx context.Context, order *model.Order, newStatus string, updates map[string]interface{}) error
	RecordRetryAttempt(ctx context.Context, order *model.Order, reason string) error
	MarkPlacementDeferred(ctx context.Context, order *model.Order, reason string) error
	SetBrokerOrderID(ctx context.Context, order *model.Order, brokerOrderID string) error
	AppendFill(ctx context.Context, fill *model.Fill) error
}

type positionRepository interface {
	Create(ctx context.Context, pos *model.Position) error
	Save(ctx context.Context, pos *model.Position) error
	FindOpenByUserAndSymbol(ctx context.Context, userID uint, symbol string) (*model.Position, error)
}

type exceptionRepository interface {
	Create(ctx context.Context, exc *model.Exception) error
}

type notifier interface {
	Emit(ctx context.Context, userID uint, event string, fields map[string]interface{})
}

// OrderLifecycle is the single owner of order state transitions. Every
// placement, fill, failure and cancellation goes through here so the
// status graph stays consistent:
//
//	pending -> partially_filled -> filled
//	pending -> failed | cancelled
//	partially_filled -> cancelled
//
// filled, failed and cancelled are absorbing; late events against them
// are dropped. Operations on the same user/symbol pair are serialized
// through a keyed mutex, everything else may run concurrently.
type OrderLifecycle struct {
	broker     connectors.Broker
	orderRepo  orderRepository
	posRepo    positionRepository
	exceptions exceptionRepository
	aggregator *positions.Aggregator
	notifier   notifier
	maxRetries int
	locks      *keyedMutex
}

// NewOrderLifecycle wires the lifecycle against the default repositories.
func NewOrderLifecycle(broker connectors.Broker, n notifier, cfg Config) *OrderLifecycle {
	return &OrderLifecycle{
		broker:     broker,
		orderRepo:  repository.NewOrderRepository(),
		posRepo:    repository.NewPositionRepository(),
		exceptions: repository.NewExceptionRepository(),
		aggregator: positions.NewAggregator(),
		notifier:   n,
		maxRetries: cfg.MaxOrderRetries,
		locks:      newKeyedMutex(),
	}
}

// Broker exposes the wired connector so callers polling order status
// share the lifecycle's circuit breaker.
func (l *OrderLifecycle) Broker() connectors.Broker {
	return l.broker
}

// Submit persists the order (when new) and places it with the broker.
// Placement failures are classified: retryable errors leave the order
// pending with retry bookkeeping for the dispatcher, everything else
// forces failed.
func (l *OrderLifecycle) Submit(ctx context.Context, order *model.Order) error {
	unlock := l.locks.Lock(lockKey(order.UserID, order.Symbol))
	defer unlock()

	if order.ID == 0 {
		order.Status = model.OrderStatusPending
		if err := l.orderRepo.Create(ctx, order); err != nil {
			return err
		}
	}

	if model.IsTerminalOrderStatus(order.Status) {
		logger.WithFields(map[string]interface{}{
			"component": "OrderLifecycle",
			"order_id":  order.ID,
			"status":    order.Status,
		}).Warn("submit on terminal order ignored")
		return nil
	}

	result, err := l.broker.PlaceOrder(ctx, connectors.OrderRequest{
		ClientOrderID: connectors.NewClientOrderID(),
		Symbol:        order.Symbol,
		Side:          order.Side,
		OrderType:     order.OrderType,
		Quantity:      order.Quantity,
		Price:         order.Price,
	})
	if err != nil {
		if ferr := l.recordFailureLocked(ctx, order, err); ferr != nil {
			return ferr
		}
		return err
	}

	if err := l.orderRepo.SetBrokerOrderID(ctx, order, result.BrokerOrderID); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"component":       "OrderLifecycle",
		"order_id":        order.ID,
		"broker_order_id": result.BrokerOrderID,
		"symbol":          order.Symbol,
		"side":            order.Side,
		"qty":             order.Quantity,
	}).Info("order placed with broker")

	return nil
}

// ApplyFill records one incremental execution against the order, moving
// it to partially_filled or filled and folding the fill into the user's
// position. Fills against terminal orders are dropped.
func (l *OrderLifecycle) ApplyFill(ctx context.Context, order *model.Order, qty, price float64, ts time.Time) error {
	unlock := l.locks.Lock(lockKey(order.UserID, order.Symbol))
	defer unlock()

	if model.IsTerminalOrderStatus(order.Status) {
		logger.WithFields(map[string]interface{}{
			"component": "OrderLifecycle",
			"order_id":  order.ID,
			"status":    order.Status,
		}).Warn("fill against terminal order dropped")
		return nil
	}

	if qty <= 0 {
		return fmt.Errorf("fill quantity must be positive, got %v", qty)
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	fill := &model.Fill{
		OrderID:   order.ID,
		Quantity:  qty,
		Price:     price,
		Timestamp: ts,
	}
	if err := l.orderRepo.AppendFill(ctx, fill); err != nil {
		return err
	}
	order.Fills = append(order.Fills, *fill)

	total := order.FilledQuantity()
	execPrice := weightedFillPrice(order.Fills)

	if total >= order.Quantity {
		err := l.transition(ctx, order, model.OrderStatusFilled, map[string]interface{}{
			"execution_price": execPrice,
			"execution_qty":   total,
			"execution_time":  ts,
			"filled_at":       ts,
			"closed_at":       ts,
		})
		if err != nil {
			return err
		}

		if order.Status == model.OrderStatusFilled {
			l.emit(ctx, order.UserID, model.EventOrderExecuted, map[string]interface{}{
				"order_id":        order.ID,
				"symbol":          order.Symbol,
				"side":            order.Side,
				"qty":             total,
				"execution_price": execPrice,
			})
		}
	} else {
		if err := l.transition(ctx, order, model.OrderStatusPartiallyFilled, nil); err != nil {
			return err
		}

		if order.Status == model.OrderStatusPartiallyFilled {
			l.emit(ctx, order.UserID, model.EventPartialFill, map[string]interface{}{
				"order_id":   order.ID,
				"symbol":     order.Symbol,
				"filled_qty": total,
				"total_qty":  order.Quantity,
			})
		}
	}

	return l.updatePosition(ctx, order, qty, price, ts)
}

// RecordFailure classifies a broker error for an order that could not be
// placed. Retryable errors keep the order pending with bumped retry
// bookkeeping until the budget runs out.
func (l *OrderLifecycle) RecordFailure(ctx context.Context, order *model.Order, cause error) error {
	unlock := l.locks.Lock(lockKey(order.UserID, order.Symbol))
	defer unlock()

	return l.recordFailureLocked(ctx, order, cause)
}

func (l *OrderLifecycle) recordFailureLocked(ctx context.Context, order *model.Order, cause error) error {
	if model.IsTerminalOrderStatus(order.Status) {
		return nil
	}

	fields := map[string]interface{}{
		"component":   "OrderLifecycle",
		"order_id":    order.ID,
		"symbol":      order.Symbol,
		"retry_count": order.RetryCount,
	}

	// An open breaker never reached the broker, so it says nothing about
	// this order: leave it pending without consuming retry budget. The
	// deferred stamp keeps it visible to the retry dispatcher.
	if errors.Is(cause, resilience.ErrCircuitOpen) {
		logger.WithFields(fields).WithError(cause).Warn("circuit open, placement deferred")
		return l.orderRepo.MarkPlacementDeferred(ctx, order, cause.Error())
	}

	if connectors.IsRejection(cause) {
		logger.WithFields(fields).WithError(cause).Warn("order rejected by broker")

		err := l.transition(ctx, order, model.OrderStatusFailed, failureUpdates(order, cause))
		if err != nil {
			return err
		}

		if order.Status == model.OrderStatusFailed {
			l.emit(ctx, order.UserID, model.EventOrderRejected, map[string]interface{}{
				"order_id": order.ID,
				"symbol":   order.Symbol,
				"reason":   cause.Error(),
			})
		}
		return nil
	}

	if connectors.IsRetryable(cause) && order.RetryCount < l.maxRetries {
		logger.WithFields(fields).WithError(cause).Warn("placement failed, scheduling retry")
		return l.orderRepo.RecordRetryAttempt(ctx, order, cause.Error())
	}

	logger.WithFields(fields).WithError(cause).Error("placement failed terminally")
	Capture(ctx, l.exceptions, "trade_assistant", "controller", "OrderLifecycle.RecordFailure", "error", cause, map[string]interface{}{
		"order_id": order.ID,
	})

	err := l.transition(ctx, order, model.OrderStatusFailed, failureUpdates(order, cause))
	if err != nil {
		return err
	}

	if order.Status == model.OrderStatusFailed {
		l.emit(ctx, order.UserID, model.EventOrderRejected, map[string]interface{}{
			"order_id": order.ID,
			"symbol":   order.Symbol,
			"reason":   cause.Error(),
		})
	}
	return nil
}

// Cancel withdraws the order with the broker (when it ever reached one)
// and transitions it to cancelled. Terminal orders are left untouched.
func (l *OrderLifecycle) Cancel(ctx context.Context, order *model.Order, reason string) error {
	unlock := l.locks.Lock(lockKey(order.UserID, order.Symbol))
	defer unlock()

	if model.IsTerminalOrderStatus(order.Status) {
		logger.WithFields(map[string]interface{}{
			"component": "OrderLifecycle",
			"order_id":  order.ID,
			"status":    order.Status,
		}).Warn("cancel on terminal order ignored")
		return nil
	}

	if order.BrokerOrderID != nil {
		if err := l.broker.CancelOrder(ctx, *order.BrokerOrderID); err != nil {
			Capture(ctx, l.exceptions, "trade_assistant", "controller", "OrderLifecycle.Cancel", "error", err, map[string]interface{}{
				"order_id": order.ID,
			})
			return err
		}
	}

	err := l.transition(ctx, order, model.OrderStatusCancelled, map[string]interface{}{
		"reason":    reason,
		"closed_at": time.Now(),
	})
	if err != nil {
		return err
	}

	if order.Status == model.OrderStatusCancelled {
		l.emit(ctx, order.UserID, model.EventOrderCancelled, map[string]interface{}{
			"order_id": order.ID,
			"symbol":   order.Symbol,
			"reason":   reason,
		})
	}
	return nil
}

// AdoptCancellation records a cancellation that already happened on the
// broker side, so no cancel request is sent. Used by the fill monitor
// when a status poll reports the order cancelled.
func (l *OrderLifecycle) AdoptCancellation(ctx context.Context, order *model.Order, reason string) error {
	unlock := l.locks.Lock(lockKey(order.UserID, order.Symbol))
	defer unlock()

	if model.IsTerminalOrderStatus(order.Status) {
		return nil
	}

	err := l.transition(ctx, order, model.OrderStatusCancelled, map[string]interface{}{
		"reason":    reason,
		"closed_at": time.Now(),
	})
	if err != nil {
		return err
	}

	if order.Status == model.OrderStatusCancelled {
		l.emit(ctx, order.UserID, model.EventOrderCancelled, map[string]interface{}{
			"order_id": order.ID,
			"symbol":   order.Symbol,
			"reason":   reason,
		})
	}
	return nil
}

// transition applies the status change and absorbs optimistic-lock
// conflicts against orders that already reached a terminal state.
func (l *OrderLifecycle) transition(ctx context.Context, order *model.Order, newStatus string, updates map[string]interface{}) error {
	err := l.orderRepo.TransitionStatus(ctx, order, newStatus, updates)
	if err == nil {
		return nil
	}

	if errors.Is(err, repository.ErrStaleOrder) {
		fresh, ferr := l.orderRepo.FindByID(ctx, order.ID)
		if ferr != nil {
			return ferr
		}
		if fresh != nil && model.IsTerminalOrderStatus(fresh.Status) {
			logger.WithFields(map[string]interface{}{
				"component":  "OrderLifecycle",
				"order_id":   order.ID,
				"status":     fresh.Status,
				"new_status": newStatus,
			}).Warn("dropping transition, order already terminal")

			*order = *fresh
			return nil
		}
	}

	return err
}

// updatePosition folds one fill into the user's open position, opening a
// fresh one on the first buy.
func (l *OrderLifecycle) updatePosition(ctx context.Context, order *model.Order, qty, price float64, ts time.Time) error {
	pos, err := l.posRepo.FindOpenByUserAndSymbol(ctx, order.UserID, order.Symbol)
	if err != nil {
		return err
	}

	fill := positions.FillEvent{
		Side:      order.Side,
		Quantity:  qty,
		Price:     price,
		Timestamp: ts,
	}

	if pos == nil {
		if order.Side != model.OrderSideBuy {
			err := fmt.Errorf("sell fill for %s without an open position", order.Symbol)
			Capture(ctx, l.exceptions, "trade_assistant", "controller", "OrderLifecycle.updatePosition", "error", err, map[string]interface{}{
				"order_id": order.ID,
			})
			return err
		}

		if sc, scErr := order.SignalContext(); scErr == nil && sc.RSI != 0 {
			rsi := sc.RSI
			fill.EntryRSI = &rsi
		}

		opened, err := l.aggregator.Open(order.UserID, order.Symbol, fill)
		if err != nil {
			return err
		}
		return l.posRepo.Create(ctx, opened)
	}

	isReentry := order.Side == model.OrderSideBuy

	if err := l.aggregator.Apply(pos, fill); err != nil {
		if errors.Is(err, positions.ErrOversizedSell) {
			Capture(ctx, l.exceptions, "trade_assistant", "controller", "OrderLifecycle.updatePosition", "error", err, map[string]interface{}{
				"order_id":     order.ID,
				"position_id":  pos.ID,
				"position_qty": pos.Quantity,
				"fill_qty":     qty,
			})
		}
		return err
	}

	if err := l.posRepo.Save(ctx, pos); err != nil {
		return err
	}

	if isReentry {
		l.emit(ctx, order.UserID, model.EventReentry, map[string]interface{}{
			"order_id":      order.ID,
			"symbol":        order.Symbol,
			"reentry_count": pos.ReentryCount,
			"avg_price":     pos.AvgPrice,
		})
	}

	return nil
}

func (l *OrderLifecycle) emit(ctx context.Context, userID uint, event string, fields map[string]interface{}) {
	if l.notifier == nil {
		return
	}
	l.notifier.Emit(ctx, userID, event, fields)
}

// failureUpdates builds the field set for a transition to failed:
// failed is terminal so closed_at is stamped, and the first failure
// time is recorded once.
func failureUpdates(order *model.Order, cause error) map[string]interface{} {
	now := time.Now()
	updates := map[string]interface{}{
		"reason":    cause.Error(),
		"closed_at": now,
	}
	if order.FirstFailedAt == nil {
		updates["first_failed_at"] = now
	}
	return updates
}

// weightedFillPrice is the quantity-weighted average over all fills.
func weightedFillPrice(fills []model.Fill) float64 {
	if len(fills) == 0 {
		return 0
	}

	totalQty := decimal.Zero
	totalValue := decimal.Zero
	for _, f := range fills {
		q := decimal.NewFromFloat(f.Quantity)
		totalQty = totalQty.Add(q)
		totalValue = totalValue.Add(q.Mul(decimal.NewFromFloat(f.Price)))
	}

	if totalQty.IsZero() {
		return 0
	}

	price, _ := totalValue.Div(totalQty).Float64()
	return price
}
