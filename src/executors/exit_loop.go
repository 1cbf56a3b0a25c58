package executors

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeassist/src/model"
	"tradeassist/src/repository"
	"tradeassist/src/risk"
)

type exitPositionSource interface {
	FindOpenByUser(ctx context.Context, userID uint) ([]model.Position, error)
}

type candleSource interface {
	FindBySymbol(ctx context.Context, symbol string, since time.Time) ([]model.OHLCVDaily, error)
}

type lastPriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// StopLossMonitor trails a stop-loss under every open position and
// liquidates when the last traded price crosses it. Stops only ratchet
// upward; the in-memory ratchet reseeds from the entry price after a
// restart and catches back up from the candle history.
type StopLossMonitor struct {
	lifecycle orderLifecycle
	positions exitPositionSource
	candles   candleSource
	orders    entryOrderSource
	prices    lastPriceSource
	user      *model.User

	stops           map[uint]decimal.Decimal
	stopLossPercent float64
	lookback        int
	now             func() time.Time
}

func NewStopLossMonitor(lifecycle orderLifecycle, prices lastPriceSource, user *model.User, cfg Config) *StopLossMonitor {
	return &StopLossMonitor{
		lifecycle:       lifecycle,
		positions:       repository.NewPositionRepository(),
		candles:         repository.NewOHLCVRepository(),
		orders:          repository.NewOrderRepository(),
		prices:          prices,
		user:            user,
		stops:           map[uint]decimal.Decimal{},
		stopLossPercent: cfg.StopLossPercent,
		lookback:        cfg.TrailingLookbackDays,
		now:             time.Now,
	}
}

// StartExitLoop runs the stop-loss monitor until the context is
// cancelled.
func StartExitLoop(ctx context.Context, monitor *StopLossMonitor) error {
	config := GetConfig()

	ticker := time.NewTicker(config.ExitLoopPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("exit loop stopped")
			return nil

		case <-ticker.C:
			if err := monitor.RunOnce(ctx); err != nil {
				logger.WithError(err).Error("exit loop iteration failed")
			}
		}
	}
}

// RunOnce sweeps all open positions once.
func (m *StopLossMonitor) RunOnce(ctx context.Context) error {
	open, err := m.positions.FindOpenByUser(ctx, m.user.ID)
	if err != nil {
		return err
	}

	seen := map[uint]bool{}
	for i := range open {
		pos := &open[i]
		seen[pos.ID] = true

		if err := m.checkPosition(ctx, pos); err != nil {
			logger.WithFields(map[string]interface{}{
				"component":   "StopLossMonitor",
				"position_id": pos.ID,
				"symbol":      pos.Symbol,
			}).WithError(err).Warn("stop-loss check failed")
		}
	}

	// Drop ratchet state for positions closed since the last sweep.
	for id := range m.stops {
		if !seen[id] {
			delete(m.stops, id)
		}
	}

	return nil
}

func (m *StopLossMonitor) checkPosition(ctx context.Context, pos *model.Position) error {
	stop, ok := m.stops[pos.ID]
	if !ok {
		stop = risk.InitialStopLoss(pos.InitialEntryPrice, m.stopLossPercent)
	}

	since := m.now().AddDate(0, 0, -2*m.lookback)
	candles, err := m.candles.FindBySymbol(ctx, pos.Symbol, since)
	if err != nil {
		return err
	}

	if next, moved := risk.NextTrailingStop(stop, candles, m.lookback); moved {
		logger.WithFields(map[string]interface{}{
			"component":   "StopLossMonitor",
			"position_id": pos.ID,
			"symbol":      pos.Symbol,
			"stop":        next.String(),
		}).Info("trailing stop raised")
		stop = next
	}
	m.stops[pos.ID] = stop

	price, err := m.prices.LastPrice(ctx, pos.Symbol)
	if err != nil {
		return err
	}

	if decimal.NewFromFloat(price).GreaterThan(stop) {
		return nil
	}

	inFlight, err := m.hasOpenOrder(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	if inFlight {
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"component":   "StopLossMonitor",
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"price":       price,
		"stop":        stop.String(),
	}).Warn("stop-loss hit, liquidating position")

	order := &model.Order{
		UserID:    m.user.ID,
		Symbol:    pos.Symbol,
		Side:      model.OrderSideSell,
		OrderType: model.OrderTypeMarket,
		Quantity:  pos.Quantity,
	}
	if err := order.SetSignalContext(model.SignalContext{Note: "trailing stop-loss"}); err != nil {
		return err
	}

	return m.lifecycle.Submit(ctx, order)
}

func (m *StopLossMonitor) hasOpenOrder(ctx context.Context, symbol string) (bool, error) {
	for _, status := range []string{model.OrderStatusPending, model.OrderStatusPartiallyFilled} {
		orders, err := m.orders.FindByUserAndStatus(ctx, m.user.ID, status)
		if err != nil {
			return false, err
		}
		for _, o := range orders {
			if o.Symbol == symbol {
				return true, nil
			}
		}
	}
	return false, nil
}
