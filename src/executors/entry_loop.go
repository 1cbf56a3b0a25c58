package executors

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeassist/src/controller"
	"tradeassist/src/model"
	"tradeassist/src/repository"
	"tradeassist/src/risk"
)

// orderLifecycle is the executor-side view of the order controller.
type orderLifecycle interface {
	Submit(ctx context.Context, order *model.Order) error
	ApplyFill(ctx context.Context, order *model.Order, qty, price float64, ts time.Time) error
	RecordFailure(ctx context.Context, order *model.Order, cause error) error
	AdoptCancellation(ctx context.Context, order *model.Order, reason string) error
}

type signalSource interface {
	FindLatest(ctx context.Context, symbol string, limit int) ([]model.TradingSignal, error)
}

type entryOrderSource interface {
	FindByUserAndStatus(ctx context.Context, userID uint, status string) ([]model.Order, error)
}

type openPositionSource interface {
	FindOpenByUserAndSymbol(ctx context.Context, userID uint, symbol string) (*model.Position, error)
}

// EntryLoop turns screener signals into orders. Every candidate passes
// the session sizing and, for symbols with an open position, the reentry
// policy before it reaches the lifecycle.
type EntryLoop struct {
	lifecycle    orderLifecycle
	signals      signalSource
	orders       entryOrderSource
	positions    openPositionSource
	user         *model.User
	reentryCfg   risk.ReentryConfig
	sessionCfg   risk.SessionSizeConfig
	capital      float64
	sizePercent  int
	signalMaxAge time.Duration
	now          func() time.Time
}

// StartEntryLoop runs the entry loop on the shared runtime until the
// context is cancelled.
func StartEntryLoop(ctx context.Context, rt *Runtime) error {
	config := rt.Config

	loop := &EntryLoop{
		lifecycle:    rt.Lifecycle,
		signals:      repository.NewTradingSignalRepository(),
		orders:       repository.NewOrderRepository(),
		positions:    repository.NewPositionRepository(),
		user:         rt.User,
		reentryCfg:   risk.DefaultReentryConfig(),
		sessionCfg:   risk.DefaultSessionSizeConfig(),
		capital:      config.OrderCapital,
		sizePercent:  controller.GetConfig().OrderSizePercent,
		signalMaxAge: config.SignalMaxAge,
		now:          time.Now,
	}

	ticker := time.NewTicker(config.EntryLoopPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("entry loop stopped")
			return nil

		case <-ticker.C:
			if err := loop.RunOnce(ctx); err != nil {
				logger.WithError(err).Error("entry loop iteration failed")
			}
		}
	}
}

// RunOnce evaluates the newest screener signal and places at most one
// order. A tick with nothing to do is not an error.
func (l *EntryLoop) RunOnce(ctx context.Context) error {
	signals, err := l.signals.FindLatest(ctx, "", 1)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		return nil
	}

	signal := signals[0]
	if l.now().Sub(signal.GeneratedAt) > l.signalMaxAge {
		logger.WithFields(map[string]interface{}{
			"component":    "EntryLoop",
			"symbol":       signal.Symbol,
			"generated_at": signal.GeneratedAt,
		}).Debug("latest signal too old, skipping")
		return nil
	}

	inFlight, err := l.hasOpenOrder(ctx, signal.Symbol)
	if err != nil {
		return err
	}
	if inFlight {
		logger.WithFields(map[string]interface{}{
			"component": "EntryLoop",
			"symbol":    signal.Symbol,
		}).Debug("open order in flight, skipping signal")
		return nil
	}

	pos, err := l.positions.FindOpenByUserAndSymbol(ctx, l.user.ID, signal.Symbol)
	if err != nil {
		return err
	}

	switch signal.Action {
	case model.SignalActionBuy:
		return l.enter(ctx, signal, pos)
	case model.SignalActionSell:
		return l.exit(ctx, signal, pos)
	}
	return nil
}

func (l *EntryLoop) enter(ctx context.Context, signal model.TradingSignal, pos *model.Position) error {
	qty, session := l.sessionSizedQuantity(signal.Price)
	if session == risk.SessionNoTrade {
		logger.WithField("component", "EntryLoop").Warn(string(risk.SessionNoTrade) + " - risk off mode")
		return nil
	}

	entryType := model.EntryTypeNew
	if pos != nil {
		decision := risk.EvaluateReentry(pos, signal.Price, l.reentryCfg)
		if !decision.Eligible {
			logger.WithFields(map[string]interface{}{
				"component": "EntryLoop",
				"symbol":    signal.Symbol,
				"reason":    decision.Reason,
			}).Debug("reentry rejected")
			return nil
		}
		qty = decision.SuggestedQuantity
		entryType = model.EntryTypeReentry
	}

	if qty <= 0 {
		logger.WithFields(map[string]interface{}{
			"component": "EntryLoop",
			"symbol":    signal.Symbol,
			"session":   session,
		}).Debug("sized quantity is zero, skipping entry")
		return nil
	}

	order := &model.Order{
		UserID:    l.user.ID,
		Symbol:    signal.Symbol,
		Side:      model.OrderSideBuy,
		OrderType: model.OrderTypeMarket,
		Quantity:  qty,
		EntryType: entryType,
	}
	if err := order.SetSignalContext(model.SignalContext{
		SignalID: signal.ID,
		RSI:      signal.RSI,
		EMA:      signal.EMA,
	}); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"component":  "EntryLoop",
		"symbol":     signal.Symbol,
		"qty":        qty,
		"entry_type": entryType,
		"session":    session,
	}).Info("placing entry order")

	if err := l.lifecycle.Submit(ctx, order); err != nil {
		// Placement failures are already classified and recorded by the
		// lifecycle; the loop keeps ticking.
		logger.WithFields(map[string]interface{}{
			"component": "EntryLoop",
			"order_id":  order.ID,
			"symbol":    signal.Symbol,
		}).WithError(err).Warn("entry order placement failed")
	}
	return nil
}

func (l *EntryLoop) exit(ctx context.Context, signal model.TradingSignal, pos *model.Position) error {
	if pos == nil || pos.Quantity <= 0 {
		return nil
	}

	order := &model.Order{
		UserID:    l.user.ID,
		Symbol:    signal.Symbol,
		Side:      model.OrderSideSell,
		OrderType: model.OrderTypeMarket,
		Quantity:  pos.Quantity,
	}
	if err := order.SetSignalContext(model.SignalContext{
		SignalID: signal.ID,
		RSI:      signal.RSI,
		EMA:      signal.EMA,
		Note:     "screener exit",
	}); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"component": "EntryLoop",
		"symbol":    signal.Symbol,
		"qty":       pos.Quantity,
	}).Info("placing exit order")

	if err := l.lifecycle.Submit(ctx, order); err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "EntryLoop",
			"order_id":  order.ID,
			"symbol":    signal.Symbol,
		}).WithError(err).Warn("exit order placement failed")
	}
	return nil
}

// sessionSizedQuantity converts the configured capital slice into a share
// quantity at the signal price, scaled by the current NSE session.
func (l *EntryLoop) sessionSizedQuantity(price float64) (float64, risk.Session) {
	if price <= 0 {
		return 0, risk.SessionDefault
	}

	notional := controller.PercentOfFloatSafe(l.capital, l.sizePercent)
	baseQty := math.Floor(notional / price)

	sized, session := risk.CalculateSizeByNSESession(
		decimal.NewFromFloat(baseQty),
		l.now(),
		l.sessionCfg,
	)

	qty, _ := sized.Floor().Float64()
	return qty, session
}

// hasOpenOrder reports whether a non-terminal order for the symbol is
// already in flight for the executor user.
func (l *EntryLoop) hasOpenOrder(ctx context.Context, symbol string) (bool, error) {
	for _, status := range []string{model.OrderStatusPending, model.OrderStatusPartiallyFilled} {
		orders, err := l.orders.FindByUserAndStatus(ctx, l.user.ID, status)
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
