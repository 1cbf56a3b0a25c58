package positions

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeassist/src/model"
)

// ErrOversizedSell signals a sell fill larger than the open position. It
// means order size and disclosed position size disagree upstream, so it is
// surfaced as an error instead of clamping the quantity.
var ErrOversizedSell = errors.New("sell fill exceeds open position quantity")

// FillEvent is one execution applied to a position.
type FillEvent struct {
	Side      string // buy | sell
	Quantity  float64
	Price     float64
	Timestamp time.Time

	// EntryRSI is captured from the originating order's signal context
	// when the fill opens a fresh position.
	EntryRSI *float64
}

// Aggregator folds fills into positions: opening on the first buy,
// averaging on reentries, reducing on sells and closing at zero quantity.
// It is purely computational; persistence belongs to the caller.
type Aggregator struct {
	now func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Open creates a fresh position from the first buy fill of a symbol.
func (a *Aggregator) Open(userID uint, symbol string, fill FillEvent) (*model.Position, error) {
	if fill.Side != model.OrderSideBuy {
		return nil, fmt.Errorf("cannot open position %s with a %s fill", symbolKey(userID, symbol), fill.Side)
	}
	if fill.Quantity <= 0 {
		return nil, fmt.Errorf("cannot open position with non-positive quantity %v", fill.Quantity)
	}

	openedAt := fill.Timestamp
	if openedAt.IsZero() {
		openedAt = a.now()
	}

	pos := &model.Position{
		UserID:            userID,
		Symbol:            symbol,
		Quantity:          fill.Quantity,
		AvgPrice:          fill.Price,
		InitialEntryPrice: fill.Price,
		ReentryCount:      0,
		EntryRSI:          fill.EntryRSI,
		Status:            model.PositionStatusOpen,
		OpenedAt:          openedAt,
	}

	logger.WithFields(map[string]interface{}{
		"component": "PositionAggregator",
		"user_id":   userID,
		"symbol":    symbol,
		"qty":       fill.Quantity,
		"price":     fill.Price,
	}).Info("position opened")

	return pos, nil
}

// Apply folds a fill into an existing open position, mutating it in place.
// A buy is a reentry (volume-weighted averaging); a sell reduces quantity,
// realizes PnL and closes the position when quantity reaches zero.
func (a *Aggregator) Apply(pos *model.Position, fill FillEvent) error {
	if pos == nil {
		return errors.New("position is nil")
	}
	if !pos.IsOpen() {
		return fmt.Errorf("position %s/%d is not open", pos.Symbol, pos.UserID)
	}
	if fill.Quantity <= 0 {
		return fmt.Errorf("fill quantity must be positive, got %v", fill.Quantity)
	}

	switch fill.Side {
	case model.OrderSideBuy:
		a.applyReentry(pos, fill)
		return nil
	case model.OrderSideSell:
		return a.applyExit(pos, fill)
	default:
		return fmt.Errorf("unknown fill side %q", fill.Side)
	}
}

func (a *Aggregator) applyReentry(pos *model.Position, fill FillEvent) {
	oldQty := decimal.NewFromFloat(pos.Quantity)
	oldAvg := decimal.NewFromFloat(pos.AvgPrice)
	fillQty := decimal.NewFromFloat(fill.Quantity)
	fillPrice := decimal.NewFromFloat(fill.Price)

	newQty := oldQty.Add(fillQty)
	newAvg := oldQty.Mul(oldAvg).Add(fillQty.Mul(fillPrice)).Div(newQty)

	ts := fill.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}

	pos.Quantity, _ = newQty.Float64()
	pos.AvgPrice, _ = newAvg.Float64()
	price := fill.Price
	pos.LastReentryPrice = &price
	pos.ReentryCount++
	pos.Reentries = append(pos.Reentries, model.ReentryEvent{
		Date:     ts,
		Price:    fill.Price,
		Quantity: fill.Quantity,
	})

	logger.WithFields(map[string]interface{}{
		"component":     "PositionAggregator",
		"user_id":       pos.UserID,
		"symbol":        pos.Symbol,
		"reentry_count": pos.ReentryCount,
		"avg_price":     pos.AvgPrice,
	}).Info("reentry applied to position")
}

func (a *Aggregator) applyExit(pos *model.Position, fill FillEvent) error {
	if fill.Quantity > pos.Quantity {
		logger.WithFields(map[string]interface{}{
			"component":    "PositionAggregator",
			"user_id":      pos.UserID,
			"symbol":       pos.Symbol,
			"position_qty": pos.Quantity,
			"fill_qty":     fill.Quantity,
		}).Error("sell fill exceeds position quantity")

		return fmt.Errorf("%w: position %v, fill %v", ErrOversizedSell, pos.Quantity, fill.Quantity)
	}

	qty := decimal.NewFromFloat(pos.Quantity)
	avg := decimal.NewFromFloat(pos.AvgPrice)
	fillQty := decimal.NewFromFloat(fill.Quantity)
	fillPrice := decimal.NewFromFloat(fill.Price)

	// Average-cost accounting: realized PnL on the sold lot, avg price
	// unchanged for whatever remains.
	realized := fillPrice.Sub(avg).Mul(fillQty)
	newQty := qty.Sub(fillQty)

	pos.Quantity, _ = newQty.Float64()
	pnl, _ := realized.Float64()
	pos.RealizedPnl += pnl

	if newQty.IsZero() {
		ts := fill.Timestamp
		if ts.IsZero() {
			ts = a.now()
		}
		pos.ClosedAt = &ts
		pos.Status = model.PositionStatusClosed
		pos.UnrealizedPnl = 0

		logger.WithFields(map[string]interface{}{
			"component":    "PositionAggregator",
			"user_id":      pos.UserID,
			"symbol":       pos.Symbol,
			"realized_pnl": pos.RealizedPnl,
		}).Info("position closed")
	}

	return nil
}

// MarkPrice refreshes the unrealized PnL against the given market price.
func (a *Aggregator) MarkPrice(pos *model.Position, price float64) {
	if pos == nil || !pos.IsOpen() {
		return
	}

	qty := decimal.NewFromFloat(pos.Quantity)
	avg := decimal.NewFromFloat(pos.AvgPrice)
	mark := decimal.NewFromFloat(price)

	pnl, _ := mark.Sub(avg).Mul(qty).Float64()
	pos.UnrealizedPnl = pnl
}

func symbolKey(userID uint, symbol string) string {
	return fmt.Sprintf("%d/%s", userID, symbol)
}
