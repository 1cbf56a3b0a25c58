package risk

import (
	"github.com/shopspring/decimal"

	"tradeassist/src/model"
)

func isBullish(c model.OHLCVDaily) bool { return c.Close.GreaterThan(c.Open) }

func avgLow(candles []model.OHLCVDaily) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(c.Low)
	}
	return sum.Div(decimal.NewFromInt(int64(len(candles))))
}

// NextTrailingStop ratchets a long position's stop-loss upward off the
// daily candle history. Equity positions here are long-only, so the stop
// never moves down.
//
// - gate: previous candle bullish
// - floor: avg(low) over lookback
// - clamp: candidate <= prev.Low
// - update: SL = max(SL, candidate)
func NextTrailingStop(
	currentSL decimal.Decimal,
	candles []model.OHLCVDaily,
	lookback int,
) (newSL decimal.Decimal, moved bool) {
	if len(candles) < 2 {
		return currentSL, false
	}
	if lookback <= 0 {
		lookback = 20
	}
	if lookback > len(candles) {
		lookback = len(candles)
	}

	prev := candles[len(candles)-2]
	window := candles[len(candles)-lookback:]

	if !isBullish(prev) {
		return currentSL, false
	}

	candidate := avgLow(window)
	if candidate.GreaterThan(prev.Low) {
		candidate = prev.Low
	}

	if candidate.GreaterThan(currentSL) {
		return candidate, true
	}
	return currentSL, false
}

// InitialStopLoss seeds the stop a fixed percentage below the entry
// price for positions that have no trailing history yet.
func InitialStopLoss(entryPrice float64, stopLossPercent float64) decimal.Decimal {
	entry := decimal.NewFromFloat(entryPrice)
	pct := decimal.NewFromFloat(stopLossPercent).Div(decimal.NewFromInt(100))
	return entry.Mul(decimal.NewFromInt(1).Sub(pct))
}
