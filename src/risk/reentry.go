package risk

import (
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeassist/src/model"
)

// ReentryConfig bounds averaging into an open position.
type ReentryConfig struct {
	// MaxReentries is the hard cap on reentry count per position.
	MaxReentries int

	// MinDeclinePercent is the minimum percentage the candidate price
	// must sit below the last reentry price (or the initial entry price
	// for the first reentry).
	MinDeclinePercent float64

	// SizeFraction of the original position capital allocated to each
	// reentry order.
	SizeFraction float64
}

// DefaultReentryConfig mirrors the conservative production defaults.
func DefaultReentryConfig() ReentryConfig {
	return ReentryConfig{
		MaxReentries:      3,
		MinDeclinePercent: 3.0,
		SizeFraction:      0.5,
	}
}

// ReentryDecision is the outcome of evaluating a reentry candidate.
type ReentryDecision struct {
	Eligible bool
	Reason   string

	// SuggestedQuantity is the reentry order size, zero when ineligible.
	SuggestedQuantity float64
}

// EvaluateReentry decides whether a new buy signal may add to an existing
// open position. Pure decision function: both the reentry-count cap and
// the minimum price-decline gap are hard caps, not advisory.
func EvaluateReentry(pos *model.Position, candidatePrice float64, cfg ReentryConfig) ReentryDecision {
	if pos == nil || !pos.IsOpen() {
		return ReentryDecision{Reason: "no open position"}
	}
	if candidatePrice <= 0 {
		return ReentryDecision{Reason: "candidate price must be positive"}
	}

	if pos.ReentryCount >= cfg.MaxReentries {
		logger.WithFields(map[string]interface{}{
			"component":     "ReentryPolicy",
			"symbol":        pos.Symbol,
			"reentry_count": pos.ReentryCount,
			"max":           cfg.MaxReentries,
		}).Debug("reentry rejected, count cap reached")

		return ReentryDecision{Reason: "maximum reentry count reached"}
	}

	reference := pos.InitialEntryPrice
	if pos.LastReentryPrice != nil {
		reference = *pos.LastReentryPrice
	}

	ref := decimal.NewFromFloat(reference)
	candidate := decimal.NewFromFloat(candidatePrice)
	minDecline := decimal.NewFromFloat(cfg.MinDeclinePercent).Div(decimal.NewFromInt(100))

	// Required: candidate <= reference * (1 - minDecline).
	ceiling := ref.Mul(decimal.NewFromInt(1).Sub(minDecline))
	if candidate.GreaterThan(ceiling) {
		return ReentryDecision{Reason: "price has not declined enough since last entry"}
	}

	// Size the reentry as a fraction of the original entry quantity.
	originalQty := originalEntryQuantity(pos)
	qty, _ := decimal.NewFromFloat(originalQty).
		Mul(decimal.NewFromFloat(cfg.SizeFraction)).
		Floor().
		Float64()

	if qty <= 0 {
		return ReentryDecision{Reason: "computed reentry size is zero"}
	}

	return ReentryDecision{
		Eligible:          true,
		Reason:            "eligible",
		SuggestedQuantity: qty,
	}
}

// originalEntryQuantity recovers the quantity of the initial entry by
// subtracting the recorded reentry fills from the current total. Partial
// exits make this a floor approximation, which errs on the small side.
func originalEntryQuantity(pos *model.Position) float64 {
	qty := pos.Quantity
	for _, r := range pos.Reentries {
		qty -= r.Quantity
	}
	if qty <= 0 {
		qty = pos.Quantity
	}
	return qty
}
