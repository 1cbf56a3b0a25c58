package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradeassist/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func candle(dt time.Time, o, h, l, cl string) model.OHLCVDaily {
	return model.OHLCVDaily{
		Symbol:    "RELIANCE",
		Timestamp: dt,
		Open:      d(o),
		High:      d(h),
		Low:       d(l),
		Close:     d(cl),
		Volume:    1,
	}
}

func TestNextTrailingStop_NotEnoughCandles(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := []model.OHLCVDaily{
		candle(now, "100", "101", "99", "100"),
	}

	sl, raised := NextTrailingStop(d("95"), candles, 20)
	if raised {
		t.Fatalf("expected raised=false")
	}
	if !sl.Equal(d("95")) {
		t.Fatalf("expected sl unchanged, got=%s", sl.String())
	}
}

func TestNextTrailingStop_PrevNotBullish_NoRaise(t *testing.T) {
	// prev candle is bearish: close <= open
	now := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	candles := []model.OHLCVDaily{
		candle(now.AddDate(0, 0, -2), "100", "101", "99", "100"),
		candle(now.AddDate(0, 0, -1), "105", "106", "100", "104"), // prev: bearish (104 < 105)
		candle(now, "106", "107", "103", "106"),
	}

	sl, raised := NextTrailingStop(d("98"), candles, 3)
	if raised {
		t.Fatalf("expected raised=false")
	}
	if !sl.Equal(d("98")) {
		t.Fatalf("expected sl unchanged, got=%s", sl.String())
	}
}

func TestNextTrailingStop_RaiseToFloorAvg_ClampedToPrevLow(t *testing.T) {
	// prev candle bullish, floorAvg > prev.Low so we clamp down to prev.Low
	// lows (lookback 3) = 101, 100.50, 119 => avg above prev.Low
	now := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	candles := []model.OHLCVDaily{
		candle(now.AddDate(0, 0, -3), "110", "111", "100", "110"),
		candle(now.AddDate(0, 0, -2), "110", "112", "101", "111"),
		candle(now.AddDate(0, 0, -1), "100", "130", "100.50", "120"), // prev bullish
		candle(now, "120", "121", "119", "120"),
	}

	currentSL := d("99.0")
	sl, raised := NextTrailingStop(currentSL, candles, 3)

	if !raised {
		t.Fatalf("expected raised=true")
	}
	if !sl.Equal(d("100.50")) {
		t.Fatalf("expected sl=100.50 (clamped to prev low), got=%s", sl.String())
	}
}

func TestNextTrailingStop_NeverMovesDown(t *testing.T) {
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	candles := []model.OHLCVDaily{
		candle(now.AddDate(0, 0, -2), "100", "101", "90", "100"),
		candle(now.AddDate(0, 0, -1), "100", "106", "91", "105"), // prev bullish, low 91
		candle(now, "105", "107", "92", "106"),
	}

	// Stop already above any candidate the window can produce.
	sl, raised := NextTrailingStop(d("95"), candles, 3)
	if raised {
		t.Fatalf("expected raised=false")
	}
	if !sl.Equal(d("95")) {
		t.Fatalf("expected sl unchanged, got=%s", sl.String())
	}
}

func TestInitialStopLoss(t *testing.T) {
	sl := InitialStopLoss(200, 5)
	if !sl.Equal(d("190")) {
		t.Fatalf("expected 190, got=%s", sl.String())
	}
}
