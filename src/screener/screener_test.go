package screener

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"tradeassist/src/model"
)

func testConfig() Config {
	return Config{
		Symbols:       []string{"RELIANCE"},
		RSIPeriod:     2,
		RSIOversold:   30,
		RSIOverbought: 70,
		EMAPeriod:     10,
		LookbackDays:  60,
	}
}

func dailyCandles(closes []float64) []model.OHLCVDaily {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	candles := make([]model.OHLCVDaily, 0, len(closes))
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		candles = append(candles, model.OHLCVDaily{
			Symbol:    "RELIANCE",
			Timestamp: start.AddDate(0, 0, i),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1000,
		})
	}
	return candles
}

func TestEvaluateBuyOnOversoldDipInUptrend(t *testing.T) {
	s := &Screener{cfg: testConfig(), now: time.Now}

	// A long steady climb keeps the close well above the 10-day EMA,
	// then three sharp down days push the 2-day RSI under 30.
	closes := []float64{
		10, 20, 30, 40, 50, 60, 70, 80, 90, 100,
		110, 120, 130, 140, 150, 160, 170, 180, 190, 200,
		195, 190, 185,
	}

	signal := s.Evaluate("RELIANCE", dailyCandles(closes))

	assert.NotNil(t, signal)
	assert.Equal(t, model.SignalActionBuy, signal.Action)
	assert.Equal(t, "RELIANCE", signal.Symbol)
	assert.InDelta(t, 185, signal.Price, 0.001)
	assert.Less(t, signal.RSI, 30.0)
	assert.Greater(t, signal.Price, signal.EMA)
}

func TestEvaluateSellOnOverbought(t *testing.T) {
	s := &Screener{cfg: testConfig(), now: time.Now}

	// Near-uninterrupted climb drives RSI to the top of its range. The
	// single early dip keeps the loss average nonzero.
	closes := []float64{
		10, 20, 15, 30, 40, 50, 60, 70, 80, 90,
		100, 110, 120, 130, 140, 150, 160, 170, 180, 200,
	}

	signal := s.Evaluate("RELIANCE", dailyCandles(closes))

	assert.NotNil(t, signal)
	assert.Equal(t, model.SignalActionSell, signal.Action)
	assert.Greater(t, signal.RSI, 70.0)
}

func TestEvaluateNeutralProducesNoSignal(t *testing.T) {
	s := &Screener{cfg: testConfig(), now: time.Now}

	// Flat tape: RSI hovers midrange, no rule fires.
	closes := []float64{
		100, 101, 100, 101, 100, 101, 100, 101, 100, 101,
		100, 101, 100, 101, 100,
	}

	assert.Nil(t, s.Evaluate("RELIANCE", dailyCandles(closes)))
}

func TestEvaluateRequiresWarmUp(t *testing.T) {
	s := &Screener{cfg: testConfig(), now: time.Now}

	closes := []float64{100, 90, 80}

	assert.Nil(t, s.Evaluate("RELIANCE", dailyCandles(closes)))
}

type fakeProvider struct {
	candles []model.OHLCVDaily
}

func (f *fakeProvider) FetchOHLCV(_ context.Context, _ string, _, _ time.Time) ([]model.OHLCVDaily, error) {
	return f.candles, nil
}

type fakeOHLCVRepo struct {
	upserted []model.OHLCVDaily
}

func (f *fakeOHLCVRepo) UpsertBatch(_ context.Context, candles []model.OHLCVDaily) error {
	f.upserted = append(f.upserted, candles...)
	return nil
}

func (f *fakeOHLCVRepo) FindBySymbol(_ context.Context, _ string, _ time.Time) ([]model.OHLCVDaily, error) {
	return f.upserted, nil
}

type fakeSignalRepo struct {
	created []model.TradingSignal
}

func (f *fakeSignalRepo) Create(_ context.Context, signal *model.TradingSignal) error {
	f.created = append(f.created, *signal)
	return nil
}

func TestRunPersistsSignals(t *testing.T) {
	closes := []float64{
		10, 20, 30, 40, 50, 60, 70, 80, 90, 100,
		110, 120, 130, 140, 150, 160, 170, 180, 190, 200,
		195, 190, 185,
	}

	signals := &fakeSignalRepo{}
	s := &Screener{
		provider:  &fakeProvider{candles: dailyCandles(closes)},
		ohlcvRepo: &fakeOHLCVRepo{},
		signals:   signals,
		cfg:       testConfig(),
		now:       time.Now,
	}

	produced := s.Run(context.Background())

	assert.Len(t, produced, 1)
	assert.Len(t, signals.created, 1)
	assert.Equal(t, model.SignalActionBuy, signals.created[0].Action)
}
