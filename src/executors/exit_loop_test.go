package executors

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeassist/src/model"
)

type fakeExitPositionSource struct {
	positions []model.Position
}

func (f *fakeExitPositionSource) FindOpenByUser(_ context.Context, _ uint) ([]model.Position, error) {
	return f.positions, nil
}

type fakeCandleSource struct {
	candles []model.OHLCVDaily
}

func (f *fakeCandleSource) FindBySymbol(_ context.Context, _ string, _ time.Time) ([]model.OHLCVDaily, error) {
	return f.candles, nil
}

type fakeLastPriceSource struct {
	prices map[string]float64
}

func (f *fakeLastPriceSource) LastPrice(_ context.Context, symbol string) (float64, error) {
	return f.prices[symbol], nil
}

func newTestStopLossMonitor(lc orderLifecycle, positions []model.Position, prices map[string]float64) *StopLossMonitor {
	return &StopLossMonitor{
		lifecycle:       lc,
		positions:       &fakeExitPositionSource{positions: positions},
		candles:         &fakeCandleSource{},
		orders:          &fakeEntryOrderSource{},
		prices:          &fakeLastPriceSource{prices: prices},
		user:            &model.User{ID: 1},
		stops:           map[uint]decimal.Decimal{},
		stopLossPercent: 5,
		lookback:        20,
		now:             func() time.Time { return middayIST },
	}
}

func TestStopLossMonitorLiquidatesOnBreach(t *testing.T) {
	lc := &fakeLifecycle{}
	pos := model.Position{
		ID:                1,
		UserID:            1,
		Symbol:            "RELIANCE",
		Quantity:          50,
		InitialEntryPrice: 100,
		Status:            model.PositionStatusOpen,
	}

	// Initial stop is 95 (5% under entry); last price 94 breaches it.
	monitor := newTestStopLossMonitor(lc, []model.Position{pos}, map[string]float64{"RELIANCE": 94})

	require.NoError(t, monitor.RunOnce(context.Background()))
	require.Len(t, lc.submitted, 1)

	order := lc.submitted[0]
	assert.Equal(t, model.OrderSideSell, order.Side)
	assert.Equal(t, 50.0, order.Quantity)

	sc, err := order.SignalContext()
	require.NoError(t, err)
	assert.Equal(t, "trailing stop-loss", sc.Note)
}

func TestStopLossMonitorHoldsAboveStop(t *testing.T) {
	lc := &fakeLifecycle{}
	pos := model.Position{
		ID:                1,
		UserID:            1,
		Symbol:            "RELIANCE",
		Quantity:          50,
		InitialEntryPrice: 100,
		Status:            model.PositionStatusOpen,
	}

	monitor := newTestStopLossMonitor(lc, []model.Position{pos}, map[string]float64{"RELIANCE": 97})

	require.NoError(t, monitor.RunOnce(context.Background()))
	assert.Empty(t, lc.submitted)

	// Stop was seeded and kept for the next sweep.
	stop, ok := monitor.stops[1]
	require.True(t, ok)
	assert.True(t, stop.Equal(decimal.NewFromInt(95)))
}

func TestStopLossMonitorRatchetsFromCandles(t *testing.T) {
	lc := &fakeLifecycle{}
	pos := model.Position{
		ID:                1,
		UserID:            1,
		Symbol:            "RELIANCE",
		Quantity:          50,
		InitialEntryPrice: 100,
		Status:            model.PositionStatusOpen,
	}

	monitor := newTestStopLossMonitor(lc, []model.Position{pos}, map[string]float64{"RELIANCE": 120})
	// Bullish previous candle with lows well above the seeded 95 stop.
	start := middayIST.AddDate(0, 0, -3)
	var candles []model.OHLCVDaily
	for i, row := range []struct{ o, h, l, c float64 }{
		{110, 112, 105, 111},
		{111, 118, 106, 117}, // prev: bullish, low 106
		{117, 121, 115, 120},
	} {
		candles = append(candles, model.OHLCVDaily{
			Symbol:    "RELIANCE",
			Timestamp: start.AddDate(0, 0, i),
			Open:      decimal.NewFromFloat(row.o),
			High:      decimal.NewFromFloat(row.h),
			Low:       decimal.NewFromFloat(row.l),
			Close:     decimal.NewFromFloat(row.c),
		})
	}
	monitor.candles = &fakeCandleSource{candles: candles}

	require.NoError(t, monitor.RunOnce(context.Background()))
	assert.Empty(t, lc.submitted)

	// avg(low) over the window is (105+106+115)/3, clamped to prev.Low 106.
	stop := monitor.stops[1]
	assert.True(t, stop.GreaterThan(decimal.NewFromInt(95)), "stop should have ratcheted up, got %s", stop)
}

func TestStopLossMonitorDropsClosedPositions(t *testing.T) {
	lc := &fakeLifecycle{}
	monitor := newTestStopLossMonitor(lc, nil, map[string]float64{})
	monitor.stops[42] = decimal.NewFromInt(95)

	require.NoError(t, monitor.RunOnce(context.Background()))
	assert.Empty(t, monitor.stops)
}

func TestStopLossMonitorSkipsWhenOrderInFlight(t *testing.T) {
	lc := &fakeLifecycle{}
	pos := model.Position{
		ID:                1,
		UserID:            1,
		Symbol:            "RELIANCE",
		Quantity:          50,
		InitialEntryPrice: 100,
		Status:            model.PositionStatusOpen,
	}

	monitor := newTestStopLossMonitor(lc, []model.Position{pos}, map[string]float64{"RELIANCE": 90})
	monitor.orders = &fakeEntryOrderSource{open: []model.Order{
		{ID: 2, UserID: 1, Symbol: "RELIANCE", Status: model.OrderStatusPending},
	}}

	require.NoError(t, monitor.RunOnce(context.Background()))
	assert.Empty(t, lc.submitted)
}
