package screener

import (
	"context"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"
	logger "github.com/sirupsen/logrus"

	"tradeassist/src/controller"
	"tradeassist/src/model"
	"tradeassist/src/repository"
)

type candleProvider interface {
	FetchOHLCV(ctx context.Context, symbol string, from, to time.Time) ([]model.OHLCVDaily, error)
}

type ohlcvRepository interface {
	UpsertBatch(ctx context.Context, candles []model.OHLCVDaily) error
	FindBySymbol(ctx context.Context, symbol string, since time.Time) ([]model.OHLCVDaily, error)
}

type signalRepository interface {
	Create(ctx context.Context, signal *model.TradingSignal) error
}

// Screener refreshes daily candles for the watched symbols and evaluates
// the entry rule over them. A symbol that passes produces a TradingSignal
// row which the entry loop later consumes.
type Screener struct {
	provider  candleProvider
	ohlcvRepo ohlcvRepository
	signals   signalRepository
	cfg       Config
	now       func() time.Time
}

func NewScreener(provider candleProvider, cfg Config) *Screener {
	return &Screener{
		provider:  provider,
		ohlcvRepo: repository.NewOHLCVRepository(),
		signals:   repository.NewTradingSignalRepository(),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run evaluates every configured symbol. Per-symbol failures are logged
// and skipped so one bad instrument does not starve the rest.
func (s *Screener) Run(ctx context.Context) []model.TradingSignal {
	var produced []model.TradingSignal

	for _, raw := range s.cfg.Symbols {
		symbol := controller.NormalizeNSESymbol(raw)
		if symbol == "" {
			continue
		}

		signal, err := s.EvaluateSymbol(ctx, symbol)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "Screener",
				"symbol":    symbol,
			}).WithError(err).Error("symbol evaluation failed")
			continue
		}
		if signal == nil {
			continue
		}

		if err := s.signals.Create(ctx, signal); err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "Screener",
				"symbol":    symbol,
			}).WithError(err).Error("failed to persist trading signal")
			continue
		}

		produced = append(produced, *signal)
	}

	logger.WithFields(map[string]interface{}{
		"component": "Screener",
		"symbols":   len(s.cfg.Symbols),
		"signals":   len(produced),
	}).Info("screener run finished")

	return produced
}

// EvaluateSymbol refreshes the candle store for the symbol and applies
// the rule set against the resulting series. Returns nil when no rule
// fires.
func (s *Screener) EvaluateSymbol(ctx context.Context, symbol string) (*model.TradingSignal, error) {
	now := s.now()
	since := now.AddDate(0, 0, -s.cfg.LookbackDays)

	fetched, err := s.provider.FetchOHLCV(ctx, symbol, since, now)
	if err != nil {
		return nil, err
	}
	if err := s.ohlcvRepo.UpsertBatch(ctx, fetched); err != nil {
		return nil, err
	}

	candles, err := s.ohlcvRepo.FindBySymbol(ctx, symbol, since)
	if err != nil {
		return nil, err
	}

	return s.Evaluate(symbol, candles), nil
}

// Evaluate applies the RSI/EMA rule set to an already-loaded candle
// series. Exposed separately so the rule can be exercised without a
// provider or database.
func (s *Screener) Evaluate(symbol string, candles []model.OHLCVDaily) *model.TradingSignal {
	// The long EMA needs a full warm-up window before its value means
	// anything.
	if len(candles) <= s.cfg.EMAPeriod {
		logger.WithFields(map[string]interface{}{
			"component": "Screener",
			"symbol":    symbol,
			"candles":   len(candles),
		}).Debug("not enough candles for indicator warm-up")
		return nil
	}

	series := buildSeries(candles)
	lastIndex := len(series.Candles) - 1

	closePrices := techan.NewClosePriceIndicator(series)
	rsi := techan.NewRelativeStrengthIndexIndicator(closePrices, s.cfg.RSIPeriod)
	ema := techan.NewEMAIndicator(closePrices, s.cfg.EMAPeriod)

	lastClose := closePrices.Calculate(lastIndex).Float()
	lastRSI := rsi.Calculate(lastIndex).Float()
	lastEMA := ema.Calculate(lastIndex).Float()

	var action string
	switch {
	case lastRSI < s.cfg.RSIOversold && lastClose > lastEMA:
		// Oversold dip inside a long-term uptrend.
		action = model.SignalActionBuy
	case lastRSI > s.cfg.RSIOverbought:
		action = model.SignalActionSell
	default:
		return nil
	}

	return &model.TradingSignal{
		Symbol:      symbol,
		Action:      action,
		Price:       lastClose,
		RSI:         lastRSI,
		EMA:         lastEMA,
		Interval:    "day",
		GeneratedAt: candles[len(candles)-1].Timestamp,
	}
}

func buildSeries(candles []model.OHLCVDaily) *techan.TimeSeries {
	series := techan.NewTimeSeries()

	for _, c := range candles {
		period := techan.NewTimePeriod(c.Timestamp, 24*time.Hour)
		candle := techan.NewCandle(period)
		candle.OpenPrice = big.NewFromString(c.Open.String())
		candle.ClosePrice = big.NewFromString(c.Close.String())
		candle.MaxPrice = big.NewFromString(c.High.String())
		candle.MinPrice = big.NewFromString(c.Low.String())
		candle.Volume = big.NewDecimal(float64(c.Volume))
		series.AddCandle(candle)
	}

	return series
}
