package ohlcv

import (
	"context"
	"database/sql"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeassist/src/controller"
	"tradeassist/src/marketdata"
	"tradeassist/src/model"
	"tradeassist/src/repository"
	"tradeassist/src/utils"
)

type candleFetcher interface {
	FetchOHLCV(ctx context.Context, symbol string, from, to time.Time) ([]model.OHLCVDaily, error)
}

type candleStore interface {
	UpsertBatch(ctx context.Context, candles []model.OHLCVDaily) error
}

// Backfill loads daily candle history for the configured symbols into
// the database so the screener has enough bars for its indicators.
type Backfill struct {
	Log    *logger.Entry
	DB     *gorm.DB
	Config *Config

	provider candleFetcher
	store    candleStore
}

func (b *Backfill) Start() error {
	b.Config = GetConfig()

	if b.provider == nil {
		b.provider = marketdata.NewRESTProvider(marketdata.GetConfig())
	}
	if b.store == nil {
		b.store = repository.NewOHLCVRepository().WithDB(b.DB)
	}

	ctx := context.Background()

	var lastErr error
	for _, raw := range b.Config.Symbols {
		symbol := controller.NormalizeNSESymbol(raw)
		if symbol == "" {
			continue
		}

		if err := b.backfillSymbol(ctx, symbol); err != nil {
			b.Log.WithError(err).WithField("symbol", symbol).Error("backfill failed for symbol")
			lastErr = err
		}
	}

	return lastErr
}

func (b *Backfill) backfillSymbol(ctx context.Context, symbol string) error {
	start := utils.ResetTime(b.Config.StartDt, "day")
	end := utils.ResetTime(b.Config.EndDt, "day")

	if b.Config.AutoMode {
		determined, err := b.determineStartPoint(symbol)
		if err != nil {
			return err
		}
		start = determined
		end = utils.ResetTime(time.Now(), "day")
	}

	candles, err := b.provider.FetchOHLCV(ctx, symbol, start, end)
	if err != nil {
		return err
	}

	// The API may answer with intraday timestamps. Candles are keyed by
	// day, so normalize before upserting.
	for i := range candles {
		candles[i].Timestamp = utils.ResetTime(candles[i].Timestamp, "day")
	}

	if err := b.store.UpsertBatch(ctx, candles); err != nil {
		b.Log.WithError(err).Error("backfillSymbol, UpsertBatch, ")
		return err
	}

	b.Log.WithFields(logger.Fields{
		"Symbol": symbol,
		"Rows":   len(candles),
		"From":   start,
		"To":     end,
	}).Info("OHLCV data inserted or updated in database")

	return nil
}

// determineStartPoint resumes the backfill one day before the newest
// stored candle so the most recent bar is refreshed too.
func (b *Backfill) determineStartPoint(symbol string) (time.Time, error) {
	var latestTime *sql.NullTime
	result := b.DB.Model(&model.OHLCVDaily{}).
		Select("MAX(timestamp)").
		Where("symbol = ?", symbol).
		Take(&latestTime)

	b.Log.
		WithField("latestTime", latestTime).
		Info("determineStartPoint")

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			b.Log.
				WithError(result.Error).
				WithField("StartDt", b.Config.StartDt.String()).
				Error("no records found, start from the configured StartDt")
			return utils.ResetTime(b.Config.StartDt, "day"), nil
		}
		b.Log.
			WithError(result.Error).
			Error("Failed to query latest timestamp")
		return time.Time{}, result.Error
	}

	if latestTime != nil && latestTime.Valid {
		start := utils.ResetTime(latestTime.Time.AddDate(0, 0, -1), "day")
		b.Log.
			WithField("StartDt", start.String()).
			Info("determineStartPoint valid date found")
		return start, nil
	}

	return utils.ResetTime(b.Config.StartDt, "day"), nil
}
