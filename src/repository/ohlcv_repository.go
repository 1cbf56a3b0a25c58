package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeassist/src/database"
	"tradeassist/src/model"
)

// OHLCVRepository stores daily candles used by the screener.
type OHLCVRepository struct {
	db *gorm.DB
}

func NewOHLCVRepository() *OHLCVRepository {
	return &OHLCVRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *OHLCVRepository) WithDB(db *gorm.DB) *OHLCVRepository {
	return &OHLCVRepository{db: db}
}

// UpsertBatch inserts candles, replacing rows that already exist for the
// same symbol and timestamp so re-ingestion is idempotent.
func (r *OHLCVRepository) UpsertBatch(
	ctx context.Context,
	candles []model.OHLCVDaily,
) error {

	if len(candles) == 0 {
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"repo": "OHLCVRepository",
		"op":   "UpsertBatch",
		"rows": len(candles),
	}).Debug("Upserting candles")

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "timestamp"}},
			UpdateAll: true,
		}).
		Create(&candles).Error
}

// FindBySymbol returns candles for a symbol since the given time, oldest
// first so indicator series can be built directly.
func (r *OHLCVRepository) FindBySymbol(
	ctx context.Context,
	symbol string,
	since time.Time,
) ([]model.OHLCVDaily, error) {

	var candles []model.OHLCVDaily

	err := r.db.WithContext(ctx).
		Where("symbol = ? AND timestamp >= ?", symbol, since).
		Order("timestamp ASC").
		Find(&candles).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "OHLCVRepository",
			"op":     "FindBySymbol",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch candles")

		return nil, err
	}

	return candles, nil
}
