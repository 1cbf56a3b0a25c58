package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeassist/src/database"
	"tradeassist/src/model"
)

// TradingSignalRepository stores and serves screener output.
type TradingSignalRepository struct {
	db *gorm.DB
}

func NewTradingSignalRepository() *TradingSignalRepository {
	return &TradingSignalRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradingSignalRepository) WithDB(db *gorm.DB) *TradingSignalRepository {
	return &TradingSignalRepository{db: db}
}

// Create persists a new trading signal.
func (r *TradingSignalRepository) Create(
	ctx context.Context,
	signal *model.TradingSignal,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":   "TradingSignalRepository",
		"op":     "Create",
		"symbol": signal.Symbol,
		"action": signal.Action,
		"rsi":    signal.RSI,
	}).Info("Persisting trading signal")

	return r.db.WithContext(ctx).Create(signal).Error
}

// FindLatest returns the newest signals for a symbol, newest first.
func (r *TradingSignalRepository) FindLatest(
	ctx context.Context,
	symbol string,
	limit int,
) ([]model.TradingSignal, error) {

	if limit <= 0 {
		limit = 1
	}

	var signals []model.TradingSignal

	query := r.db.WithContext(ctx)
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}

	err := query.
		Order("generated_at DESC").
		Limit(limit).
		Find(&signals).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradingSignalRepository",
			"op":     "FindLatest",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch latest signals")

		return nil, err
	}

	return signals, nil
}
