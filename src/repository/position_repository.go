package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeassist/src/database"
	"tradeassist/src/model"
)

// PositionRepository handles read/write operations for positions.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new position row.
func (r *PositionRepository) Create(
	ctx context.Context,
	pos *model.Position,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":    "PositionRepository",
		"op":      "Create",
		"user_id": pos.UserID,
		"symbol":  pos.Symbol,
		"qty":     pos.Quantity,
	}).Info("Creating position")

	err := r.db.WithContext(ctx).Create(pos).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "Create",
			"user_id": pos.UserID,
			"symbol":  pos.Symbol,
		}).WithError(err).Error("Failed to create position")

		return err
	}

	return nil
}

// Save persists all mutable aggregate fields of an existing position.
func (r *PositionRepository) Save(
	ctx context.Context,
	pos *model.Position,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":      "PositionRepository",
		"op":        "Save",
		"user_id":   pos.UserID,
		"symbol":    pos.Symbol,
		"qty":       pos.Quantity,
		"avg_price": pos.AvgPrice,
	}).Debug("Saving position")

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ?", pos.ID).
		Updates(map[string]interface{}{
			"quantity":           pos.Quantity,
			"avg_price":          pos.AvgPrice,
			"last_reentry_price": pos.LastReentryPrice,
			"reentry_count":      pos.ReentryCount,
			"reentries":          pos.Reentries,
			"unrealized_pnl":     pos.UnrealizedPnl,
			"realized_pnl":       pos.RealizedPnl,
			"status":             pos.Status,
			"closed_at":          pos.ClosedAt,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "Save",
			"user_id": pos.UserID,
			"symbol":  pos.Symbol,
		}).WithError(err).Error("Failed to save position")

		return err
	}

	return nil
}

// FindOpenByUserAndSymbol fetches the single open position for the pair.
// Returns (nil, nil) if no open position exists.
func (r *PositionRepository) FindOpenByUserAndSymbol(
	ctx context.Context,
	userID uint,
	symbol string,
) (*model.Position, error) {

	var pos model.Position

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ? AND status = ?", userID, symbol, model.PositionStatusOpen).
		First(&pos).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "FindOpenByUserAndSymbol",
			"user_id": userID,
			"symbol":  symbol,
		}).WithError(err).Error("Failed to fetch open position")

		return nil, err
	}

	return &pos, nil
}

// FindOpenByUser lists all open positions of a user.
func (r *PositionRepository) FindOpenByUser(
	ctx context.Context,
	userID uint,
) ([]model.Position, error) {

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.PositionStatusOpen).
		Order("symbol ASC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "FindOpenByUser",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch open positions")

		return nil, err
	}

	return positions, nil
}
