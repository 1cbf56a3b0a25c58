package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeassist/src/database"
	"tradeassist/src/model"
)

// NotificationPreferenceRepository reads and writes per-user notification
// opt-in flags.
type NotificationPreferenceRepository struct {
	db *gorm.DB
}

func NewNotificationPreferenceRepository() *NotificationPreferenceRepository {
	return &NotificationPreferenceRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *NotificationPreferenceRepository) WithDB(db *gorm.DB) *NotificationPreferenceRepository {
	return &NotificationPreferenceRepository{db: db}
}

// GetByUser fetches the user's preferences. Returns (nil, nil) when no
// row exists; callers treat that as all-enabled defaults.
func (r *NotificationPreferenceRepository) GetByUser(
	ctx context.Context,
	userID uint,
) (*model.NotificationPreference, error) {

	var pref model.NotificationPreference

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&pref).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "NotificationPreferenceRepository",
			"op":      "GetByUser",
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch notification preferences")

		return nil, err
	}

	return &pref, nil
}

// Upsert creates or updates the user's preference row.
func (r *NotificationPreferenceRepository) Upsert(
	ctx context.Context,
	pref *model.NotificationPreference,
) error {

	existing, err := r.GetByUser(ctx, pref.UserID)
	if err != nil {
		return err
	}

	if existing == nil {
		return r.db.WithContext(ctx).Create(pref).Error
	}

	pref.ID = existing.ID
	return r.db.WithContext(ctx).Save(pref).Error
}
