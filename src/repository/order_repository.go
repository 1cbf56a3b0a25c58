package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeassist/src/database"
	"tradeassist/src/model"
)

// ErrStaleOrder is returned by TransitionStatus when the optimistic
// concurrency check fails: another task transitioned the order between
// our read and our write.
var ErrStaleOrder = errors.New("order was modified concurrently")

// OrderRepository handles read/write operations for orders, their fills
// and their audit logs.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main read/write database.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// ---------------------------------------------------
// Order methods
// ---------------------------------------------------

// Create inserts a new order together with its first audit log row.
// The given order will be updated with the generated ID and timestamps.
func (r *OrderRepository) Create(
	ctx context.Context,
	order *model.Order,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":   "OrderRepository",
		"op":     "Create",
		"symbol": order.Symbol,
		"side":   order.Side,
		"qty":    order.Quantity,
	}).Debug("Creating new order")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return tx.Create(auditLog(order, order.Status, "")).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
	}).Info("Order created successfully")

	return nil
}

// FindByID fetches a single order with its fills by primary ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).
		Preload("Fills").
		First(&order, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "OrderRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Order not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, err
	}

	return &order, nil
}

// FindByBrokerOrderID fetches an order by the broker-assigned ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByBrokerOrderID(
	ctx context.Context,
	brokerOrderID string,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).
		Preload("Fills").
		Where("broker_order_id = ?", brokerOrderID).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":            "OrderRepository",
			"op":              "FindByBrokerOrderID",
			"broker_order_id": brokerOrderID,
		}).WithError(err).Error("Failed to fetch order by broker order ID")

		return nil, err
	}

	return &order, nil
}

// FindByUserAndStatus lists a user's orders in the given status, oldest
// first so background loops work through them in placement order.
func (r *OrderRepository) FindByUserAndStatus(
	ctx context.Context,
	userID uint,
	status string,
) ([]model.Order, error) {

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Preload("Fills").
		Where("user_id = ? AND status = ?", userID, model.NormalizeOrderStatus(status)).
		Order("id ASC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "OrderRepository",
			"op":      "FindByUserAndStatus",
			"user_id": userID,
			"status":  status,
		}).WithError(err).Error("Failed to fetch orders by user and status")

		return nil, err
	}

	return orders, nil
}

// FindOpenOrders lists all orders awaiting broker resolution, i.e. in
// pending or partially_filled status with a broker order ID assigned.
func (r *OrderRepository) FindOpenOrders(
	ctx context.Context,
	limit int,
) ([]model.Order, error) {

	if limit <= 0 {
		limit = 100
	}

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Preload("Fills").
		Where("status IN ? AND broker_order_id IS NOT NULL",
			[]string{model.OrderStatusPending, model.OrderStatusPartiallyFilled}).
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindOpenOrders",
		}).WithError(err).Error("Failed to fetch open orders")

		return nil, err
	}

	return orders, nil
}

// FindRetryQueue lists pending orders that failed at least once, have no
// broker order ID yet and still have retry budget left.
func (r *OrderRepository) FindRetryQueue(
	ctx context.Context,
	maxRetries int,
	limit int,
) ([]model.Order, error) {

	if limit <= 0 {
		limit = 100
	}

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("status = ? AND broker_order_id IS NULL AND first_failed_at IS NOT NULL AND retry_count < ?",
			model.OrderStatusPending, maxRetries).
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindRetryQueue",
		}).WithError(err).Error("Failed to fetch retry queue")

		return nil, err
	}

	return orders, nil
}

// TransitionStatus atomically updates the order status and the given
// extra fields, guarded by an optimistic check on updated_at. An audit
// log row is written in the same transaction. Returns ErrStaleOrder when
// another task transitioned the order first.
func (r *OrderRepository) TransitionStatus(
	ctx context.Context,
	order *model.Order,
	newStatus string,
	updates map[string]interface{},
) error {

	newStatus = model.NormalizeOrderStatus(newStatus)

	logger.WithFields(map[string]interface{}{
		"repo":       "OrderRepository",
		"op":         "TransitionStatus",
		"order_id":   order.ID,
		"old_status": order.Status,
		"new_status": newStatus,
	}).Info("Transitioning order status")

	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = newStatus

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Order{}).
			Where("id = ? AND updated_at = ?", order.ID, order.UpdatedAt).
			Updates(updates)

		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleOrder
		}

		reason, _ := updates["reason"].(string)
		if err := tx.Create(auditLog(order, newStatus, reason)).Error; err != nil {
			return err
		}

		var fresh model.Order
		if err := tx.First(&fresh, order.ID).Error; err != nil {
			return err
		}
		*order = fresh
		return nil
	})
}

// RecordRetryAttempt bumps the retry bookkeeping on a pending order
// without changing its status.
func (r *OrderRepository) RecordRetryAttempt(
	ctx context.Context,
	order *model.Order,
	reason string,
) error {

	now := time.Now()
	updates := map[string]interface{}{
		"retry_count":        gorm.Expr("retry_count + 1"),
		"last_retry_attempt": now,
		"reason":             reason,
	}
	if order.FirstFailedAt == nil {
		updates["first_failed_at"] = now
	}

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", order.ID).
		Updates(updates).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "RecordRetryAttempt",
			"order_id": order.ID,
		}).WithError(err).Error("Failed to record retry attempt")

		return err
	}

	order.RetryCount++
	order.LastRetryAttempt = &now
	if order.FirstFailedAt == nil {
		order.FirstFailedAt = &now
	}
	order.Reason = reason

	return nil
}

// MarkPlacementDeferred stamps the failure bookkeeping for a placement
// that was blocked before reaching the broker, without consuming retry
// budget. The order stays pending and visible to the retry dispatcher.
func (r *OrderRepository) MarkPlacementDeferred(
	ctx context.Context,
	order *model.Order,
	reason string,
) error {

	now := time.Now()
	updates := map[string]interface{}{
		"reason": reason,
	}
	if order.FirstFailedAt == nil {
		updates["first_failed_at"] = now
	}

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", order.ID).
		Updates(updates).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "MarkPlacementDeferred",
			"order_id": order.ID,
		}).WithError(err).Error("Failed to mark placement deferred")

		return err
	}

	if order.FirstFailedAt == nil {
		order.FirstFailedAt = &now
	}
	order.Reason = reason

	return nil
}

// SetBrokerOrderID stamps the broker-assigned ID and placement time after
// a successful placement.
func (r *OrderRepository) SetBrokerOrderID(
	ctx context.Context,
	order *model.Order,
	brokerOrderID string,
) error {

	now := time.Now()

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"broker_order_id": brokerOrderID,
			"placed_at":       now,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":            "OrderRepository",
			"op":              "SetBrokerOrderID",
			"order_id":        order.ID,
			"broker_order_id": brokerOrderID,
		}).WithError(err).Error("Failed to set broker order ID")

		return err
	}

	order.BrokerOrderID = &brokerOrderID
	order.PlacedAt = &now
	return nil
}

// TouchStatusCheck stamps the last successful broker status poll.
func (r *OrderRepository) TouchStatusCheck(
	ctx context.Context,
	orderID uint,
) error {

	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("last_status_check", time.Now()).Error
}

// ---------------------------------------------------
// Fill methods
// ---------------------------------------------------

// AppendFill stores a new fill record for the order.
func (r *OrderRepository) AppendFill(
	ctx context.Context,
	fill *model.Fill,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "AppendFill",
		"order_id": fill.OrderID,
		"qty":      fill.Quantity,
		"price":    fill.Price,
	}).Debug("Appending fill")

	err := r.db.WithContext(ctx).Create(fill).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "AppendFill",
			"order_id": fill.OrderID,
		}).WithError(err).Error("Failed to append fill")

		return err
	}

	return nil
}

// FindFillsByOrderID returns all fills of an order in insertion order.
func (r *OrderRepository) FindFillsByOrderID(
	ctx context.Context,
	orderID uint,
) ([]model.Fill, error) {

	var fills []model.Fill

	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&fills).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "FindFillsByOrderID",
			"order_id": orderID,
		}).WithError(err).Error("Failed to fetch fills")

		return nil, err
	}

	return fills, nil
}

// OrderSearchOptions narrows a paginated order listing for the HTTP read
// path. Zero-valued filters are skipped.
type OrderSearchOptions struct {
	UserID        uint
	Symbol        *string
	Status        *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// Search lists a user's orders newest first with optional filters and
// pagination.
func (r *OrderRepository) Search(
	ctx context.Context,
	options OrderSearchOptions,
) ([]model.Order, error) {

	if options.Limit <= 0 {
		options.Limit = 20
	}

	query := r.db.WithContext(ctx).
		Preload("Fills").
		Where("user_id = ?", options.UserID)

	if options.Symbol != nil {
		query = query.Where("symbol = ?", *options.Symbol)
	}
	if options.Status != nil {
		query = query.Where("status = ?", model.NormalizeOrderStatus(*options.Status))
	}
	if options.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *options.CreatedAfter)
	}
	if options.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *options.CreatedBefore)
	}

	var orders []model.Order
	err := query.
		Order("id DESC").
		Limit(options.Limit).
		Offset(options.Offset).
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "OrderRepository",
			"op":      "Search",
			"user_id": options.UserID,
		}).WithError(err).Error("Failed to search orders")

		return nil, err
	}

	return orders, nil
}

func auditLog(order *model.Order, status, reason string) *model.OrderLog {
	return &model.OrderLog{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		OrderType: order.OrderType,
		Quantity:  order.Quantity,
		Price:     order.Price,
		Status:    model.NormalizeOrderStatus(status),
		Reason:    reason,
		CreatedAt: time.Now(),
	}
}
