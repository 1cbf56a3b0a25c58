package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"tradeassist/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestOrderRepositoryRetryQueue(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&OrderRepository{}).WithDB(mockDB)

	createdAt := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "user_id", "symbol", "side", "status", "retry_count", "created_at", "updated_at"}).
		AddRow(4, 1, "RELIANCE", "buy", "PENDING", 1, createdAt, createdAt).
		AddRow(9, 2, "TCS", "buy", "retry_pending", 2, createdAt, createdAt)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE status = $1 AND broker_order_id IS NULL AND first_failed_at IS NOT NULL AND retry_count < $2 ORDER BY id ASC LIMIT $3`)).
		WithArgs(model.OrderStatusPending, 3, 100).
		WillReturnRows(rows)

	orders, err := repo.FindRetryQueue(context.Background(), 3, 0)
	if err != nil {
		t.Fatalf("unexpected error fetching retry queue: %v", err)
	}

	if len(orders) != 2 {
		t.Fatalf("expected 2 retryable orders, got %d", len(orders))
	}

	// Legacy status spellings must be canonicalized on read.
	for _, order := range orders {
		if order.Status != model.OrderStatusPending {
			t.Fatalf("expected normalized pending status, got %q", order.Status)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestOrderRepositoryFindByUserAndStatus(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&OrderRepository{}).WithDB(mockDB)

	createdAt := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	orderRows := sqlmock.NewRows([]string{"id", "user_id", "symbol", "side", "order_type", "quantity", "status", "created_at", "updated_at"}).
		AddRow(7, 1, "INFY", "buy", "limit", 10.0, "pending", createdAt, createdAt)

	// The legacy "open" alias must be normalized before it hits the query.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE user_id = $1 AND status = $2 ORDER BY id ASC`)).
		WithArgs(uint(1), model.OrderStatusPending).
		WillReturnRows(orderRows)

	fillRows := sqlmock.NewRows([]string{"id", "order_id", "quantity", "price", "timestamp"}).
		AddRow(1, 7, 4.0, 1510.5, createdAt)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "fills" WHERE "fills"."order_id" = $1`)).
		WithArgs(7).
		WillReturnRows(fillRows)

	orders, err := repo.FindByUserAndStatus(context.Background(), 1, "open")
	if err != nil {
		t.Fatalf("unexpected error fetching orders: %v", err)
	}

	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}

	if got := orders[0].FilledQuantity(); got != 4.0 {
		t.Fatalf("expected filled quantity 4.0 from preloaded fills, got %v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestOrderRepositoryTransitionStatus(t *testing.T) {
	updatedAt := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)

	order := func() *model.Order {
		return &model.Order{
			ID:        7,
			UserID:    1,
			Symbol:    "INFY",
			Side:      "buy",
			OrderType: "limit",
			Quantity:  10,
			Status:    model.OrderStatusPending,
			UpdatedAt: updatedAt,
		}
	}

	t.Run("writes status, audit log and reloads", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := (&OrderRepository{}).WithDB(mockDB)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET "status"=$1,"updated_at"=$2 WHERE id = $3 AND updated_at = $4`)).
			WithArgs(model.OrderStatusFilled, sqlmock.AnyArg(), uint(7), updatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "order_logs" (`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		reloaded := sqlmock.NewRows([]string{"id", "user_id", "symbol", "status", "updated_at"}).
			AddRow(7, 1, "INFY", "filled", updatedAt.Add(time.Second))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE "orders"."id" = $1 ORDER BY "orders"."id" LIMIT $2`)).
			WithArgs(uint(7), 1).
			WillReturnRows(reloaded)
		mock.ExpectCommit()

		target := order()
		if err := repo.TransitionStatus(context.Background(), target, model.OrderStatusFilled, nil); err != nil {
			t.Fatalf("expected transition to succeed, got %v", err)
		}

		if target.Status != model.OrderStatusFilled {
			t.Fatalf("expected in-memory order refreshed to filled, got %q", target.Status)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
	})

	t.Run("returns ErrStaleOrder on concurrent modification", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := (&OrderRepository{}).WithDB(mockDB)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET "status"=$1,"updated_at"=$2 WHERE id = $3 AND updated_at = $4`)).
			WithArgs(model.OrderStatusCancelled, sqlmock.AnyArg(), uint(7), updatedAt).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.TransitionStatus(context.Background(), order(), model.OrderStatusCancelled, nil)
		if !errors.Is(err, ErrStaleOrder) {
			t.Fatalf("expected ErrStaleOrder, got %v", err)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
	})
}

func TestOrderRepositoryRecordRetryAttempt(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&OrderRepository{}).WithDB(mockDB)

	order := &model.Order{
		ID:     12,
		UserID: 1,
		Symbol: "HDFCBANK",
		Status: model.OrderStatusPending,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET "first_failed_at"=$1,"last_retry_attempt"=$2,"reason"=$3,"retry_count"=retry_count + 1,"updated_at"=$4 WHERE id = $5`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "NetworkException: request timed out", sqlmock.AnyArg(), uint(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.RecordRetryAttempt(context.Background(), order, "NetworkException: request timed out"); err != nil {
		t.Fatalf("expected retry bookkeeping to succeed, got %v", err)
	}

	if order.RetryCount != 1 {
		t.Fatalf("expected in-memory retry count bumped to 1, got %d", order.RetryCount)
	}
	if order.FirstFailedAt == nil || order.LastRetryAttempt == nil {
		t.Fatalf("expected failure timestamps set in memory: %+v", order)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}
