package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"tradeassist/src/model"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPositionRepositoryFindOpenByUserAndSymbol(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&PositionRepository{}).WithDB(mockDB)

	openedAt := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	t.Run("returns the open position", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "user_id", "symbol", "quantity", "avg_price", "reentry_count", "reentries", "status", "opened_at"}).
			AddRow(3, 1, "INFY", 20.0, 90.0, 1, `[{"date":"2026-02-02T10:30:00Z","price":80,"qty":10}]`, "OPEN", openedAt)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "positions" WHERE user_id = $1 AND symbol = $2 AND status = $3 ORDER BY "positions"."id" LIMIT $4`)).
			WithArgs(uint(1), "INFY", model.PositionStatusOpen, 1).
			WillReturnRows(rows)

		pos, err := repo.FindOpenByUserAndSymbol(context.Background(), 1, "INFY")
		if err != nil {
			t.Fatalf("unexpected error fetching position: %v", err)
		}
		if pos == nil {
			t.Fatal("expected a position, got nil")
		}

		// Legacy uppercase status rows normalize on read.
		if pos.Status != model.PositionStatusOpen {
			t.Fatalf("expected normalized open status, got %q", pos.Status)
		}
		if len(pos.Reentries) != 1 || pos.Reentries[0].Price != 80 {
			t.Fatalf("expected reentry history decoded from JSON, got %+v", pos.Reentries)
		}
	})

	t.Run("returns nil when no open position exists", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "positions" WHERE user_id = $1 AND symbol = $2 AND status = $3 ORDER BY "positions"."id" LIMIT $4`)).
			WithArgs(uint(1), "TCS", model.PositionStatusOpen, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		pos, err := repo.FindOpenByUserAndSymbol(context.Background(), 1, "TCS")
		if err != nil {
			t.Fatalf("expected no error for missing position, got %v", err)
		}
		if pos != nil {
			t.Fatalf("expected nil position, got %+v", pos)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestPositionRepositorySave(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&PositionRepository{}).WithDB(mockDB)

	lastReentry := 80.0
	pos := &model.Position{
		ID:               3,
		UserID:           1,
		Symbol:           "INFY",
		Quantity:         20,
		AvgPrice:         90,
		LastReentryPrice: &lastReentry,
		ReentryCount:     1,
		Reentries: model.ReentryList{
			{Date: time.Date(2026, 2, 2, 10, 30, 0, 0, time.UTC), Price: 80, Quantity: 10},
		},
		Status: model.PositionStatusOpen,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "positions" SET "avg_price"=$1,"closed_at"=$2,"last_reentry_price"=$3,"quantity"=$4,"realized_pnl"=$5,"reentries"=$6,"reentry_count"=$7,"status"=$8,"unrealized_pnl"=$9,"updated_at"=$10 WHERE id = $11`)).
		WithArgs(90.0, nil, 80.0, 20.0, 0.0, sqlmock.AnyArg(), 1, model.PositionStatusOpen, 0.0, sqlmock.AnyArg(), uint(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Save(context.Background(), pos); err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
