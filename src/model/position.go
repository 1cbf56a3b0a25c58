package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// NormalizePositionStatus lowercases legacy status values read from old
// rows so enum comparisons stay case-insensitive at the boundary.
func NormalizePositionStatus(status string) string {
	switch s := strings.ToLower(strings.TrimSpace(status)); s {
	case "":
		return PositionStatusOpen
	default:
		return s
	}
}

// ReentryEvent records one averaging-down buy applied to an open position.
type ReentryEvent struct {
	Date     time.Time `json:"date"`
	Price    float64   `json:"price"`
	Quantity float64   `json:"qty"`
}

// ReentryList stores the ordered reentry history as a JSON column.
type ReentryList []ReentryEvent

func (l ReentryList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *ReentryList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into ReentryList", value)
	}
}

// Position aggregates all fills for one user/symbol pair. There is at most
// one open position per user per symbol at a time.
type Position struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"index;uniqueIndex:idx_positions_user_symbol" json:"user_id"`
	Symbol string `gorm:"size:30;uniqueIndex:idx_positions_user_symbol" json:"symbol"`

	Quantity          float64 `json:"quantity"`
	AvgPrice          float64 `json:"avg_price"`
	InitialEntryPrice float64 `json:"initial_entry_price"`
	LastReentryPrice  *float64 `json:"last_reentry_price,omitempty"`

	ReentryCount int         `gorm:"not null;default:0" json:"reentry_count"`
	Reentries    ReentryList `gorm:"type:jsonb" json:"reentries,omitempty"`

	UnrealizedPnl float64 `json:"unrealized_pnl"`
	RealizedPnl   float64 `json:"realized_pnl"`

	// EntryRSI is the RSI at the original entry, kept for exit-rule
	// evaluation over the life of the position.
	EntryRSI *float64 `json:"entry_rsi,omitempty"`

	Status    string     `gorm:"size:50;not null;default:open" json:"status"`
	OpenedAt  time.Time  `json:"opened_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// AfterFind canonicalizes legacy uppercase status values on read.
func (p *Position) AfterFind(_ *gorm.DB) error {
	p.Status = NormalizePositionStatus(p.Status)
	return nil
}

// IsOpen reports whether the position still holds quantity.
func (p *Position) IsOpen() bool {
	return p.ClosedAt == nil && p.Quantity > 0
}
