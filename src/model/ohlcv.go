package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OHLCVDaily is one daily candle for an NSE symbol. Prices are stored as
// decimals so indicator math does not accumulate float drift.
type OHLCVDaily struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Symbol string `gorm:"size:30;uniqueIndex:idx_ohlcv_symbol_ts" json:"symbol"`

	Timestamp time.Time       `gorm:"uniqueIndex:idx_ohlcv_symbol_ts" json:"timestamp"`
	Open      decimal.Decimal `gorm:"type:numeric(18,4)" json:"open"`
	High      decimal.Decimal `gorm:"type:numeric(18,4)" json:"high"`
	Low       decimal.Decimal `gorm:"type:numeric(18,4)" json:"low"`
	Close     decimal.Decimal `gorm:"type:numeric(18,4)" json:"close"`
	Volume    int64           `json:"volume"`

	CreatedAt time.Time `json:"created_at"`
}

func (OHLCVDaily) TableName() string {
	return "ohlcv_daily"
}
