package model

import "time"

const (
	SignalActionBuy  = "buy"
	SignalActionSell = "sell"
)

// TradingSignal is the output of the screener: a symbol that satisfied the
// configured technical conditions, with the indicator values at the time
// of evaluation so order metadata can capture the entry context.
type TradingSignal struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	Symbol   string  `gorm:"size:30;index" json:"symbol"`
	Action   string  `gorm:"size:10" json:"action"`
	Price    float64 `json:"price"`
	RSI      float64 `json:"rsi"`
	EMA      float64 `json:"ema"`
	Interval string  `gorm:"size:10" json:"interval"`

	GeneratedAt time.Time `gorm:"index" json:"generated_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (TradingSignal) TableName() string {
	return "trading_signals"
}
