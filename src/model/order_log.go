package model

import "time"

// OrderLog is an audit row written automatically on order creation and on
// every status transition. It snapshots the order fields at that moment so
// the lifecycle can be reconstructed even after later updates.
type OrderLog struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	OrderID   uint     `gorm:"index;not null" json:"order_id"`
	UserID    uint     `gorm:"index" json:"user_id"`
	Symbol    string   `gorm:"size:30" json:"symbol"`
	Side      string   `gorm:"size:10" json:"side"`
	OrderType string   `gorm:"size:10" json:"order_type"`
	Quantity  float64  `json:"quantity"`
	Price     *float64 `json:"price,omitempty"`
	Status    string   `gorm:"size:50" json:"status"`
	Reason    string   `gorm:"size:255" json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (OrderLog) TableName() string {
	return "order_logs"
}
