package model

import "time"

// Fill is an immutable, append-only execution record against an order.
// One order may accumulate several fills (partial executions); the sum of
// fill quantities never exceeds the order quantity.
type Fill struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"index;not null" json:"order_id"`
	Quantity  float64   `gorm:"not null" json:"quantity"`
	Price     float64   `gorm:"not null" json:"price"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

func (Fill) TableName() string {
	return "fills"
}
