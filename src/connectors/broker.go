package connectors

import (
	"context"
	"time"
)

// OrderRequest describes one order to be placed with the broker.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          string // buy | sell
	OrderType     string // market | limit
	Quantity      float64
	Price         *float64 // nil for market orders
}

// PlaceOrderResult is the broker's acknowledgment of a placed order.
type PlaceOrderResult struct {
	BrokerOrderID string
}

// OrderStatusResult is a snapshot of the broker-side order state. Fill
// progress is reported cumulatively (total filled quantity and the average
// price over all fills so far); the fill monitor derives incremental fill
// events from the delta against what it has already recorded.
type OrderStatusResult struct {
	BrokerOrderID  string
	Status         string // broker vocabulary, mapped by the monitor
	FilledQuantity float64
	AveragePrice   float64
	LastFillAt     *time.Time
	Reason         string
}

// Broker is the external trading venue. All implementations are expected
// to be wrapped by ResilientBroker before use on the order path.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*PlaceOrderResult, error)
	OrderStatus(ctx context.Context, brokerOrderID string) (*OrderStatusResult, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
}

// Broker-side order status vocabulary.
const (
	BrokerStatusOpen      = "open"
	BrokerStatusComplete  = "complete"
	BrokerStatusPartial   = "partial"
	BrokerStatusRejected  = "rejected"
	BrokerStatusCancelled = "cancelled"
)
