package connectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// PriceSource supplies the last traded price used to fill paper orders.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

type paperOrder struct {
	req        OrderRequest
	status     string
	filledQty  float64
	avgPrice   float64
	lastFillAt *time.Time
	reason     string
	placedAt   time.Time
}

// PaperConnector simulates the broker for paper trading. Market orders
// fill immediately at the price source's last traded price; limit orders
// stay open until a status poll observes a favorable price.
type PaperConnector struct {
	prices PriceSource

	mu     sync.Mutex
	orders map[string]*paperOrder
	seq    int64
}

func NewPaperConnector(prices PriceSource) *PaperConnector {
	return &PaperConnector{
		prices: prices,
		orders: make(map[string]*paperOrder),
	}
}

func (c *PaperConnector) PlaceOrder(ctx context.Context, req OrderRequest) (*PlaceOrderResult, error) {
	if req.Quantity <= 0 {
		return nil, NewBrokerError("InputException", "quantity must be positive")
	}

	price, err := c.prices.LastPrice(ctx, req.Symbol)
	if err != nil {
		return nil, NewBrokerError("NetworkException", fmt.Sprintf("no price for %s: %v", req.Symbol, err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	id := fmt.Sprintf("paper-%d", c.seq)

	po := &paperOrder{req: req, status: BrokerStatusOpen, placedAt: time.Now()}
	if req.OrderType != "limit" || req.Price == nil {
		now := time.Now()
		po.status = BrokerStatusComplete
		po.filledQty = req.Quantity
		po.avgPrice = price
		po.lastFillAt = &now
	}
	c.orders[id] = po

	logger.WithFields(map[string]interface{}{
		"connector":       "paper",
		"broker_order_id": id,
		"symbol":          req.Symbol,
		"status":          po.status,
	}).Info("paper order placed")

	return &PlaceOrderResult{BrokerOrderID: id}, nil
}

func (c *PaperConnector) OrderStatus(ctx context.Context, brokerOrderID string) (*OrderStatusResult, error) {
	c.mu.Lock()
	po, ok := c.orders[brokerOrderID]
	if !ok {
		c.mu.Unlock()
		return nil, NewBrokerError("OrderException", "order not found at broker")
	}
	req := po.req
	status := po.status
	c.mu.Unlock()

	// Limit orders fill on poll once the price crosses the limit.
	if status == BrokerStatusOpen && req.OrderType == "limit" && req.Price != nil {
		price, err := c.prices.LastPrice(ctx, req.Symbol)
		if err == nil && limitCrossed(req.Side, *req.Price, price) {
			now := time.Now()
			c.mu.Lock()
			if po.status == BrokerStatusOpen {
				po.status = BrokerStatusComplete
				po.filledQty = req.Quantity
				po.avgPrice = *req.Price
				po.lastFillAt = &now
			}
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return &OrderStatusResult{
		BrokerOrderID:  brokerOrderID,
		Status:         po.status,
		FilledQuantity: po.filledQty,
		AveragePrice:   po.avgPrice,
		LastFillAt:     po.lastFillAt,
		Reason:         po.reason,
	}, nil
}

func (c *PaperConnector) CancelOrder(_ context.Context, brokerOrderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	po, ok := c.orders[brokerOrderID]
	if !ok {
		return NewBrokerError("OrderException", "order not found at broker")
	}
	if po.status == BrokerStatusComplete {
		return NewBrokerError("OrderException", "order already complete")
	}

	po.status = BrokerStatusCancelled
	po.reason = "cancelled by client"
	return nil
}

func limitCrossed(side string, limit, last float64) bool {
	if side == "sell" {
		return last >= limit
	}
	return last <= limit
}
