package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

// apiEnvelope is the broker's standard response wrapper.
type apiEnvelope struct {
	Status    string          `json:"status"` // success | error
	Message   string          `json:"message,omitempty"`
	ErrorType string          `json:"error_type,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type kiteOrderData struct {
	OrderID string `json:"order_id"`
}

type kiteOrderStatusData struct {
	OrderID           string  `json:"order_id"`
	Status            string  `json:"status"`
	StatusMessage     string  `json:"status_message"`
	FilledQuantity    float64 `json:"filled_quantity"`
	AveragePrice      float64 `json:"average_price"`
	ExchangeTimestamp string  `json:"exchange_timestamp"`
}

// KiteConnector talks to the broker's REST order API. Authentication is a
// token header pair; every order carries a unique client order ID tag so
// duplicate submissions can be detected broker-side.
type KiteConnector struct {
	apiKey      string
	accessToken string
	http        *resty.Client
}

func NewKiteConnector(apiKey, accessToken, baseURL string) *KiteConnector {
	if baseURL == "" {
		baseURL = "https://api.kite.trade"
		logger.Warnf("no broker base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("X-Kite-Version", "3")

	return &KiteConnector{
		apiKey:      apiKey,
		accessToken: accessToken,
		http:        httpClient,
	}
}

// NewClientOrderID returns a fresh order tag for duplicate detection.
func NewClientOrderID() string {
	return "ta-" + uuid.NewString()
}

func (c *KiteConnector) doRequest(ctx context.Context, method, path string, form map[string]string) (*apiEnvelope, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, c.accessToken))

	if form != nil {
		req = req.SetFormData(form)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		// Transport failures (DNS, refused, timeout) are transient.
		return nil, NewBrokerError("NetworkException", err.Error())
	}

	raw := resp.Body()

	var env apiEnvelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil {
		if resp.StatusCode() != 200 {
			return nil, classifyHTTP(resp.StatusCode(), string(raw))
		}
		return nil, fmt.Errorf("malformed broker response: %w", jsonErr)
	}

	if env.Status == "error" {
		return nil, NewBrokerError(env.ErrorType, env.Message)
	}
	if resp.StatusCode() != 200 {
		return nil, classifyHTTP(resp.StatusCode(), string(raw))
	}

	return &env, nil
}

func (c *KiteConnector) PlaceOrder(ctx context.Context, req OrderRequest) (*PlaceOrderResult, error) {
	form := map[string]string{
		"tradingsymbol":    req.Symbol,
		"exchange":         "NSE",
		"transaction_type": sideToBrokerSide(req.Side),
		"order_type":       orderTypeToBroker(req.OrderType),
		"quantity":         strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"product":          "CNC",
		"validity":         "DAY",
		"tag":              req.ClientOrderID,
	}
	if req.Price != nil {
		form["price"] = strconv.FormatFloat(*req.Price, 'f', 2, 64)
	}

	logger.WithFields(map[string]interface{}{
		"connector": "kite",
		"symbol":    req.Symbol,
		"side":      req.Side,
		"qty":       req.Quantity,
		"cl_ord_id": req.ClientOrderID,
	}).Info("placing broker order")

	env, err := c.doRequest(ctx, "POST", "/orders/regular", form)
	if err != nil {
		return nil, err
	}

	var data kiteOrderData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("malformed place-order response: %w", err)
	}

	return &PlaceOrderResult{BrokerOrderID: data.OrderID}, nil
}

func (c *KiteConnector) OrderStatus(ctx context.Context, brokerOrderID string) (*OrderStatusResult, error) {
	env, err := c.doRequest(ctx, "GET", "/orders/"+brokerOrderID, nil)
	if err != nil {
		return nil, err
	}

	// The order-history endpoint returns the full transition list; the
	// last element is the current state.
	var history []kiteOrderStatusData
	if err := json.Unmarshal(env.Data, &history); err != nil {
		return nil, fmt.Errorf("malformed order-status response: %w", err)
	}
	if len(history) == 0 {
		return nil, NewBrokerError("OrderException", "order not found at broker")
	}

	latest := history[len(history)-1]
	result := &OrderStatusResult{
		BrokerOrderID:  latest.OrderID,
		Status:         mapBrokerStatus(latest.Status, latest.FilledQuantity),
		FilledQuantity: latest.FilledQuantity,
		AveragePrice:   latest.AveragePrice,
		Reason:         latest.StatusMessage,
	}

	if latest.FilledQuantity > 0 {
		if parsed, perr := time.Parse("2006-01-02 15:04:05", latest.ExchangeTimestamp); perr == nil {
			result.LastFillAt = &parsed
		}
	}

	return result, nil
}

func (c *KiteConnector) CancelOrder(ctx context.Context, brokerOrderID string) error {
	logger.WithFields(map[string]interface{}{
		"connector":       "kite",
		"broker_order_id": brokerOrderID,
	}).Info("cancelling broker order")

	_, err := c.doRequest(ctx, "DELETE", "/orders/regular/"+brokerOrderID, nil)
	return err
}

func sideToBrokerSide(side string) string {
	if side == "sell" {
		return "SELL"
	}
	return "BUY"
}

func orderTypeToBroker(orderType string) string {
	if orderType == "limit" {
		return "LIMIT"
	}
	return "MARKET"
}

// mapBrokerStatus folds the broker's status vocabulary onto ours.
func mapBrokerStatus(brokerStatus string, filledQty float64) string {
	switch brokerStatus {
	case "COMPLETE":
		return BrokerStatusComplete
	case "REJECTED":
		return BrokerStatusRejected
	case "CANCELLED":
		return BrokerStatusCancelled
	case "OPEN", "TRIGGER PENDING", "AMO REQ RECEIVED", "PUT ORDER REQ RECEIVED":
		if filledQty > 0 {
			return BrokerStatusPartial
		}
		return BrokerStatusOpen
	default:
		if filledQty > 0 {
			return BrokerStatusPartial
		}
		return BrokerStatusOpen
	}
}
