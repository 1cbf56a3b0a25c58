package model

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"

	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"

	EntryTypeNew     = "new_entry"
	EntryTypeReentry = "reentry"
)

// Order statuses. Lowercase strings are the canonical persisted form.
// Legacy rows may still carry uppercase or pre-consolidation values and
// are canonicalized by NormalizeOrderStatus on read.
const (
	OrderStatusPending         = "pending"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusFilled          = "filled"
	OrderStatusFailed          = "failed"
	OrderStatusCancelled       = "cancelled"
)

// legacyStatusAliases maps pre-consolidation status values onto the
// collapsed status set. AMO and the retry-style statuses are all just
// variations of pending; rejected is a terminal failure.
var legacyStatusAliases = map[string]string{
	"amo":               OrderStatusPending,
	"pending_execution": OrderStatusPending,
	"retry_pending":     OrderStatusPending,
	"open":              OrderStatusPending,
	"rejected":          OrderStatusFailed,
	"error":             OrderStatusFailed,
	"executed":          OrderStatusFilled,
	"complete":          OrderStatusFilled,
	"partial":           OrderStatusPartiallyFilled,
}

// NormalizeOrderStatus canonicalizes a persisted status value. It accepts
// any casing plus legacy aliases; unknown values are returned lowercased
// so callers can still log them verbatim.
func NormalizeOrderStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if alias, ok := legacyStatusAliases[s]; ok {
		return alias
	}
	return s
}

// IsTerminalOrderStatus reports whether the status admits no further
// fills, retries or cancellations.
func IsTerminalOrderStatus(status string) bool {
	switch NormalizeOrderStatus(status) {
	case OrderStatusFilled, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// SignalContext captures the technical context of the signal that
// originated an order. Stored on the order as JSON metadata so that later
// exit rules can be evaluated against the state at entry time.
type SignalContext struct {
	SignalID uint    `json:"signal_id,omitempty"`
	RSI      float64 `json:"rsi,omitempty"`
	EMA      float64 `json:"ema,omitempty"`
	Note     string  `json:"note,omitempty"`
}

// Order is a broker order owned by a user. Orders are never deleted, only
// transitioned, so the table doubles as an audit trail.
type Order struct {
	ID            uint     `gorm:"primaryKey" json:"id"`
	UserID        uint     `gorm:"index" json:"user_id"`
	BrokerOrderID *string  `gorm:"size:60;index" json:"broker_order_id,omitempty"`
	Symbol        string   `gorm:"size:30;index" json:"symbol"`
	Side          string   `gorm:"size:10" json:"side"`
	OrderType     string   `gorm:"size:10" json:"order_type"`
	Quantity      float64  `json:"quantity"`
	Price         *float64 `json:"price,omitempty"`

	Status    string     `gorm:"size:50;not null;default:pending;index" json:"status"`
	PlacedAt  *time.Time `json:"placed_at,omitempty"`
	FilledAt  *time.Time `json:"filled_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Execution fields, set only once the order fully fills.
	ExecutionPrice *float64   `json:"execution_price,omitempty"`
	ExecutionQty   *float64   `json:"execution_qty,omitempty"`
	ExecutionTime  *time.Time `json:"execution_time,omitempty"`

	// Failure and retry bookkeeping. Reason is the single normalized
	// failure/rejection/cancellation text surfaced to users.
	Reason           string     `gorm:"size:255" json:"reason,omitempty"`
	FirstFailedAt    *time.Time `json:"first_failed_at,omitempty"`
	LastRetryAttempt *time.Time `json:"last_retry_attempt,omitempty"`
	RetryCount       int        `gorm:"not null;default:0" json:"retry_count"`
	LastStatusCheck  *time.Time `json:"last_status_check,omitempty"`

	// EntryType records whether the order opened a fresh position or
	// averaged into an existing one.
	EntryType     string `gorm:"size:20;not null;default:new_entry" json:"entry_type"`
	OrderMetadata string `gorm:"type:jsonb" json:"order_metadata,omitempty"`

	Fills []Fill     `gorm:"foreignKey:OrderID" json:"fills,omitempty"`
	Logs  []OrderLog `gorm:"foreignKey:OrderID" json:"order_logs,omitempty"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// AfterFind canonicalizes legacy status values read from old rows.
func (o *Order) AfterFind(_ *gorm.DB) error {
	o.Status = NormalizeOrderStatus(o.Status)
	return nil
}

// FilledQuantity sums the loaded fill records.
func (o *Order) FilledQuantity() float64 {
	total := 0.0
	for _, f := range o.Fills {
		total += f.Quantity
	}
	return total
}

// SetSignalContext serializes the signal context into the order metadata.
func (o *Order) SetSignalContext(sc SignalContext) error {
	raw, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	o.OrderMetadata = string(raw)
	return nil
}

// SignalContext decodes the order metadata. Returns the zero value when no
// metadata was recorded.
func (o *Order) SignalContext() (SignalContext, error) {
	var sc SignalContext
	if o.OrderMetadata == "" {
		return sc, nil
	}
	err := json.Unmarshal([]byte(o.OrderMetadata), &sc)
	return sc, err
}
