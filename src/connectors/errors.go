package connectors

import (
	"errors"
	"fmt"
)

// BrokerError is a classified failure from the broker API. Retryable
// errors are transient (timeouts, throttling, gateway trouble) and may be
// re-attempted with backoff; non-retryable errors are business rejections
// that must fail the order immediately.
type BrokerError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker error %s: %s", e.Code, e.Message)
}

// brokerErrorCodes is the explicit classification table for the broker's
// rejection vocabulary. Codes not listed here fall back to the transport
// heuristics in classifyHTTP. Keep this table in sync with the broker's
// published error reference rather than guessing from message text.
var brokerErrorCodes = map[string]BrokerError{
	"InputException":      {Code: "InputException", Message: "invalid order parameters", Retryable: false},
	"OrderException":      {Code: "OrderException", Message: "order rejected by risk checks", Retryable: false},
	"MarginException":     {Code: "MarginException", Message: "insufficient funds or margin", Retryable: false},
	"HoldingException":    {Code: "HoldingException", Message: "insufficient holdings for sell", Retryable: false},
	"TokenException":      {Code: "TokenException", Message: "session expired or invalid token", Retryable: false},
	"PermissionException": {Code: "PermissionException", Message: "account not permitted for this segment", Retryable: false},
	"MarketClosed":        {Code: "MarketClosed", Message: "market is closed for this order type", Retryable: false},
	"NetworkException":    {Code: "NetworkException", Message: "broker network error", Retryable: true},
	"ThrottleException":   {Code: "ThrottleException", Message: "rate limit exceeded", Retryable: true},
	"GatewayTimeout":      {Code: "GatewayTimeout", Message: "broker gateway timeout", Retryable: true},
	"GeneralException":    {Code: "GeneralException", Message: "unclassified broker error", Retryable: true},
}

// NewBrokerError resolves a broker error code against the classification
// table. Unknown codes are treated as retryable so a new transient failure
// mode does not instantly kill orders; the raw code is preserved for logs.
func NewBrokerError(code, message string) *BrokerError {
	if known, ok := brokerErrorCodes[code]; ok {
		e := known
		if message != "" {
			e.Message = message
		}
		return &e
	}
	return &BrokerError{Code: code, Message: message, Retryable: true}
}

// classifyHTTP maps transport-level status codes onto retryability.
func classifyHTTP(status int, body string) *BrokerError {
	switch {
	case status == 429:
		return NewBrokerError("ThrottleException", body)
	case status == 408, status == 504:
		return NewBrokerError("GatewayTimeout", body)
	case status >= 500:
		return NewBrokerError("NetworkException", fmt.Sprintf("HTTP %d: %s", status, body))
	default:
		return &BrokerError{
			Code:      fmt.Sprintf("HTTP_%d", status),
			Message:   body,
			Retryable: false,
		}
	}
}

// IsRetryable reports whether the error is a transient broker failure.
// Errors that are not BrokerErrors (network layer, context deadline) are
// treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var be *BrokerError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return true
}

// IsRejection reports whether the error is a broker-side business
// rejection, i.e. a non-retryable BrokerError.
func IsRejection(err error) bool {
	var be *BrokerError
	return errors.As(err, &be) && !be.Retryable
}
