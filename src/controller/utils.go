package controller

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradeassist/src/model"
)

// PercentOfFloatSafe returns the percentage of a float64 value using a safe clamped percent (1–100).
// If percent is out of range, it is automatically adjusted and logged.
func PercentOfFloatSafe(value float64, percent int) float64 {
	originalPercent := percent

	if percent < 1 {
		percent = 1
		logger.WithFields(map[string]interface{}{
			"value":        value,
			"original_pct": originalPercent,
			"adjusted_pct": percent,
		}).Warn("Percent below minimum, clamped to 1")
	}

	if percent > 100 {
		percent = 100
		logger.WithFields(map[string]interface{}{
			"value":        value,
			"original_pct": originalPercent,
			"adjusted_pct": percent,
		}).Warn("Percent above maximum, clamped to 100")
	}

	result := value * float64(percent) / 100.0

	logger.WithFields(map[string]interface{}{
		"value":   value,
		"percent": percent,
		"result":  result,
	}).Debug("Computed percentage of float value")

	return result
}

// NormalizeNSESymbol canonicalizes an NSE trading symbol: uppercase and
// without the series suffix.
// Examples:
//
//	reliance    -> RELIANCE
//	INFY-EQ     -> INFY
//	Tcs-BE      -> TCS
func NormalizeNSESymbol(symbol string) string {
	if symbol == "" {
		return symbol
	}

	s := strings.ToUpper(strings.TrimSpace(symbol))

	for _, suffix := range []string{"-EQ", "-BE", "-BZ"} {
		if strings.HasSuffix(s, suffix) {
			return strings.TrimSuffix(s, suffix)
		}
	}

	return s
}

// Capture records a system exception, logs it locally, and optionally
// persists it in the database.
func Capture(
	ctx context.Context,
	repo exceptionRepository,
	service string,
	module string,
	method string,
	level string,
	err error,
	contextData map[string]interface{},
) {

	if err == nil {
		return
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	exc := &model.Exception{
		Service:   service,
		Module:    module,
		Method:    method,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: time.Now(),
	}

	// Local log
	logger.WithFields(map[string]interface{}{
		"service": service,
		"module":  module,
		"method":  method,
		"level":   level,
	}).WithError(err).Error("System exception captured")

	// Persist in database
	if repo != nil {
		if e := repo.Create(ctx, exc); e != nil {
			logger.WithError(e).Error("Failed to persist exception")
		}
	}
}
