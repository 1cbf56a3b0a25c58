package marketdata

import (
	"context"
	"time"

	"tradeassist/src/model"
)

// Provider serves historical candles and spot prices. The screener reads
// candles through it, the executor loops read last prices.
type Provider interface {
	FetchOHLCV(ctx context.Context, symbol string, from, to time.Time) ([]model.OHLCVDaily, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}
