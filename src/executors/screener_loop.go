package executors

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradeassist/src/marketdata"
	"tradeassist/src/screener"
)

// StartScreenerLoop periodically refreshes candles and evaluates the
// watched symbols, feeding fresh signals to the entry loop.
func StartScreenerLoop(ctx context.Context) error {
	config := GetConfig()

	scr := screener.NewScreener(
		marketdata.NewRESTProvider(marketdata.GetConfig()),
		screener.GetConfig(),
	)

	ticker := time.NewTicker(config.ScreenerLoopPeriod)
	defer ticker.Stop()

	// Evaluate once at startup so the entry loop has a signal to work
	// with before the first tick.
	scr.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("screener loop stopped")
			return nil

		case <-ticker.C:
			scr.Run(ctx)
		}
	}
}
