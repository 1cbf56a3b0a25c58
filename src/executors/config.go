package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Username string `envconfig:"EXECUTOR_USERNAME"`

	EntryLoopPeriod    time.Duration `envconfig:"ENTRY_LOOP_PERIOD" default:"1m"`
	RetryLoopPeriod    time.Duration `envconfig:"RETRY_LOOP_PERIOD" default:"30s"`
	MonitorLoopPeriod  time.Duration `envconfig:"MONITOR_LOOP_PERIOD" default:"15s"`
	ScreenerLoopPeriod time.Duration `envconfig:"SCREENER_LOOP_PERIOD" default:"15m"`

	// OrderCapital is the nominal capital per entry before the session
	// multiplier and the order size percentage are applied.
	OrderCapital float64 `envconfig:"ORDER_CAPITAL" default:"100000"`

	// SignalMaxAge bounds how old a screener signal may be before the
	// entry loop refuses to act on it.
	SignalMaxAge time.Duration `envconfig:"SIGNAL_MAX_AGE" default:"24h"`

	MonitorBatchSize int `envconfig:"MONITOR_BATCH_SIZE" default:"100"`
	RetryBatchSize   int `envconfig:"RETRY_BATCH_SIZE" default:"50"`

	// Trailing stop-loss settings for the exit loop.
	ExitLoopPeriod       time.Duration `envconfig:"EXIT_LOOP_PERIOD" default:"1m"`
	StopLossPercent      float64       `envconfig:"STOP_LOSS_PERCENT" default:"5"`
	TrailingLookbackDays int           `envconfig:"TRAILING_LOOKBACK_DAYS" default:"20"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
