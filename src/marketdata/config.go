package marketdata

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	QuoteBaseURL   string        `envconfig:"MARKETDATA_BASE_URL" default:"https://api.kite.trade"`
	QuoteAPIKey    string        `envconfig:"MARKETDATA_API_KEY"`
	QuoteToken     string        `envconfig:"MARKETDATA_ACCESS_TOKEN"`
	TickerURL      string        `envconfig:"MARKETDATA_TICKER_URL" default:"wss://ws.kite.trade"`
	ReconnectDelay time.Duration `envconfig:"MARKETDATA_RECONNECT_DELAY" default:"5s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
