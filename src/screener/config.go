package screener

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Symbols           []string `envconfig:"SCREENER_SYMBOLS" default:"RELIANCE,TCS,INFY,HDFCBANK,ICICIBANK"`
	RSIPeriod         int      `envconfig:"SCREENER_RSI_PERIOD" default:"14"`
	RSIOversold       float64  `envconfig:"SCREENER_RSI_OVERSOLD" default:"30"`
	RSIOverbought     float64  `envconfig:"SCREENER_RSI_OVERBOUGHT" default:"70"`
	EMAPeriod         int      `envconfig:"SCREENER_EMA_PERIOD" default:"200"`
	LookbackDays      int      `envconfig:"SCREENER_LOOKBACK_DAYS" default:"400"`
	EvaluationEnabled bool     `envconfig:"SCREENER_ENABLED" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
