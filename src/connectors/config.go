package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BrokerBaseURL string `envconfig:"BROKER_BASE_URL" default:"https://api.kite.trade"`
	BrokerMode    string `envconfig:"BROKER_MODE" default:"paper"` // paper | live
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
