package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// BrokerCRKey is the base64-encoded 32-byte AES key protecting stored
	// broker credentials. The default is for local development only.
	BrokerCRKey string `envconfig:"BROKER_CREDENTIALS_KEY" default:"c2VjcmV0LWtleS1mb3ItbG9jYWwtZGV2LW9ubHkhISE="`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
