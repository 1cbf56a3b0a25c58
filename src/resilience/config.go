package resilience

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BreakerFailureThreshold int           `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerRecoveryTimeout  time.Duration `envconfig:"BREAKER_RECOVERY_TIMEOUT" default:"60s"`

	RetryMaxAttempts       int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay         time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`
	RetryMaxDelay          time.Duration `envconfig:"RETRY_MAX_DELAY" default:"8s"`
	RetryBackoffMultiplier float64       `envconfig:"RETRY_BACKOFF_MULTIPLIER" default:"2.0"`
	RetryJitter            bool          `envconfig:"RETRY_JITTER" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
