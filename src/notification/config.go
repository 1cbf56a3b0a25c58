package notification

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TelegramEnabled bool   `envconfig:"TELEGRAM_ENABLED" default:"false"`
	TelegramToken   string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID  string `envconfig:"TELEGRAM_CHAT_ID"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
