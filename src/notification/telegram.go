package notification

import (
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"
)

// TelegramSender posts messages to the configured operations channel.
type TelegramSender struct {
	bot    *tb.Bot
	chatID string
}

func NewTelegramSender(cfg Config) (*TelegramSender, error) {
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("telegram enabled but TELEGRAM_TOKEN not set")
	}
	if cfg.TelegramChatID == "" {
		return nil, fmt.Errorf("telegram enabled but TELEGRAM_CHAT_ID not set")
	}

	bot, err := tb.NewBot(tb.Settings{
		Token:  cfg.TelegramToken,
		Poller: &tb.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	logger.Info("[notification] telegram sender initialized")

	return &TelegramSender{bot: bot, chatID: cfg.TelegramChatID}, nil
}

func (s *TelegramSender) Send(text string) error {
	chat, err := s.bot.ChatByID(s.chatID)
	if err != nil {
		return fmt.Errorf("resolve telegram chat: %w", err)
	}

	_, err = s.bot.Send(chat, text)
	return err
}
