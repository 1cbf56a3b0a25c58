package notification

import logger "github.com/sirupsen/logrus"

// NoopSender logs instead of delivering. Used when no channel is
// configured so the lifecycle can emit unconditionally.
type NoopSender struct{}

func (NoopSender) Send(text string) error {
	logger.WithField("component", "NoopSender").Debug(text)
	return nil
}

// NewSenderFromConfig picks the configured sender, falling back to noop.
func NewSenderFromConfig(cfg Config) Sender {
	if !cfg.TelegramEnabled {
		return NoopSender{}
	}

	sender, err := NewTelegramSender(cfg)
	if err != nil {
		logger.WithError(err).Error("telegram sender unavailable, using noop")
		return NoopSender{}
	}
	return sender
}
