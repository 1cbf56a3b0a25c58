package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"

	logger "github.com/sirupsen/logrus"

	"tradeassist/src/model"
	"tradeassist/src/repository"
)

// Sender delivers one formatted message to the configured channel.
type Sender interface {
	Send(text string) error
}

type preferenceRepository interface {
	GetByUser(ctx context.Context, userID uint) (*model.NotificationPreference, error)
}

// Service gates lifecycle events against per-user preferences before
// handing them to the sender. A missing preference row means the user
// never opted out, so everything goes through.
type Service struct {
	prefs  preferenceRepository
	sender Sender
}

func NewService(sender Sender) *Service {
	return &Service{
		prefs:  repository.NewNotificationPreferenceRepository(),
		sender: sender,
	}
}

// Emit delivers the event unless the user opted out of it. Delivery
// failures are logged, never propagated: notifications must not break
// the order path.
func (s *Service) Emit(ctx context.Context, userID uint, event string, fields map[string]interface{}) {
	pref, err := s.prefs.GetByUser(ctx, userID)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "NotificationService",
			"user_id":   userID,
			"event":     event,
		}).WithError(err).Error("failed to load notification preferences")
		return
	}

	if pref != nil && !pref.Allows(event) {
		logger.WithFields(map[string]interface{}{
			"component": "NotificationService",
			"user_id":   userID,
			"event":     event,
		}).Debug("event suppressed by user preference")
		return
	}

	if err := s.sender.Send(formatEvent(event, fields)); err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "NotificationService",
			"user_id":   userID,
			"event":     event,
		}).WithError(err).Error("failed to deliver notification")
	}
}

// formatEvent renders a compact single-message summary, fields sorted
// for stable output.
func formatEvent(event string, fields map[string]interface{}) string {
	var b strings.Builder
	b.WriteString(eventTitle(event))

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteString(fmt.Sprintf("\n%s: %v", k, fields[k]))
	}

	return b.String()
}

func eventTitle(event string) string {
	switch event {
	case model.EventOrderExecuted:
		return "✅ Order executed"
	case model.EventPartialFill:
		return "🔸 Order partially filled"
	case model.EventOrderRejected:
		return "❌ Order rejected"
	case model.EventOrderCancelled:
		return "🚫 Order cancelled"
	case model.EventReentry:
		return "📉 Reentry executed"
	default:
		return event
	}
}
