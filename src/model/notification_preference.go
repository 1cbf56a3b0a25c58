package model

import "time"

// Notification event tags emitted by the order lifecycle.
const (
	EventOrderExecuted  = "order_executed"
	EventPartialFill    = "partial_fill"
	EventOrderRejected  = "order_rejected"
	EventOrderCancelled = "order_cancelled"
	EventReentry        = "reentry"
)

// NotificationPreference holds the per-user opt-in flags for lifecycle
// events. Missing rows mean defaults (all enabled).
type NotificationPreference struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"uniqueIndex" json:"user_id"`

	NotifyOrderExecuted  bool `gorm:"not null;default:true" json:"notify_order_executed"`
	NotifyPartialFill    bool `gorm:"not null;default:true" json:"notify_partial_fill"`
	NotifyOrderRejected  bool `gorm:"not null;default:true" json:"notify_order_rejected"`
	NotifyOrderCancelled bool `gorm:"not null;default:true" json:"notify_order_cancelled"`
	NotifyReentry        bool `gorm:"not null;default:true" json:"notify_reentry"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (NotificationPreference) TableName() string {
	return "notification_preferences"
}

// Allows reports whether the user opted in to the given event tag.
// Unknown tags default to allowed so new events are not silently dropped.
func (p *NotificationPreference) Allows(event string) bool {
	switch event {
	case EventOrderExecuted:
		return p.NotifyOrderExecuted
	case EventPartialFill:
		return p.NotifyPartialFill
	case EventOrderRejected:
		return p.NotifyOrderRejected
	case EventOrderCancelled:
		return p.NotifyOrderCancelled
	case EventReentry:
		return p.NotifyReentry
	}
	return true
}
