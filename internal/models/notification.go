package models

import (
	"time"
)

const (
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationSkipped = "skipped"
)

// Notification is one attempt to post an idea event to Slack.
type Notification struct {
	BaseModel

	UserID    string     `gorm:"not null;index" json:"userId"`
	Service   string     `gorm:"not null" json:"service"`
	EventType string     `gorm:"not null" json:"eventType"` // e.g., "idea_created", "idea_voted"
	IdeaID    string     `gorm:"index" json:"ideaId"`
	Status    string     `gorm:"not null" json:"status"`
	Message   string     `json:"message,omitempty"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
}
