package models

import (
	"encoding/json"
	"slices"

	"gorm.io/datatypes"
)

const ServiceSlack = "slack"

type WebhookConfig struct {
	BaseModel

	UserID      string         `gorm:"not null;uniqueIndex:idx_user_service"`
	Service     string         `gorm:"not null;uniqueIndex:idx_user_service"` // e.g., "slack"
	WebhookURL  string         `gorm:"not null"`
	SecretToken string         `gorm:"not null"` // bot access token returned by OAuth
	Channel     string         // channel name of the incoming webhook, e.g. "#general"
	TeamID      string
	TeamName    string
	Events      datatypes.JSON `gorm:"type:jsonb"`
	IsActive    bool           `gorm:"not null"`
}

// EventList decodes Events, a malformed column reads as no events.
func (w WebhookConfig) EventList() []string {
	var events []string
	if len(w.Events) == 0 {
		return events
	}
	if err := json.Unmarshal(w.Events, &events); err != nil {
		return nil
	}
	return events
}

func (w WebhookConfig) HasEvent(event string) bool {
	return slices.Contains(w.EventList(), event)
}

func EventsJSON(events []string) datatypes.JSON {
	if events == nil {
		events = []string{}
	}
	b, _ := json.Marshal(events)
	return datatypes.JSON(b)
}
