// Package events defines the payloads published on the care event topics.
package events

import "time"

// InstanceCreated is emitted when materialization writes a new instance.
type InstanceCreated struct {
	InstanceID    string    `json:"instance_id"`
	TemplateID    string    `json:"template_id"`
	ActivityType  string    `json:"activity_type"`
	Shift         string    `json:"shift"`
	Date          string    `json:"date"`
	PreferredTime string    `json:"preferred_time"`
	AutoGenerated bool      `json:"auto_generated"`
	CreatedAt     time.Time `json:"created_at"`
}

// InstanceStateChanged tracks lifecycle transitions: completed, omitted,
// cancelled, cleared back to pending, or a corrected completion record.
type InstanceStateChanged struct {
	InstanceID string    `json:"instance_id"`
	TemplateID string    `json:"template_id"`
	State      string    `json:"state"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Reason     string    `json:"reason,omitempty"`
}

// ScheduleInvalidated is emitted when a template edit removes its pending
// future instances.
type ScheduleInvalidated struct {
	TemplateID string    `json:"template_id"`
	Removed    int       `json:"removed"`
	From       string    `json:"from"`
	OccurredAt time.Time `json:"occurred_at"`
}
