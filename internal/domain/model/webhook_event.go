package model

import "time"

// WebhookEventStatus tracks the processing state of an inbound event.
type WebhookEventStatus string

const (
	WebhookStatusPending   WebhookEventStatus = "pending"
	WebhookStatusProcessed WebhookEventStatus = "processed"
	WebhookStatusFailed    WebhookEventStatus = "failed"
)

// WebhookEvent records every verified billing-provider event by its
// provider-assigned id. The unique index makes redelivered events
// detectable without relying on handler idempotence alone.
type WebhookEvent struct {
	ID              int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	ProviderEventID string             `gorm:"uniqueIndex;size:100;not null" json:"provider_event_id"`
	EventType       string             `gorm:"size:100;not null" json:"event_type"`
	Status          WebhookEventStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	LastError       *string            `gorm:"size:500" json:"last_error,omitempty"`
	ReceivedAt      time.Time          `json:"received_at"`
	ProcessedAt     *time.Time         `json:"processed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
