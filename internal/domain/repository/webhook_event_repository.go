package repository

import "context"

// WebhookEventRepository records verified inbound events for duplicate
// detection and audit.
type WebhookEventRepository interface {
	// Record stores the event id if unseen. It reports true when the event
	// was already processed successfully, so the caller can acknowledge a
	// redelivery without re-dispatching it.
	Record(ctx context.Context, providerEventID, eventType string) (alreadyProcessed bool, err error)

	MarkProcessed(ctx context.Context, providerEventID string) error
	MarkFailed(ctx context.Context, providerEventID string, cause error) error
}
