package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pixelmint/billing-service/internal/domain/model"
	"github.com/pixelmint/billing-service/internal/domain/repository"
)

type webhookEventRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *gorm.DB, logger *zap.Logger) repository.WebhookEventRepository {
	return &webhookEventRepository{
		db:     db,
		logger: logger,
	}
}

// Record stores the event, tolerating redelivery via ON CONFLICT DO NOTHING.
func (r *webhookEventRepository) Record(ctx context.Context, providerEventID, eventType string) (bool, error) {
	event := &model.WebhookEvent{
		ProviderEventID: providerEventID,
		EventType:       eventType,
		Status:          model.WebhookStatusPending,
		ReceivedAt:      time.Now(),
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)

	if res.Error != nil {
		r.logger.Error("Failed to record webhook event",
			zap.String("event_id", providerEventID),
			zap.String("event_type", eventType),
			zap.Error(res.Error))
		return false, fmt.Errorf("failed to record webhook event: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		return false, nil
	}

	// Redelivery: only short-circuit when the prior delivery succeeded, so
	// a failed attempt still gets reprocessed.
	var existing model.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider_event_id = ?", providerEventID).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load webhook event: %w", err)
	}

	return existing.Status == model.WebhookStatusProcessed, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, providerEventID string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("provider_event_id = ?", providerEventID).
		Updates(map[string]interface{}{
			"status":       model.WebhookStatusProcessed,
			"processed_at": &now,
			"last_error":   nil,
		}).Error

	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}

func (r *webhookEventRepository) MarkFailed(ctx context.Context, providerEventID string, cause error) error {
	msg := cause.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}

	err := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("provider_event_id = ?", providerEventID).
		Updates(map[string]interface{}{
			"status":     model.WebhookStatusFailed,
			"last_error": &msg,
		}).Error

	if err != nil {
		return fmt.Errorf("failed to mark webhook event failed: %w", err)
	}
	return nil
}
