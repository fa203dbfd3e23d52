package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pixelmint/billing-service/internal/domain/model"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	err := db.AutoMigrate(
		&model.User{},
		&model.Subscription{},
		&model.WebhookEvent{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomIndexes creates partial indexes that GORM doesn't handle automatically
func createCustomIndexes(db *gorm.DB) error {
	// Index for replaying unprocessed webhook events
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_webhook_events_unprocessed ON webhook_events (received_at) WHERE status IN ('pending', 'failed')`).Error; err != nil {
		return err
	}

	// The expiry sweep scans by period end, skipping already-expired rows
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_subscriptions_lapsed ON subscriptions (current_period_end) WHERE status <> 'EXPIRED'`).Error; err != nil {
		return err
	}

	return nil
}
