package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	domainErrors "github.com/pixelmint/billing-service/internal/domain/errors"
	"github.com/pixelmint/billing-service/internal/domain/model"
	"github.com/pixelmint/billing-service/internal/domain/repository"
)

type subscriptionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB, logger *zap.Logger) repository.SubscriptionRepository {
	return &subscriptionRepository{
		db:     db,
		logger: logger,
	}
}

// GetByStripeID retrieves a subscription by billing-provider subscription ID
func (r *subscriptionRepository) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	var sub model.Subscription

	err := r.db.WithContext(ctx).
		Preload("User").
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get subscription by provider id",
			zap.String("subscription_id", stripeSubscriptionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// GetByUserID retrieves the subscription owned by a user
func (r *subscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	var sub model.Subscription

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&sub).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get subscription by user id",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// ApplyPlanChange updates the user's entitlements and upserts the
// subscription keyed by user in a single transaction. Replaying the same
// change is a no-op beyond refreshing the same values.
func (r *subscriptionRepository) ApplyPlanChange(ctx context.Context, change repository.PlanChange) (*model.User, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.User{}).
			Where("id = ?", change.UserID).
			Updates(map[string]interface{}{
				"plan":    change.Plan,
				"credits": change.Credits,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update user entitlements: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domainErrors.ErrUserNotFound
		}

		var sub model.Subscription
		err := tx.Where("user_id = ?", change.UserID).First(&sub).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			sub = model.Subscription{
				UserID:               change.UserID,
				StripeSubscriptionID: change.StripeSubscriptionID,
				StripePriceID:        change.StripePriceID,
				CurrentPeriodEnd:     change.CurrentPeriodEnd,
				Status:               model.SubscriptionStatusActive,
			}
			if err := tx.Create(&sub).Error; err != nil {
				return fmt.Errorf("failed to create subscription: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to check subscription: %w", err)
		default:
			// The update path refreshes provider-volatile fields only,
			// preserving the row's identity and lifecycle status.
			if err := tx.Model(&sub).Updates(map[string]interface{}{
				"stripe_price_id":    change.StripePriceID,
				"current_period_end": change.CurrentPeriodEnd,
			}).Error; err != nil {
				return fmt.Errorf("failed to update subscription: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		r.logger.Error("Failed to apply plan change",
			zap.String("user_id", change.UserID.String()),
			zap.String("subscription_id", change.StripeSubscriptionID),
			zap.Error(err))
		return nil, err
	}

	return r.reloadUser(ctx, change.UserID)
}

// MarkCancelPending records a scheduled cancellation without touching the
// owning user's entitlements.
func (r *subscriptionRepository) MarkCancelPending(ctx context.Context, stripeSubscriptionID, stripePriceID string, periodEnd time.Time) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Updates(map[string]interface{}{
			"stripe_price_id":    stripePriceID,
			"current_period_end": periodEnd,
			"canceled_at":        &now,
			"status":             model.SubscriptionStatusCanceledAtPeriodEnd,
		})

	if res.Error != nil {
		r.logger.Error("Failed to mark subscription cancel-pending",
			zap.String("subscription_id", stripeSubscriptionID),
			zap.Error(res.Error))
		return fmt.Errorf("failed to mark subscription cancel-pending: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domainErrors.ErrSubscriptionNotFound
	}

	return nil
}

// ExpireAndDowngrade expires the user's subscription history and resets
// the user to the free tier baseline, atomically.
func (r *subscriptionRepository) ExpireAndDowngrade(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Model(&model.Subscription{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"status":      model.SubscriptionStatusExpired,
				"canceled_at": &now,
			}).Error; err != nil {
			return fmt.Errorf("failed to expire subscriptions: %w", err)
		}

		res := tx.Model(&model.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"plan":    model.PlanTierFree,
				"credits": model.FreeTierCredits,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to downgrade user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domainErrors.ErrUserNotFound
		}

		return nil
	})
	if err != nil {
		r.logger.Error("Failed to expire and downgrade",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, err
	}

	r.logger.Info("User downgraded to free tier",
		zap.String("user_id", userID.String()))

	return r.reloadUser(ctx, userID)
}

// ListLapsed returns non-expired subscriptions whose period end has passed
func (r *subscriptionRepository) ListLapsed(ctx context.Context, now time.Time) ([]model.Subscription, error) {
	var subs []model.Subscription

	err := r.db.WithContext(ctx).
		Preload("User").
		Where("current_period_end < ? AND status <> ?", now, model.SubscriptionStatusExpired).
		Find(&subs).Error

	if err != nil {
		r.logger.Error("Failed to list lapsed subscriptions", zap.Error(err))
		return nil, fmt.Errorf("failed to list lapsed subscriptions: %w", err)
	}

	return subs, nil
}

func (r *subscriptionRepository) reloadUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}
	return &user, nil
}
