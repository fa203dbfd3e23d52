package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pixelmint/billing-service/internal/domain/model"
)

// PlanChange is the input to the atomic reconciliation transaction: the
// resolved tier/credits plus the billing-provider subscription facts.
type PlanChange struct {
	UserID               uuid.UUID
	Plan                 model.PlanTier
	Credits              int
	StripeSubscriptionID string
	StripePriceID        string
	CurrentPeriodEnd     time.Time
}

// SubscriptionRepository is the store interface for subscription rows and
// the compound user+subscription transitions that must commit atomically.
type SubscriptionRepository interface {
	// GetByStripeID returns the subscription with its owning user preloaded,
	// or (nil, nil) when absent.
	GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Subscription, error)

	// ApplyPlanChange updates the user's tier/credits and upserts the
	// subscription keyed by user in one transaction. The create path sets
	// both provider ids; the update path refreshes price id and period end
	// only, preserving the row's identity. Returns the updated user.
	ApplyPlanChange(ctx context.Context, change PlanChange) (*model.User, error)

	// MarkCancelPending records a cancellation scheduled for period end:
	// status, cancellation timestamp, refreshed price id and period end.
	// The owning user's tier and credits are not touched.
	MarkCancelPending(ctx context.Context, stripeSubscriptionID, stripePriceID string, periodEnd time.Time) error

	// ExpireAndDowngrade expires the user's subscriptions and resets the
	// user to the free tier with the baseline credit grant, atomically.
	// Returns the updated user.
	ExpireAndDowngrade(ctx context.Context, userID uuid.UUID) (*model.User, error)

	// ListLapsed returns subscriptions whose period end has passed and that
	// are not yet expired, with users preloaded.
	ListLapsed(ctx context.Context, now time.Time) ([]model.Subscription, error)
}
