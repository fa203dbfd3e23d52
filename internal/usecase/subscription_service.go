package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pixelmint/billing-service/internal/domain/billing"
	domainErrors "github.com/pixelmint/billing-service/internal/domain/errors"
	"github.com/pixelmint/billing-service/internal/domain/model"
	"github.com/pixelmint/billing-service/internal/domain/plan"
	"github.com/pixelmint/billing-service/internal/domain/repository"
)

// SubscriptionService reconciles billing-provider subscription facts into
// the user entitlement store and fronts checkout/portal session creation.
type SubscriptionService struct {
	users         repository.UserRepository
	subscriptions repository.SubscriptionRepository
	gateway       billing.Gateway
	catalog       plan.Catalog
	clientURL     string
	logger        *zap.Logger
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(
	users repository.UserRepository,
	subscriptions repository.SubscriptionRepository,
	gateway billing.Gateway,
	catalog plan.Catalog,
	clientURL string,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		users:         users,
		subscriptions: subscriptions,
		gateway:       gateway,
		catalog:       catalog,
		clientURL:     strings.TrimRight(clientURL, "/"),
		logger:        logger,
	}
}

// UpdateUserSubscription applies a subscription fact to the user's
// entitlements: resolve the price id to a tier, then commit tier, credits
// and the subscription row atomically. Replays converge on the same state.
func (s *SubscriptionService) UpdateUserSubscription(ctx context.Context, externalID, priceID, subscriptionID string, periodEnd time.Time) (*model.User, error) {
	if periodEnd.IsZero() {
		return nil, domainErrors.ErrInvalidPeriodEnd
	}

	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domainErrors.ErrUserNotFound
	}

	details := s.catalog.Details(priceID)

	updated, err := s.subscriptions.ApplyPlanChange(ctx, repository.PlanChange{
		UserID:               user.ID,
		Plan:                 details.Tier,
		Credits:              details.Credits,
		StripeSubscriptionID: subscriptionID,
		StripePriceID:        priceID,
		CurrentPeriodEnd:     periodEnd,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Subscription reconciled",
		zap.String("user_id", updated.ID.String()),
		zap.String("subscription_id", subscriptionID),
		zap.String("plan", string(details.Tier)),
		zap.Time("period_end", periodEnd))

	return updated, nil
}

// CreateCheckoutSession binds a billing customer to the user if needed and
// returns the provider-hosted checkout URL for the requested price.
func (s *SubscriptionService) CreateCheckoutSession(ctx context.Context, user *model.User, priceID string) (string, error) {
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	metadata := map[string]string{
		"userId":     user.ID.String(),
		"externalId": user.ExternalID,
	}

	// Annotate the session with subscriptions the new one will supersede.
	// Listing is best-effort; checkout must not fail because of it.
	if previous, err := s.gateway.ListActiveSubscriptionIDs(ctx, customerID); err != nil {
		s.logger.Warn("Failed to list active subscriptions before checkout",
			zap.String("customer_id", customerID),
			zap.Error(err))
	} else if len(previous) > 0 {
		metadata["previous_subscription_ids"] = strings.Join(previous, ",")
	}

	url, err := s.gateway.CreateCheckoutSession(ctx, billing.CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: s.clientURL + "/dashboard?success=true&session_preserved=true",
		CancelURL:  s.clientURL + "/dashboard?canceled=true&session_preserved=true",
		Metadata:   metadata,
	})
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", domainErrors.ErrCheckoutURLMissing
	}

	return url, nil
}

// CreatePortalSession returns the provider-hosted billing portal URL
func (s *SubscriptionService) CreatePortalSession(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", domainErrors.ErrNoBillingProfile
	}

	return s.gateway.CreatePortalSession(ctx, *user.StripeCustomerID, s.clientURL+"/dashboard/settings")
}

// FindUserBySubscription resolves a provider subscription to the owning
// user: first through the local subscription row, then through the
// customer binding. (nil, nil) when neither path matches.
func (s *SubscriptionService) FindUserBySubscription(ctx context.Context, subscriptionID, customerID string) (*model.User, error) {
	sub, err := s.subscriptions.GetByStripeID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub != nil && sub.User != nil {
		return sub.User, nil
	}

	if customerID != "" {
		return s.users.GetByStripeCustomerID(ctx, customerID)
	}

	return nil, nil
}

// FindByStripeID returns the local subscription row, (nil, nil) when absent
func (s *SubscriptionService) FindByStripeID(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	return s.subscriptions.GetByStripeID(ctx, subscriptionID)
}

// MarkCancelPending records a scheduled cancellation. Entitlements stay
// intact until the period actually lapses.
func (s *SubscriptionService) MarkCancelPending(ctx context.Context, subscriptionID, priceID string, periodEnd time.Time) error {
	if err := s.subscriptions.MarkCancelPending(ctx, subscriptionID, priceID, billing.PeriodEndOrFallback(periodEnd)); err != nil {
		return err
	}

	s.logger.Info("Subscription cancellation scheduled",
		zap.String("subscription_id", subscriptionID),
		zap.Time("period_end", periodEnd))

	return nil
}

// DowngradeToFree expires the user's subscription and resets entitlements
// to the free tier baseline.
func (s *SubscriptionService) DowngradeToFree(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	return s.subscriptions.ExpireAndDowngrade(ctx, userID)
}

func (s *SubscriptionService) ensureCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, user.Email, map[string]string{
		"userId":     user.ID.String(),
		"externalId": user.ExternalID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create billing customer: %w", err)
	}

	if err := s.users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", err
	}
	user.StripeCustomerID = &customerID

	s.logger.Info("Billing customer bound",
		zap.String("user_id", user.ID.String()),
		zap.String("customer_id", customerID))

	return customerID, nil
}
