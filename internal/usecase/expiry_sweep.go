package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pixelmint/billing-service/internal/domain/billing"
	"github.com/pixelmint/billing-service/internal/domain/model"
	"github.com/pixelmint/billing-service/internal/domain/repository"
)

// ExpirySweeper is the safety net for missed webhooks: it scans lapsed
// subscriptions, consults live provider state, and either renews the local
// record or downgrades the user.
type ExpirySweeper struct {
	subscriptions   repository.SubscriptionRepository
	subscriptionSvc *SubscriptionService
	gateway         billing.Gateway
	logger          *zap.Logger
}

// NewExpirySweeper creates a new expiry sweeper
func NewExpirySweeper(
	subscriptions repository.SubscriptionRepository,
	subscriptionSvc *SubscriptionService,
	gateway billing.Gateway,
	logger *zap.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		subscriptions:   subscriptions,
		subscriptionSvc: subscriptionSvc,
		gateway:         gateway,
		logger:          logger,
	}
}

// SweepSummary counts the outcomes of one sweep run.
type SweepSummary struct {
	Checked    int
	Downgraded int
	Renewed    int
	Skipped    int
	Failed     int
}

// Run performs one sweep over all lapsed subscriptions. Rows are processed
// independently; one failure never blocks the rest.
func (s *ExpirySweeper) Run(ctx context.Context) (SweepSummary, error) {
	var summary SweepSummary

	now := time.Now()
	lapsed, err := s.subscriptions.ListLapsed(ctx, now)
	if err != nil {
		return summary, err
	}

	s.logger.Info("Expiry sweep started",
		zap.Int("lapsed", len(lapsed)))

	for i := range lapsed {
		sub := &lapsed[i]
		summary.Checked++

		outcome, err := s.sweepOne(ctx, sub, now)
		if err != nil {
			summary.Failed++
			s.logger.Error("Sweep failed for subscription",
				zap.String("subscription_id", sub.StripeSubscriptionID),
				zap.Error(err))
			continue
		}

		switch outcome {
		case sweepDowngraded:
			summary.Downgraded++
		case sweepRenewed:
			summary.Renewed++
		case sweepSkipped:
			summary.Skipped++
		}
	}

	s.logger.Info("Expiry sweep finished",
		zap.Int("checked", summary.Checked),
		zap.Int("downgraded", summary.Downgraded),
		zap.Int("renewed", summary.Renewed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

type sweepOutcome int

const (
	sweepSkipped sweepOutcome = iota
	sweepDowngraded
	sweepRenewed
)

func (s *ExpirySweeper) sweepOne(ctx context.Context, sub *model.Subscription, now time.Time) (sweepOutcome, error) {
	if sub.User == nil {
		// Orphan row; nothing to downgrade.
		return sweepSkipped, nil
	}

	live, err := s.gateway.GetSubscription(ctx, sub.StripeSubscriptionID)
	if err != nil {
		return sweepSkipped, err
	}

	// Provider no longer knows the subscription, or considers it inactive.
	if live == nil || !live.IsActive() {
		if _, err := s.subscriptionSvc.DowngradeToFree(ctx, sub.UserID); err != nil {
			return sweepSkipped, err
		}
		return sweepDowngraded, nil
	}

	// The subscription renewed but the webhook never landed. Reconcile the
	// local record from live state.
	if live.CurrentPeriodEnd.After(now) {
		if live.PriceID == "" {
			s.logger.Warn("Live subscription has no price id, skipping",
				zap.String("subscription_id", sub.StripeSubscriptionID))
			return sweepSkipped, nil
		}
		if _, err := s.subscriptionSvc.UpdateUserSubscription(ctx, sub.User.ExternalID, live.PriceID, live.ID, live.CurrentPeriodEnd); err != nil {
			return sweepSkipped, err
		}
		return sweepRenewed, nil
	}

	// Scheduled cancellation whose period has now lapsed.
	if live.CancelAtPeriodEnd {
		if _, err := s.subscriptionSvc.DowngradeToFree(ctx, sub.UserID); err != nil {
			return sweepSkipped, err
		}
		return sweepDowngraded, nil
	}

	// Active at the provider but with a stale period end. Leave it for the
	// next sweep rather than guessing.
	return sweepSkipped, nil
}
