package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pixelmint/billing-service/internal/domain/billing"
	domainErrors "github.com/pixelmint/billing-service/internal/domain/errors"
	"github.com/pixelmint/billing-service/internal/domain/model"
	domainRepo "github.com/pixelmint/billing-service/internal/domain/repository"
)

func newSubscriptionService(t *testing.T, db *gorm.DB, gateway billing.Gateway) (*SubscriptionService, domainRepo.UserRepository, domainRepo.SubscriptionRepository) {
	t.Helper()
	users, subs := newTestRepos(t, db)
	svc := NewSubscriptionService(users, subs, gateway, testCatalog(), "https://app.example.com", zap.NewNop())
	return svc, users, subs
}

func seedUser(t *testing.T, users domainRepo.UserRepository, externalID string) *model.User {
	t.Helper()
	user := &model.User{
		ExternalID: externalID,
		Email:      externalID + "@example.com",
		Plan:       model.PlanTierFree,
		Credits:    model.FreeTierCredits,
	}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestUpdateUserSubscriptionAppliesPlan(t *testing.T) {
	db := newTestDB(t)
	svc, users, subs := newSubscriptionService(t, db, &mockGateway{})
	user := seedUser(t, users, "ext_1")

	periodEnd := time.Now().Add(720 * time.Hour).Truncate(time.Second)

	updated, err := svc.UpdateUserSubscription(context.Background(), "ext_1", "price_pro", "sub_1", periodEnd)
	require.NoError(t, err)

	assert.Equal(t, model.PlanTierPro, updated.Plan)
	assert.Equal(t, 120, updated.Credits)

	sub, err := subs.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "sub_1", sub.StripeSubscriptionID)
	assert.Equal(t, "price_pro", sub.StripePriceID)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	assert.WithinDuration(t, periodEnd, sub.CurrentPeriodEnd, time.Second)
}

func TestUpdateUserSubscriptionIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc, users, _ := newSubscriptionService(t, db, &mockGateway{})
	user := seedUser(t, users, "ext_1")

	periodEnd := time.Now().Add(720 * time.Hour)

	first, err := svc.UpdateUserSubscription(context.Background(), "ext_1", "price_starter", "sub_1", periodEnd)
	require.NoError(t, err)

	second, err := svc.UpdateUserSubscription(context.Background(), "ext_1", "price_starter", "sub_1", periodEnd)
	require.NoError(t, err)

	assert.Equal(t, first.Plan, second.Plan)
	assert.Equal(t, first.Credits, second.Credits)

	var count int64
	require.NoError(t, db.Model(&model.Subscription{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpdateUserSubscriptionPreservesRowIdentity(t *testing.T) {
	db := newTestDB(t)
	svc, users, subs := newSubscriptionService(t, db, &mockGateway{})
	user := seedUser(t, users, "ext_1")

	_, err := svc.UpdateUserSubscription(context.Background(), "ext_1", "price_starter", "sub_1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	first, err := subs.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)

	// An upgrade arrives through the same subscription.
	_, err = svc.UpdateUserSubscription(context.Background(), "ext_1", "price_pro", "sub_1", time.Now().Add(2*time.Hour))
	require.NoError(t, err)

	second, err := subs.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "price_pro", second.StripePriceID)
	assert.Equal(t, model.SubscriptionStatusActive, second.Status)
	assert.Nil(t, second.CanceledAt)
}

func TestUpdateUserSubscriptionRejectsZeroPeriodEnd(t *testing.T) {
	db := newTestDB(t)
	svc, users, _ := newSubscriptionService(t, db, &mockGateway{})
	seedUser(t, users, "ext_1")

	_, err := svc.UpdateUserSubscription(context.Background(), "ext_1", "price_pro", "sub_1", time.Time{})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidPeriodEnd)
}

func TestUpdateUserSubscriptionUnknownUser(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newSubscriptionService(t, db, &mockGateway{})

	_, err := svc.UpdateUserSubscription(context.Background(), "ghost", "price_pro", "sub_1", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domainErrors.ErrUserNotFound)
}

func TestUpdateUserSubscriptionUnknownPriceDegradesToFree(t *testing.T) {
	db := newTestDB(t)
	svc, users, _ := newSubscriptionService(t, db, &mockGateway{})
	seedUser(t, users, "ext_1")

	updated, err := svc.UpdateUserSubscription(context.Background(), "ext_1", "price_unknown", "sub_1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, model.PlanTierFree, updated.Plan)
	assert.Equal(t, model.FreeTierCredits, updated.Credits)
}

func TestCreateCheckoutSessionBindsCustomer(t *testing.T) {
	db := newTestDB(t)
	gateway := &mockGateway{}
	svc, users, _ := newSubscriptionService(t, db, gateway)
	user := seedUser(t, users, "ext_1")

	gateway.On("CreateCustomer", mock.Anything, user.Email, mock.Anything).Return("cus_1", nil)
	gateway.On("ListActiveSubscriptionIDs", mock.Anything, "cus_1").Return([]string(nil), nil)
	gateway.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p billing.CheckoutParams) bool {
		return p.CustomerID == "cus_1" &&
			p.PriceID == "price_pro" &&
			p.Metadata["externalId"] == "ext_1" &&
			p.Metadata["userId"] == user.ID.String()
	})).Return("https://checkout.example.com/s/1", nil)

	url, err := svc.CreateCheckoutSession(context.Background(), user, "price_pro")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/s/1", url)

	stored, err := users.GetByExternalID(context.Background(), "ext_1")
	require.NoError(t, err)
	require.NotNil(t, stored.StripeCustomerID)
	assert.Equal(t, "cus_1", *stored.StripeCustomerID)

	gateway.AssertExpectations(t)
}

func TestCreateCheckoutSessionAnnotatesPreviousSubscriptions(t *testing.T) {
	db := newTestDB(t)
	gateway := &mockGateway{}
	svc, users, _ := newSubscriptionService(t, db, gateway)
	user := seedUser(t, users, "ext_1")
	customerID := "cus_1"
	user.StripeCustomerID = &customerID
	require.NoError(t, users.SetStripeCustomerID(context.Background(), user.ID, customerID))

	gateway.On("ListActiveSubscriptionIDs", mock.Anything, "cus_1").Return([]string{"sub_a", "sub_b"}, nil)
	gateway.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p billing.CheckoutParams) bool {
		return p.Metadata["previous_subscription_ids"] == "sub_a,sub_b"
	})).Return("https://checkout.example.com/s/2", nil)

	_, err := svc.CreateCheckoutSession(context.Background(), user, "price_starter")
	require.NoError(t, err)

	gateway.AssertExpectations(t)
}

func TestCreateCheckoutSessionEmptyURL(t *testing.T) {
	db := newTestDB(t)
	gateway := &mockGateway{}
	svc, users, _ := newSubscriptionService(t, db, gateway)
	user := seedUser(t, users, "ext_1")

	gateway.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return("cus_1", nil)
	gateway.On("ListActiveSubscriptionIDs", mock.Anything, "cus_1").Return([]string(nil), nil)
	gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return("", nil)

	_, err := svc.CreateCheckoutSession(context.Background(), user, "price_pro")
	assert.ErrorIs(t, err, domainErrors.ErrCheckoutURLMissing)
}

func TestCreatePortalSessionRequiresBillingProfile(t *testing.T) {
	db := newTestDB(t)
	svc, users, _ := newSubscriptionService(t, db, &mockGateway{})
	user := seedUser(t, users, "ext_1")

	_, err := svc.CreatePortalSession(context.Background(), user)
	assert.ErrorIs(t, err, domainErrors.ErrNoBillingProfile)
}

func TestFindUserBySubscriptionTwoTierLookup(t *testing.T) {
	db := newTestDB(t)
	svc, users, _ := newSubscriptionService(t, db, &mockGateway{})
	user := seedUser(t, users, "ext_1")

	// Local subscription row wins.
	_, err := svc.UpdateUserSubscription(context.Background(), "ext_1", "price_pro", "sub_1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	found, err := svc.FindUserBySubscription(context.Background(), "sub_1", "")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)

	// Unknown subscription falls back to the customer binding.
	customerID := "cus_1"
	require.NoError(t, users.SetStripeCustomerID(context.Background(), user.ID, customerID))

	found, err = svc.FindUserBySubscription(context.Background(), "sub_unknown", customerID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)

	// Neither path matches.
	found, err = svc.FindUserBySubscription(context.Background(), "sub_unknown", "cus_unknown")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestMarkCancelPendingKeepsEntitlements(t *testing.T) {
	db := newTestDB(t)
	svc, users, subs := newSubscriptionService(t, db, &mockGateway{})
	user := seedUser(t, users, "ext_1")

	_, err := svc.UpdateUserSubscription(context.Background(), "ext_1", "price_pro", "sub_1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	periodEnd := time.Now().Add(time.Hour)
	require.NoError(t, svc.MarkCancelPending(context.Background(), "sub_1", "price_pro", periodEnd))

	sub, err := subs.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusCanceledAtPeriodEnd, sub.Status)
	assert.NotNil(t, sub.CanceledAt)

	stored, err := users.GetByExternalID(context.Background(), "ext_1")
	require.NoError(t, err)
	assert.Equal(t, model.PlanTierPro, stored.Plan)
	assert.Equal(t, 120, stored.Credits)
}

func TestMarkCancelPendingUnknownSubscription(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newSubscriptionService(t, db, &mockGateway{})

	err := svc.MarkCancelPending(context.Background(), "sub_ghost", "price_pro", time.Now())
	assert.ErrorIs(t, err, domainErrors.ErrSubscriptionNotFound)
}

func TestDowngradeToFree(t *testing.T) {
	db := newTestDB(t)
	svc, users, subs := newSubscriptionService(t, db, &mockGateway{})
	user := seedUser(t, users, "ext_1")

	_, err := svc.UpdateUserSubscription(context.Background(), "ext_1", "price_enterprise", "sub_1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	downgraded, err := svc.DowngradeToFree(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Equal(t, model.PlanTierFree, downgraded.Plan)
	assert.Equal(t, model.FreeTierCredits, downgraded.Credits)

	sub, err := subs.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusExpired, sub.Status)
	assert.NotNil(t, sub.CanceledAt)
}
