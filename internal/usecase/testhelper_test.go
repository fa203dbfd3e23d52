package usecase

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pixelmint/billing-service/internal/adapter/repository"
	"github.com/pixelmint/billing-service/internal/domain/billing"
	"github.com/pixelmint/billing-service/internal/domain/model"
	"github.com/pixelmint/billing-service/internal/domain/plan"
	domainRepo "github.com/pixelmint/billing-service/internal/domain/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// In-memory SQLite: every connection sees its own database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Subscription{},
		&model.WebhookEvent{},
	))

	return db
}

func newTestRepos(t *testing.T, db *gorm.DB) (domainRepo.UserRepository, domainRepo.SubscriptionRepository) {
	t.Helper()
	logger := zap.NewNop()
	return repository.NewUserRepository(db, logger),
		repository.NewSubscriptionRepository(db, logger)
}

func testCatalog() plan.Catalog {
	return plan.NewCatalog("price_starter", "price_pro", "price_enterprise")
}

// mockGateway is a testify mock of the billing gateway.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, email, metadata)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) GetSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	args := m.Called(ctx, subscriptionID)
	sub, _ := args.Get(0).(*billing.Subscription)
	return sub, args.Error(1)
}

func (m *mockGateway) ListActiveSubscriptionIDs(ctx context.Context, customerID string) ([]string, error) {
	args := m.Called(ctx, customerID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	args := m.Called(ctx, customerID, returnURL)
	return args.String(0), args.Error(1)
}
