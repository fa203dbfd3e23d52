package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/pixelmint/billing-service/internal/domain/model"
)

// UserRepository is the store interface for user entitlement records.
// Lookup methods return (nil, nil) when no row matches.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)

	// Create inserts a new user; a unique-constraint violation is reported
	// as domain errors.ErrDuplicateUser.
	Create(ctx context.Context, user *model.User) error

	// BindExternalID re-points an existing user at a new identity-provider id.
	BindExternalID(ctx context.Context, id uuid.UUID, externalID string) (*model.User, error)

	UpdateEmail(ctx context.Context, externalID, email string) error
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error

	// ConsumeCredits atomically decrements the balance, refusing to go
	// negative. Returns the remaining balance.
	ConsumeCredits(ctx context.Context, externalID string, amount int) (int, error)

	DeleteByExternalID(ctx context.Context, externalID string) error
}
