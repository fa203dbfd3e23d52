package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/pixelmint/billing-service/internal/domain/errors"
	"github.com/pixelmint/billing-service/internal/domain/model"
	"github.com/pixelmint/billing-service/internal/domain/repository"
	"github.com/pixelmint/billing-service/pkg/retry"
)

// UserService owns user provisioning and the credit balance.
type UserService struct {
	users  repository.UserRepository
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(users repository.UserRepository, logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		logger: logger,
	}
}

// EnsureUserExists provisions the user row for an identity-provider
// account. It is safe to call from any event source in any order: the
// identity webhook, checkout processing and foreground polling all race
// to create the same row, and exactly one wins.
func (s *UserService) EnsureUserExists(ctx context.Context, externalID, email string) (*model.User, error) {
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	// An earlier sign-up flow may have created the row under the email
	// before the identity-provider id was known. Rebind instead of
	// creating a duplicate.
	if email != "" {
		byEmail, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if byEmail != nil {
			s.logger.Info("Rebinding existing user to identity-provider id",
				zap.String("user_id", byEmail.ID.String()),
				zap.String("external_id", externalID))
			return s.users.BindExternalID(ctx, byEmail.ID, externalID)
		}
	}

	user = &model.User{
		ExternalID: externalID,
		Email:      email,
		Plan:       model.PlanTierFree,
		Credits:    model.FreeTierCredits,
	}

	err = s.users.Create(ctx, user)
	if err == nil {
		s.logger.Info("User created",
			zap.String("user_id", user.ID.String()),
			zap.String("external_id", externalID))
		return user, nil
	}
	if !errors.Is(err, domainErrors.ErrDuplicateUser) {
		return nil, err
	}

	// A concurrent caller created the row between our lookup and insert.
	// Give its transaction a moment to commit, then adopt it.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(400 * time.Millisecond):
	}

	user, lookupErr := s.users.GetByExternalID(ctx, externalID)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if user != nil {
		return user, nil
	}
	if email != "" {
		user, lookupErr = s.users.GetByEmail(ctx, email)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if user != nil {
			return user, nil
		}
	}

	return nil, err
}

// FindByID returns the user by primary key, (nil, nil) when absent
func (s *UserService) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// LookupByExternalID returns the user without retry, (nil, nil) when absent
func (s *UserService) LookupByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return s.users.GetByExternalID(ctx, externalID)
}

// FindByExternalID looks the user up with a short retry, covering the
// window where a webhook races ahead of the row's commit.
func (s *UserService) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	var user *model.User

	err := retry.Do(ctx, retry.Config{
		Attempts: 3,
		Delay:    300 * time.Millisecond,
		Backoff:  retry.Linear,
	}, func(ctx context.Context) error {
		found, err := s.users.GetByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		if found == nil {
			return domainErrors.ErrUserNotFound
		}
		user = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// ConsumeCredits spends credits from the user's balance and returns the
// remainder.
func (s *UserService) ConsumeCredits(ctx context.Context, externalID string, amount int) (int, error) {
	remaining, err := s.users.ConsumeCredits(ctx, externalID, amount)
	if err != nil {
		return remaining, err
	}

	s.logger.Debug("Credits consumed",
		zap.String("external_id", externalID),
		zap.Int("amount", amount),
		zap.Int("remaining", remaining))

	return remaining, nil
}

// UpdateEmail refreshes the stored email after an identity-provider update
func (s *UserService) UpdateEmail(ctx context.Context, externalID, email string) error {
	return s.users.UpdateEmail(ctx, externalID, email)
}

// DeleteByExternalID removes the user after identity-provider deletion
func (s *UserService) DeleteByExternalID(ctx context.Context, externalID string) error {
	return s.users.DeleteByExternalID(ctx, externalID)
}
