package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	domainErrors "github.com/pixelmint/billing-service/internal/domain/errors"
	"github.com/pixelmint/billing-service/internal/domain/model"
	"github.com/pixelmint/billing-service/internal/domain/repository"
)

type userRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB, logger *zap.Logger) repository.UserRepository {
	return &userRepository{
		db:     db,
		logger: logger,
	}
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.getOne(ctx, "external_id = ?", externalID)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email = ?", email)
}

func (r *userRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	return r.getOne(ctx, "stripe_customer_id = ?", customerID)
}

func (r *userRepository) getOne(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User

	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get user", zap.String("query", query), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainErrors.ErrDuplicateUser
		}
		r.logger.Error("Failed to create user",
			zap.String("external_id", user.ExternalID),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *userRepository) BindExternalID(ctx context.Context, id uuid.UUID, externalID string) (*model.User, error) {
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Update("external_id", externalID)

	if res.Error != nil {
		r.logger.Error("Failed to bind external id",
			zap.String("user_id", id.String()),
			zap.String("external_id", externalID),
			zap.Error(res.Error))
		return nil, fmt.Errorf("failed to bind external id: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, domainErrors.ErrUserNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *userRepository) UpdateEmail(ctx context.Context, externalID, email string) error {
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("external_id = ?", externalID).
		Update("email", email)

	if res.Error != nil {
		return fmt.Errorf("failed to update email: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domainErrors.ErrUserNotFound
	}

	return nil
}

func (r *userRepository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Update("stripe_customer_id", customerID)

	if res.Error != nil {
		r.logger.Error("Failed to set billing customer id",
			zap.String("user_id", id.String()),
			zap.Error(res.Error))
		return fmt.Errorf("failed to set billing customer id: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domainErrors.ErrUserNotFound
	}

	return nil
}

// ConsumeCredits decrements the balance with a guard predicate so the
// balance can never go negative, even under concurrent consumption.
func (r *userRepository) ConsumeCredits(ctx context.Context, externalID string, amount int) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("external_id = ? AND credits >= ?", externalID, amount).
		UpdateColumn("credits", gorm.Expr("credits - ?", amount))

	if res.Error != nil {
		r.logger.Error("Failed to consume credits",
			zap.String("external_id", externalID),
			zap.Int("amount", amount),
			zap.Error(res.Error))
		return 0, fmt.Errorf("failed to consume credits: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		// Distinguish a missing user from a short balance.
		user, err := r.GetByExternalID(ctx, externalID)
		if err != nil {
			return 0, err
		}
		if user == nil {
			return 0, domainErrors.ErrUserNotFound
		}
		return user.Credits, domainErrors.NewInsufficientCreditsError(amount, user.Credits)
	}

	user, err := r.GetByExternalID(ctx, externalID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, domainErrors.ErrUserNotFound
	}

	return user.Credits, nil
}

func (r *userRepository) DeleteByExternalID(ctx context.Context, externalID string) error {
	res := r.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		Delete(&model.User{})

	if res.Error != nil {
		r.logger.Error("Failed to delete user",
			zap.String("external_id", externalID),
			zap.Error(res.Error))
		return fmt.Errorf("failed to delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domainErrors.ErrUserNotFound
	}

	return nil
}
