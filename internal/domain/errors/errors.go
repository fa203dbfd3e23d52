package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound indicates that no user row matches the given key
	ErrUserNotFound = errors.New("user not found")

	// ErrSubscriptionNotFound indicates that the specified subscription was not found
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrDuplicateUser indicates a unique-constraint violation on user creation,
	// i.e. a concurrent trigger created the row first
	ErrDuplicateUser = errors.New("user already exists")

	// ErrNoBillingProfile indicates the user has no bound billing customer id
	ErrNoBillingProfile = errors.New("no billing profile for user")

	// ErrCheckoutURLMissing indicates the billing provider returned a session without a URL
	ErrCheckoutURLMissing = errors.New("billing provider returned no checkout URL")

	// ErrInvalidPeriodEnd indicates a zero or unparseable period end reached
	// the reconciliation service; callers must substitute a fallback first
	ErrInvalidPeriodEnd = errors.New("invalid current period end")
)

// InsufficientCreditsError is returned when a user doesn't have enough credits
type InsufficientCreditsError struct {
	Requested int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: requested %d, available %d", e.Requested, e.Available)
}

// NewInsufficientCreditsError creates a new InsufficientCreditsError
func NewInsufficientCreditsError(requested, available int) *InsufficientCreditsError {
	return &InsufficientCreditsError{
		Requested: requested,
		Available: available,
	}
}
