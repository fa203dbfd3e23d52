package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive SubscriptionStatus = "ACTIVE"
	// SubscriptionStatusCanceledAtPeriodEnd marks a subscription that is
	// still entitled but will lapse at the end of the current period.
	SubscriptionStatusCanceledAtPeriodEnd SubscriptionStatus = "CANCELED_AT_PERIOD_END"
	SubscriptionStatusExpired             SubscriptionStatus = "EXPIRED"
)

// Scan implements sql.Scanner interface
func (s *SubscriptionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = SubscriptionStatus(v)
	case []byte:
		*s = SubscriptionStatus(v)
	default:
		*s = SubscriptionStatusExpired
	}
	return nil
}

// Value implements driver.Valuer interface
func (s SubscriptionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Subscription mirrors the billing provider's subscription for one user.
// Expired and cancellation-pending rows persist as history until
// superseded; presence alone does not imply active billing.
type Subscription struct {
	ID                   int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID               uuid.UUID          `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	StripeSubscriptionID string             `gorm:"uniqueIndex;size:100;not null" json:"stripe_subscription_id"`
	StripePriceID        string             `gorm:"size:100;not null" json:"stripe_price_id"`
	CurrentPeriodEnd     time.Time          `gorm:"not null" json:"current_period_end"`
	CanceledAt           *time.Time         `json:"canceled_at,omitempty"`
	Status               SubscriptionStatus `gorm:"size:30;not null;default:'ACTIVE'" json:"status"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`

	// Relations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}
