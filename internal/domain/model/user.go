package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlanTier is the entitlement tier granted to a user.
type PlanTier string

const (
	PlanTierFree       PlanTier = "FREE"
	PlanTierStarter    PlanTier = "STARTER"
	PlanTierPro        PlanTier = "PRO"
	PlanTierEnterprise PlanTier = "ENTERPRISE"
)

// FreeTierCredits is the baseline grant for users without an active
// subscription. Applied uniformly on user creation, unknown-plan fallback
// and downgrade.
const FreeTierCredits = 5

// Scan implements sql.Scanner interface
func (p *PlanTier) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*p = PlanTier(v)
	case []byte:
		*p = PlanTier(v)
	default:
		*p = PlanTierFree
	}
	return nil
}

// Value implements driver.Valuer interface
func (p PlanTier) Value() (driver.Value, error) {
	return string(p), nil
}

// User is the application-side entitlement record. ExternalID is the
// identity provider's stable user id; StripeCustomerID is assigned lazily
// on first purchase.
type User struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID       string    `gorm:"uniqueIndex;size:100;not null" json:"external_id"`
	Email            string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	StripeCustomerID *string   `gorm:"index;size:100" json:"stripe_customer_id,omitempty"`
	Plan             PlanTier  `gorm:"size:20;not null;default:'FREE'" json:"plan"`
	Credits          int       `gorm:"not null" json:"credits"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Relations
	Subscription *Subscription `gorm:"foreignKey:UserID" json:"subscription,omitempty"`
}

// BeforeCreate assigns the primary key when the caller did not.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}
