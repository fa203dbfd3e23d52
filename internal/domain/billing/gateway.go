// Package billing defines the provider-agnostic view of the billing
// provider: a gateway interface plus strongly typed subscription facts,
// so that no handler probes raw provider payloads directly.
package billing

import (
	"context"
	"time"
)

// Subscription is the typed fact derived from a provider subscription
// object. CurrentPeriodEnd stays zero when the provider omitted it;
// consumers resolve that through PeriodEndOrFallback.
type Subscription struct {
	ID                string
	CustomerID        string
	PriceID           string
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
}

// IsActive reports whether the provider considers the subscription entitled.
func (s *Subscription) IsActive() bool {
	return s.Status == "active" || s.Status == "trialing"
}

// SubscriptionEvent is the typed record parsed from a subscription webhook
// payload. The parse step resolves the period-end fallback, so a zero
// CurrentPeriodEnd never escapes it.
type SubscriptionEvent struct {
	SubscriptionID    string
	CustomerID        string
	PriceID           string
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
}

// PeriodEndOrFallback substitutes one month from now for a missing period
// end. Entitlement availability is prioritized over precise expiry
// tracking; the expiry sweep corrects any drift later.
func PeriodEndOrFallback(periodEnd time.Time) time.Time {
	if periodEnd.IsZero() {
		return time.Now().AddDate(0, 1, 0)
	}
	return periodEnd
}

// CheckoutParams describes a checkout session to create. Metadata must
// carry the application user identity: it is the only cross-reference
// available to the webhook handler when the session completes.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Gateway is the thin wrapper over the billing provider's customer,
// subscription, checkout and portal APIs.
type Gateway interface {
	// CreateCustomer creates a billing customer and returns its id.
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)

	// GetSubscription fetches live subscription state; (nil, nil) when the
	// provider no longer knows the id.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// ListActiveSubscriptionIDs returns ids of the customer's currently
	// active subscriptions.
	ListActiveSubscriptionIDs(ctx context.Context, customerID string) ([]string, error)

	// CreateCheckoutSession returns the provider-hosted checkout URL.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)

	// CreatePortalSession returns the provider-hosted portal URL for a
	// previously-bound customer.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}
