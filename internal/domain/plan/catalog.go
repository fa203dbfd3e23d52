// Package plan maps billing-provider price ids to entitlement tiers and
// monthly credit allotments.
package plan

import "github.com/pixelmint/billing-service/internal/domain/model"

// Details is the entitlement granted by a plan.
type Details struct {
	Tier    model.PlanTier
	Credits int
}

// Catalog is the closed, static price-id mapping. Price ids are opaque
// strings defined in the billing provider's configuration.
type Catalog struct {
	starter    string
	pro        string
	enterprise string
}

func NewCatalog(starterPriceID, proPriceID, enterprisePriceID string) Catalog {
	return Catalog{
		starter:    starterPriceID,
		pro:        proPriceID,
		enterprise: enterprisePriceID,
	}
}

// Details resolves a price id to its tier and credit allotment. Unknown
// ids degrade to the free tier baseline rather than failing.
func (c Catalog) Details(priceID string) Details {
	switch priceID {
	case c.starter:
		return Details{Tier: model.PlanTierStarter, Credits: 50}
	case c.pro:
		return Details{Tier: model.PlanTierPro, Credits: 120}
	case c.enterprise:
		return Details{Tier: model.PlanTierEnterprise, Credits: 300}
	default:
		return Details{Tier: model.PlanTierFree, Credits: model.FreeTierCredits}
	}
}
