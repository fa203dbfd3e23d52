package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pixelmint/billing-service/internal/domain/billing"
)

// ParseSubscriptionEvent decodes the data.object payload of a
// customer.subscription.* webhook into a typed event. The customer field
// arrives as a bare id string or as an expanded object depending on how
// the event was generated; both shapes are accepted. A missing period end
// is resolved to the one-month fallback here so downstream code never
// sees a zero timestamp.
func ParseSubscriptionEvent(raw json.RawMessage) (*billing.SubscriptionEvent, error) {
	var payload struct {
		ID                string          `json:"id"`
		Customer          json.RawMessage `json:"customer"`
		Status            string          `json:"status"`
		CancelAtPeriodEnd bool            `json:"cancel_at_period_end"`
		CurrentPeriodEnd  float64         `json:"current_period_end"`
		Items             struct {
			Data []struct {
				Price struct {
					ID string `json:"id"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse subscription payload: %w", err)
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("subscription payload missing id")
	}

	customerID, err := decodeCustomerRef(payload.Customer)
	if err != nil {
		return nil, err
	}

	var periodEnd time.Time
	if payload.CurrentPeriodEnd > 0 {
		periodEnd = time.Unix(int64(payload.CurrentPeriodEnd), 0)
	}

	event := &billing.SubscriptionEvent{
		SubscriptionID:    payload.ID,
		CustomerID:        customerID,
		Status:            payload.Status,
		CancelAtPeriodEnd: payload.CancelAtPeriodEnd,
		CurrentPeriodEnd:  billing.PeriodEndOrFallback(periodEnd),
	}
	if len(payload.Items.Data) > 0 {
		event.PriceID = payload.Items.Data[0].Price.ID
	}

	return event, nil
}

func decodeCustomerRef(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, nil
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("failed to parse customer reference: %w", err)
	}
	return obj.ID, nil
}
