package stripe

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubscriptionEventCustomerAsString(t *testing.T) {
	periodEnd := time.Now().Add(720 * time.Hour).Unix()
	raw := []byte(`{
		"id": "sub_123",
		"customer": "cus_456",
		"status": "active",
		"cancel_at_period_end": false,
		"current_period_end": ` + jsonInt(periodEnd) + `,
		"items": {"data": [{"price": {"id": "price_pro"}}]}
	}`)

	event, err := ParseSubscriptionEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, "sub_123", event.SubscriptionID)
	assert.Equal(t, "cus_456", event.CustomerID)
	assert.Equal(t, "price_pro", event.PriceID)
	assert.Equal(t, "active", event.Status)
	assert.False(t, event.CancelAtPeriodEnd)
	assert.Equal(t, periodEnd, event.CurrentPeriodEnd.Unix())
}

func TestParseSubscriptionEventCustomerAsObject(t *testing.T) {
	raw := []byte(`{
		"id": "sub_123",
		"customer": {"id": "cus_456", "email": "a@b.c"},
		"status": "canceled",
		"current_period_end": 1700000000
	}`)

	event, err := ParseSubscriptionEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, "cus_456", event.CustomerID)
	assert.Equal(t, "canceled", event.Status)
	assert.Empty(t, event.PriceID)
}

func TestParseSubscriptionEventMissingPeriodEndFallsBack(t *testing.T) {
	raw := []byte(`{"id": "sub_123", "customer": "cus_456", "status": "active"}`)

	before := time.Now().AddDate(0, 1, 0)
	event, err := ParseSubscriptionEvent(raw)
	after := time.Now().AddDate(0, 1, 0)
	require.NoError(t, err)

	assert.False(t, event.CurrentPeriodEnd.Before(before))
	assert.False(t, event.CurrentPeriodEnd.After(after))
}

func TestParseSubscriptionEventMissingID(t *testing.T) {
	_, err := ParseSubscriptionEvent([]byte(`{"customer": "cus_456"}`))
	assert.Error(t, err)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
