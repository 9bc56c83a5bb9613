package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPurchaseRefunded(t *testing.T) {
	purchaseID := uuid.New()
	event := NewPurchaseRefunded("user-1", purchaseID)

	assert.Equal(t, RoutingKeyPurchaseRefund, event.RoutingKey())
	assert.Equal(t, AggregateType, event.AggregateType())
	assert.Equal(t, "user-1", event.AggregateID())

	data, err := json.Marshal(event)
	require.NoError(t, err)
	var decoded PurchaseRefundedEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, purchaseID.String(), decoded.PurchaseID)

	refunded := Purchase{ID: purchaseID, Quantity: 2, Status: PurchaseRefunded}
	assert.Zero(t, refunded.Available())
}

func TestNewFeatureConsumed_AnonymousKeyedByDevice(t *testing.T) {
	event := NewFeatureConsumed("", "device-abc", FeatureAsk, "", BucketFree)

	assert.Equal(t, RoutingKeyFeatureConsumed, event.RoutingKey())
	assert.Contains(t, event.AggregateID(), "device-abc")
}
