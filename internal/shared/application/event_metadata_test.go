package application

import (
	"context"
	"testing"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/shared/domain"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEventMetadataFromContext(t *testing.T) {
	t.Run("keeps the request correlation id", func(t *testing.T) {
		id := uuid.New()
		ctx := observability.WithCorrelationID(context.Background(), id.String())

		meta := EventMetadataFromContext(ctx, "user-1")

		assert.Equal(t, id, meta.CorrelationID)
		assert.Equal(t, "user-1", meta.UserID)
		assert.NotEqual(t, uuid.Nil, meta.CausationID)
	})

	t.Run("mints one without a request", func(t *testing.T) {
		a := EventMetadataFromContext(context.Background(), "")
		b := EventMetadataFromContext(context.Background(), "")

		assert.NotEqual(t, uuid.Nil, a.CorrelationID)
		assert.NotEqual(t, a.CorrelationID, b.CorrelationID)
		assert.NotEqual(t, a.CausationID, b.CausationID)
	})

	t.Run("ignores non-uuid correlation ids", func(t *testing.T) {
		ctx := observability.WithCorrelationID(context.Background(), "req-abc")

		assert.NotEqual(t, uuid.Nil, EventMetadataFromContext(ctx, "").CorrelationID)
	})
}

type refundEvent struct {
	domain.BaseEvent
}

// plainEvent implements DomainEvent without SetMetadata.
type plainEvent struct{}

func (plainEvent) EventID() uuid.UUID             { return uuid.Nil }
func (plainEvent) AggregateID() string            { return "" }
func (plainEvent) AggregateType() string          { return "Entitlement" }
func (plainEvent) RoutingKey() string             { return "billing.purchase.refunded" }
func (plainEvent) OccurredAt() time.Time          { return time.Time{} }
func (plainEvent) Metadata() domain.EventMetadata { return domain.EventMetadata{} }

func TestApplyEventMetadata(t *testing.T) {
	refund := &refundEvent{BaseEvent: domain.NewBaseEvent("user-1", "Entitlement", "billing.purchase.refunded")}
	meta := EventMetadataFromContext(context.Background(), "admin")

	assert.NotPanics(t, func() {
		ApplyEventMetadata([]domain.DomainEvent{refund, plainEvent{}}, meta)
		ApplyEventMetadata(nil, meta)
	})
	assert.Equal(t, meta, refund.Metadata())
}
