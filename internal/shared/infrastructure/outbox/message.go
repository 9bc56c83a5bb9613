package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/shared/domain"
	"github.com/google/uuid"
)

// Message is one billing event waiting in the outbox table.
type Message struct {
	ID            int64
	EventID       uuid.UUID
	AggregateType string
	// AggregateID is the user id, or "device:<fingerprint>" for anonymous consumption.
	AggregateID string
	EventType   string
	RoutingKey  string
	Payload     json.RawMessage
	Metadata    json.RawMessage
	CreatedAt   time.Time

	PublishedAt *time.Time
	NextRetryAt *time.Time
	RetryCount  int
	LastError   *string

	DeadLetteredAt   *time.Time
	DeadLetterReason *string
}

// NewMessage serializes event and its metadata. The routing key doubles as the event type.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event.RoutingKey(), err)
	}
	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return nil, fmt.Errorf("marshal %s metadata: %w", event.RoutingKey(), err)
	}

	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.RoutingKey(),
		RoutingKey:    event.RoutingKey(),
		Payload:       payload,
		Metadata:      metadata,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

// IsPublished reports whether the message reached the broker.
func (m *Message) IsPublished() bool { return m.PublishedAt != nil }

// IsDeadLettered reports whether the processor gave up on the message.
func (m *Message) IsDeadLettered() bool { return m.DeadLetteredAt != nil }

// logAttrs identifies the message and its originating request in logs.
func (m *Message) logAttrs() []any {
	attrs := []any{"outbox_id", m.ID, "event_id", m.EventID, "routing_key", m.RoutingKey}
	var meta domain.EventMetadata
	if len(m.Metadata) > 0 && json.Unmarshal(m.Metadata, &meta) == nil {
		attrs = append(attrs, "correlation_id", meta.CorrelationID, "user_id", meta.UserID)
	}
	return attrs
}
