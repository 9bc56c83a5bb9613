// Package domain holds the event contract shared by the billing context and the outbox.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventMetadata links an event to the request or command that raised it.
type EventMetadata struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	CausationID   uuid.UUID `json:"causation_id"`
	UserID        string    `json:"user_id,omitempty"`
}

// DomainEvent is a billing fact recorded in the outbox. The routing key names
// the fact, e.g. "billing.purchase.refunded", and is used as the AMQP topic.
type DomainEvent interface {
	EventID() uuid.UUID
	AggregateID() string
	AggregateType() string
	RoutingKey() string
	OccurredAt() time.Time
	Metadata() EventMetadata
}

// BaseEvent carries the envelope fields. Concrete events embed it and add
// exported payload fields; the envelope itself is not serialized into the payload.
type BaseEvent struct {
	id            uuid.UUID
	aggregateID   string
	aggregateType string
	routingKey    string
	at            time.Time
	meta          EventMetadata
}

// NewBaseEvent stamps a fresh id and the current UTC time.
func NewBaseEvent(aggregateID, aggregateType, routingKey string) BaseEvent {
	return BaseEvent{
		id:            uuid.New(),
		aggregateID:   aggregateID,
		aggregateType: aggregateType,
		routingKey:    routingKey,
		at:            time.Now().UTC(),
	}
}

func (e BaseEvent) EventID() uuid.UUID      { return e.id }
func (e BaseEvent) AggregateID() string     { return e.aggregateID }
func (e BaseEvent) AggregateType() string   { return e.aggregateType }
func (e BaseEvent) RoutingKey() string      { return e.routingKey }
func (e BaseEvent) OccurredAt() time.Time   { return e.at }
func (e BaseEvent) Metadata() EventMetadata { return e.meta }

// SetMetadata attaches tracing metadata before the event is stored.
func (e *BaseEvent) SetMetadata(metadata EventMetadata) { e.meta = metadata }
