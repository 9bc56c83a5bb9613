// Package eventbus carries billing events from the outbox to RabbitMQ or to
// in-process consumers.
package eventbus

import (
	"context"
	"encoding/json"
	"time"
)

// Publisher delivers an outbox payload under its routing key, e.g.
// "billing.credits.granted". A nil error means the message may be marked published.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// EventConsumer handles events whose routing key matches one of its patterns.
type EventConsumer interface {
	// EventTypes returns topic patterns, e.g. "billing.feature.consumed" or "billing.#".
	EventTypes() []string

	// Handle processes the event.
	Handle(ctx context.Context, event *ConsumedEvent) error
}

// ConsumedEvent is a delivered message.
type ConsumedEvent struct {
	RoutingKey string          `json:"routing_key"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Decode unmarshals the payload into v.
func (e *ConsumedEvent) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
