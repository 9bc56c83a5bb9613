package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// InProcessBus hands published events straight to subscribed consumers.
// It stands in for RabbitMQ when RABBITMQ_URL is unset.
type InProcessBus struct {
	mu        sync.RWMutex
	consumers []EventConsumer
	logger    *slog.Logger
}

// NewInProcessBus creates a bus with no consumers.
func NewInProcessBus(logger *slog.Logger) *InProcessBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessBus{logger: logger.With("component", "eventbus")}
}

// Subscribe adds a consumer for the patterns it declares.
func (b *InProcessBus) Subscribe(consumer EventConsumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers = append(b.consumers, consumer)
}

// Consumers returns the subscribed consumers with a pattern matching routingKey, in subscription order.
func (b *InProcessBus) Consumers(routingKey string) []EventConsumer {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []EventConsumer
	for _, c := range b.consumers {
		for _, pattern := range c.EventTypes() {
			if MatchTopic(pattern, routingKey) {
				matched = append(matched, c)
				break
			}
		}
	}
	return matched
}

// Publish runs every matching consumer on a private copy of payload.
// Consumer failures are logged but never returned: the outbox treats the event as delivered.
func (b *InProcessBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	event := &ConsumedEvent{
		RoutingKey: routingKey,
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: time.Now().UTC(),
	}

	var errs []error
	for _, c := range b.Consumers(routingKey) {
		if err := c.Handle(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", c, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		b.logger.ErrorContext(ctx, "consumer failed", "routing_key", routingKey, "error", err)
	}
	return nil
}

// Close is a no-op.
func (b *InProcessBus) Close() error { return nil }

var _ Publisher = (*InProcessBus)(nil)
