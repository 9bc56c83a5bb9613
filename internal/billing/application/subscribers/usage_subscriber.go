// Package subscribers reacts to billing events delivered by the event bus.
package subscribers

import (
	"context"
	"log/slog"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/eventbus"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
)

// UsageSubscriber turns billing events into usage logs and counters.
type UsageSubscriber struct {
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewUsageSubscriber creates a new usage subscriber.
func NewUsageSubscriber(logger *slog.Logger, metrics observability.Metrics) *UsageSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &UsageSubscriber{logger: logger, metrics: metrics}
}

// EventTypes returns the event types this subscriber handles.
func (s *UsageSubscriber) EventTypes() []string {
	return []string{"billing.#"}
}

// Handle processes an event.
func (s *UsageSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	s.metrics.Counter(observability.MetricEventsConsumed, 1, observability.T("routing_key", event.RoutingKey))

	switch event.RoutingKey {
	case domain.RoutingKeyFeatureConsumed:
		return s.handleFeatureConsumed(ctx, event)
	case domain.RoutingKeyCreditsGranted:
		return s.handleCreditsGranted(ctx, event)
	case domain.RoutingKeySubscriptionSet:
		return s.handleSubscriptionUpdated(ctx, event)
	case domain.RoutingKeyPurchaseRefund:
		return s.handlePurchaseRefunded(ctx, event)
	default:
		s.logger.Debug("ignoring billing event", "routing_key", event.RoutingKey)
		return nil
	}
}

func (s *UsageSubscriber) handleFeatureConsumed(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload domain.FeatureConsumed
	if err := event.Decode(&payload); err != nil {
		return err
	}

	s.metrics.Counter(observability.MetricFeatureUsage, 1,
		observability.T("feature", string(payload.Feature)),
		observability.T("bucket", string(payload.Bucket)),
	)
	s.logger.InfoContext(ctx, "feature consumed",
		"user_id", payload.UserID,
		"anonymous", payload.UserID == "",
		"feature", payload.Feature,
		"bucket", payload.Bucket,
		"report_type", payload.ReportType,
	)
	return nil
}

func (s *UsageSubscriber) handleCreditsGranted(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload domain.CreditsGranted
	if err := event.Decode(&payload); err != nil {
		return err
	}

	s.metrics.Counter(observability.MetricCreditsGranted, int64(payload.Quantity),
		observability.T("product", string(payload.ProductType)),
	)
	s.logger.InfoContext(ctx, "credits granted",
		"user_id", payload.UserID,
		"purchase_id", payload.PurchaseID,
		"product", payload.ProductType,
		"quantity", payload.Quantity,
	)
	return nil
}

func (s *UsageSubscriber) handleSubscriptionUpdated(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload domain.SubscriptionUpdated
	if err := event.Decode(&payload); err != nil {
		return err
	}

	s.metrics.Counter(observability.MetricSubscriptionUpdates, 1,
		observability.T("status", string(payload.Status)),
	)
	s.logger.InfoContext(ctx, "subscription updated",
		"user_id", payload.UserID,
		"plan", payload.Plan,
		"status", payload.Status,
	)
	return nil
}

func (s *UsageSubscriber) handlePurchaseRefunded(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload domain.PurchaseRefundedEvent
	if err := event.Decode(&payload); err != nil {
		return err
	}

	s.metrics.Counter(observability.MetricPurchaseRefunds, 1)
	s.logger.InfoContext(ctx, "purchase refunded",
		"user_id", payload.UserID,
		"purchase_id", payload.PurchaseID,
	)
	return nil
}

var _ eventbus.EventConsumer = (*UsageSubscriber)(nil)
