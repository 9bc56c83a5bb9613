// Package application implements the entitlement service on top of the billing stores.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	sharedApplication "github.com/cosmiq-app/cosmiq/internal/shared/application"
	sharedDomain "github.com/cosmiq-app/cosmiq/internal/shared/domain"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/outbox"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
)

// Service gates features against subscriptions, purchased credits and the
// free tier. It holds no balances itself; every debit is a guarded store update.
type Service struct {
	subs    domain.SubscriptionStore
	free    domain.FreeUsageStore
	limits  domain.Limits
	outbox  outbox.Repository
	logger  *slog.Logger
	metrics observability.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithOutbox records a FeatureConsumed event after each debit.
func WithOutbox(repo outbox.Repository) Option {
	return func(s *Service) { s.outbox = repo }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics observability.Metrics) Option {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// NewService creates a store-backed entitlement service.
func NewService(subs domain.SubscriptionStore, free domain.FreeUsageStore, limits domain.Limits, opts ...Option) *Service {
	s := &Service{
		subs:    subs,
		free:    free,
		limits:  limits,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the configured quotas.
func (s *Service) Limits() domain.Limits {
	return s.limits
}

// GetEntitlements projects what the caller may use. It never writes.
func (s *Service) GetEntitlements(ctx context.Context, userID, fingerprint string) (domain.Entitlements, error) {
	snapshot := domain.BaselineEntitlements(s.limits)

	if userID != "" {
		snapshot.IsLoggedIn = true

		sub, err := s.subs.GetSubscription(ctx, userID)
		if err != nil {
			return domain.Entitlements{}, fmt.Errorf("get subscription: %w", err)
		}
		snapshot.ApplySubscription(sub, s.limits)

		balances, err := s.subs.GetCreditBalances(ctx, userID, domain.CreditProducts)
		if err != nil {
			return domain.Entitlements{}, fmt.Errorf("get credit balances: %w", err)
		}
		for product, available := range balances {
			snapshot.SetPurchased(product, available)
		}

		reports, err := s.subs.PurchasedReportTypes(ctx, userID)
		if err != nil {
			return domain.Entitlements{}, fmt.Errorf("get purchased reports: %w", err)
		}
		snapshot.SetPurchasedReports(reports)
	}

	if fingerprint != "" {
		usage, err := s.GetFreeUsage(ctx, fingerprint)
		if err != nil {
			return domain.Entitlements{}, err
		}
		snapshot.ApplyFreeUsage(usage, s.limits)
	}

	return snapshot, nil
}

// CanUseFeature evaluates the gating rules without mutating anything.
func (s *Service) CanUseFeature(ctx context.Context, req domain.FeatureRequest) (domain.Decision, error) {
	if !req.Feature.IsValid() {
		s.recordDecision(req.Feature, domain.Decision{Reason: domain.ReasonUnknownFeature})
		return domain.Decision{Reason: domain.ReasonUnknownFeature}, nil
	}

	snapshot, err := s.GetEntitlements(ctx, req.UserID, req.DeviceFingerprint)
	if err != nil {
		return domain.Decision{}, err
	}

	decision := domain.Decide(snapshot, req.Feature, req.ReportType)
	s.recordDecision(req.Feature, decision)
	return decision, nil
}

func (s *Service) recordDecision(feature domain.Feature, decision domain.Decision) {
	s.metrics.Counter(observability.MetricEntitlementDecisions, 1,
		observability.T("feature", string(feature)),
		observability.T("allowed", strconv.FormatBool(decision.Allowed)),
	)
}

// ConsumeFeature debits at most one balance for req. It re-reads state rather
// than trusting an earlier CanUseFeature, so two racing callers can never both
// spend the last unit. False means nothing was debited and access is denied.
func (s *Service) ConsumeFeature(ctx context.Context, req domain.FeatureRequest) (bool, error) {
	timer := observability.StartTimer("consume_feature").
		WithMetrics(s.metrics).
		WithTags(observability.T("feature", string(req.Feature)))

	bucket, err := s.consume(ctx, req)
	timer.StopWithError(err)
	if err != nil {
		return false, err
	}

	if bucket == "" {
		s.metrics.Counter(observability.MetricEntitlementDenials, 1, observability.T("feature", string(req.Feature)))
		return false, nil
	}

	s.metrics.Counter(observability.MetricEntitlementDebits, 1,
		observability.T("feature", string(req.Feature)),
		observability.T("bucket", string(bucket)),
	)
	s.recordConsumed(ctx, req, bucket)
	return true, nil
}

// consume returns the bucket that was debited, or "" when access is denied.
func (s *Service) consume(ctx context.Context, req domain.FeatureRequest) (domain.Bucket, error) {
	if !req.Feature.IsValid() {
		return "", nil
	}

	if req.UserID != "" {
		sub, err := s.subs.GetSubscription(ctx, req.UserID)
		if err != nil {
			return "", fmt.Errorf("get subscription: %w", err)
		}
		if sub.IsActive() {
			return s.consumeAsSubscriber(ctx, req)
		}

		if req.Feature == domain.FeatureReport {
			return s.consumeOwnedReport(ctx, req)
		}

		bucket, err := s.consumeCredit(ctx, req)
		if err != nil || bucket != "" {
			return bucket, err
		}
	}

	if _, ok := req.Feature.FreeCounter(); ok && req.DeviceFingerprint != "" {
		ok, err := s.consumeFreeUsage(ctx, req.DeviceFingerprint, req.Feature, req.ClientIP)
		if err != nil {
			return "", err
		}
		if ok {
			return domain.BucketFree, nil
		}
	}

	return "", nil
}

func (s *Service) consumeAsSubscriber(ctx context.Context, req domain.FeatureRequest) (domain.Bucket, error) {
	switch req.Feature {
	case domain.FeatureSynastry:
		ok, err := s.subs.UseSynastryRead(ctx, req.UserID, s.limits.MonthlySynastryAllowance)
		if err != nil {
			return "", fmt.Errorf("use synastry read: %w", err)
		}
		if ok {
			return domain.BucketSubscription, nil
		}
		// Allowance spent this period: fall back to a purchased reading.
		return s.consumeCredit(ctx, req)

	case domain.FeatureReport:
		bucket, err := s.consumeOwnedReport(ctx, req)
		if err != nil || bucket != "" {
			return bucket, err
		}
		if req.ReportType != domain.MonthlyReport {
			return "", nil
		}
		ok, err := s.subs.ClaimMonthlyReport(ctx, req.UserID)
		if err != nil {
			return "", fmt.Errorf("claim monthly report: %w", err)
		}
		if ok {
			return domain.BucketSubscription, nil
		}
		return "", nil

	default:
		return domain.BucketSubscription, nil
	}
}

// consumeOwnedReport grants a report the user bought. Nothing is debited.
func (s *Service) consumeOwnedReport(ctx context.Context, req domain.FeatureRequest) (domain.Bucket, error) {
	if req.ReportType == "" {
		return "", nil
	}
	reports, err := s.subs.PurchasedReportTypes(ctx, req.UserID)
	if err != nil {
		return "", fmt.Errorf("get purchased reports: %w", err)
	}
	for _, r := range reports {
		if r == req.ReportType {
			return domain.BucketOwned, nil
		}
	}
	return "", nil
}

// consumeCredit debits the feature's credit product when the user holds any.
// A lost race leaves the bucket empty so the caller can fall through.
func (s *Service) consumeCredit(ctx context.Context, req domain.FeatureRequest) (domain.Bucket, error) {
	product, ok := req.Feature.ProductType()
	if !ok {
		return "", nil
	}

	available, err := s.subs.GetAvailableCredits(ctx, req.UserID, product)
	if err != nil {
		return "", fmt.Errorf("get available credits: %w", err)
	}
	if available <= 0 {
		return "", nil
	}

	consumed, err := s.subs.ConsumeCredit(ctx, req.UserID, product)
	if err != nil {
		return "", fmt.Errorf("consume credit: %w", err)
	}
	if !consumed {
		s.logger.Debug("credit debit lost a race", "user_id", req.UserID, "product", product)
		return "", nil
	}
	return domain.BucketCredit, nil
}

// recordConsumed writes a FeatureConsumed message. Failures are logged only:
// the debit already happened and must not be reported as denied.
func (s *Service) recordConsumed(ctx context.Context, req domain.FeatureRequest, bucket domain.Bucket) {
	if s.outbox == nil {
		return
	}

	event := domain.NewFeatureConsumed(req.UserID, req.DeviceFingerprint, req.Feature, req.ReportType, bucket)
	sharedApplication.ApplyEventMetadata(
		[]sharedDomain.DomainEvent{event},
		sharedApplication.EventMetadataFromContext(ctx, req.UserID),
	)

	msg, err := outbox.NewMessage(event)
	if err == nil {
		err = s.outbox.Save(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("failed to record consumption event",
			"feature", req.Feature,
			"bucket", bucket,
			"user_id", req.UserID,
			"error", err,
		)
	}
}

var _ domain.EntitlementService = (*Service)(nil)
