package application

import (
	"context"
	"log/slog"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
)

// FailOpenService runs when no storage backend is configured. Every caller
// sees the free-tier baseline and every consumption is granted without a write.
type FailOpenService struct {
	limits  domain.Limits
	metrics observability.Metrics
}

// NewFailOpenService creates the fail-open service and logs that gating is off.
func NewFailOpenService(limits domain.Limits, logger *slog.Logger, metrics observability.Metrics) *FailOpenService {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	logger.Warn("entitlement storage not configured, running fail-open: all consumption is granted")
	return &FailOpenService{limits: limits, metrics: metrics}
}

// GetEntitlements returns the baseline snapshot.
func (s *FailOpenService) GetEntitlements(ctx context.Context, userID, fingerprint string) (domain.Entitlements, error) {
	snapshot := domain.BaselineEntitlements(s.limits)
	snapshot.IsLoggedIn = userID != ""
	return snapshot, nil
}

// CanUseFeature decides against the baseline snapshot.
func (s *FailOpenService) CanUseFeature(ctx context.Context, req domain.FeatureRequest) (domain.Decision, error) {
	snapshot, _ := s.GetEntitlements(ctx, req.UserID, req.DeviceFingerprint)
	return domain.Decide(snapshot, req.Feature, req.ReportType), nil
}

// ConsumeFeature always grants.
func (s *FailOpenService) ConsumeFeature(ctx context.Context, req domain.FeatureRequest) (bool, error) {
	s.metrics.Counter(observability.MetricEntitlementDebits, 1,
		observability.T("feature", string(req.Feature)),
		observability.T("bucket", string(domain.BucketNoop)),
	)
	return true, nil
}

var _ domain.EntitlementService = (*FailOpenService)(nil)
