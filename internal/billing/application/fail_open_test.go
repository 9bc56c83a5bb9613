package application_test

import (
	"context"
	"testing"

	"github.com/cosmiq-app/cosmiq/internal/billing/application"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailOpenService(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewInMemoryMetrics()
	svc := application.NewFailOpenService(domain.DefaultLimits(), nil, metrics)

	snapshot, err := svc.GetEntitlements(ctx, "user-1", "fp-1")
	require.NoError(t, err)
	assert.True(t, snapshot.IsLoggedIn)
	assert.False(t, snapshot.IsSubscriber)
	assert.Equal(t, domain.Quota(3), snapshot.FreeAskLeft)

	decision, err := svc.CanUseFeature(ctx, domain.FeatureRequest{Feature: domain.FeatureDailyDetail})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonDailyDetailSubscriber, decision.Reason)

	for i := 0; i < 10; i++ {
		ok, err := svc.ConsumeFeature(ctx, domain.FeatureRequest{Feature: domain.FeatureAsk})
		require.NoError(t, err)
		assert.True(t, ok)
	}

	again, err := svc.GetEntitlements(ctx, "user-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, snapshot, again, "consumption never writes")
	assert.Equal(t, int64(10), metrics.GetCounter(observability.MetricEntitlementDebits,
		observability.T("feature", "ask"), observability.T("bucket", "noop")))
}
