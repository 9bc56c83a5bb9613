package mcp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	internalApp "github.com/cosmiq-app/cosmiq/internal/app"
	"github.com/cosmiq-app/cosmiq/internal/billing/application"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *cli.App {
	t.Helper()
	container := internalApp.NewInMemoryContainer(nil, nil)
	t.Cleanup(container.Close)
	return cli.FromContainer(container, "operator")
}

func TestRegisterCLITools_ListTools(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "test",
		Version: "1.0.0",
		Capabilities: mcp.Capabilities{
			Tools: true,
		},
	})

	require.NoError(t, RegisterCLITools(srv, ToolDependencies{App: newTestApp(t)}))

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)

	names := make(map[any]bool, len(tools))
	for _, tool := range tools {
		names[tool["name"]] = true
	}
	for _, name := range []string{
		"cli.health",
		"entitlements.get", "entitlements.check", "entitlements.consume",
		"billing.status", "billing.subscribe", "billing.grant", "billing.refund",
	} {
		assert.True(t, names[name], "%s should be registered", name)
	}
}

func TestRegisterCLITools_RequiresApp(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{Name: "test", Version: "1.0.0"})
	assert.Error(t, RegisterCLITools(srv, ToolDependencies{}))
	assert.Error(t, RegisterCLITools(nil, ToolDependencies{App: &cli.App{}}))
}

func TestHealth(t *testing.T) {
	assert.Equal(t, "store-backed", health(newTestApp(t)).Entitlements)

	failOpen := cli.NewApp(application.NewFailOpenService(domain.DefaultLimits(), nil, nil), nil, nil, nil, nil)
	assert.Equal(t, "fail-open", health(failOpen).Entitlements)
}

func TestConsumeFeature_FreeTier(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	input := featureInput{Feature: "detail", DeviceFingerprint: "fp-mcp"}

	for i := 0; i < domain.DefaultLimits().FreeDetail; i++ {
		out, err := consumeFeature(ctx, app, input)
		require.NoError(t, err)
		assert.True(t, out.Consumed)
	}

	out, err := consumeFeature(ctx, app, input)
	require.NoError(t, err)
	assert.False(t, out.Allowed)
	assert.False(t, out.Retry)
	assert.NotEmpty(t, out.Reason)

	snapshot, err := getEntitlements(ctx, app, entitlementsInput{DeviceFingerprint: "fp-mcp"})
	require.NoError(t, err)
	assert.Equal(t, "0", snapshot.FreeDetailLeft.String())
}

func TestConsumeFeature_AnonymousWithoutDevice(t *testing.T) {
	out, err := consumeFeature(context.Background(), newTestApp(t), featureInput{Feature: "ask"})
	require.NoError(t, err)
	assert.False(t, out.Allowed)
	assert.Equal(t, domain.ReasonDeviceRequired, out.Reason)
}

func TestCheckFeature_UnknownFeature(t *testing.T) {
	app := newTestApp(t)

	_, err := checkFeature(context.Background(), app, featureInput{Feature: "tarot"})
	assert.ErrorIs(t, err, domain.ErrUnknownFeature)

	_, err = checkFeature(context.Background(), app, featureInput{})
	assert.Error(t, err)

	_, err = checkFeature(context.Background(), nil, featureInput{Feature: "ask"})
	assert.ErrorIs(t, err, cli.ErrAppNotInitialized)
}

func TestBillingTools_GrantConsumeRefund(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)

	grant, err := billingGrant(ctx, app, billingGrantInput{UserID: "user-9", ProductType: "cbt_analysis", Quantity: 2})
	require.NoError(t, err)

	out, err := consumeFeature(ctx, app, featureInput{Feature: "cbt_analysis", UserID: "user-9"})
	require.NoError(t, err)
	assert.True(t, out.Consumed)

	status, err := billingStatus(ctx, app, billingUserInput{UserID: "user-9"})
	require.NoError(t, err)
	assert.Equal(t, 1, status.Credits[domain.ProductCBTAnalysis])

	require.NoError(t, billingRefund(ctx, app, billingRefundInput{UserID: "user-9", PurchaseID: grant.PurchaseID.String()}))

	check, err := checkFeature(ctx, app, featureInput{Feature: "cbt_analysis", UserID: "user-9"})
	require.NoError(t, err)
	assert.False(t, check.Allowed)
}

func TestBillingGrant_DefaultsToOperatorAndOneUnit(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)

	_, err := billingGrant(ctx, app, billingGrantInput{ProductType: "ask"})
	require.NoError(t, err)

	status, err := billingStatus(ctx, app, billingUserInput{})
	require.NoError(t, err)
	assert.Equal(t, "operator", status.UserID)
	assert.Equal(t, 1, status.Credits[domain.ProductAsk])
}

func TestBillingSubscribe(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	out, err := billingSubscribe(ctx, app, billingSubscribeInput{UserID: "user-3"}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), out.PeriodStart)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), out.PeriodEnd)

	snapshot, err := getEntitlements(ctx, app, entitlementsInput{UserID: "user-3"})
	require.NoError(t, err)
	assert.True(t, snapshot.IsSubscriber)

	out, err = billingSubscribe(ctx, app, billingSubscribeInput{UserID: "user-3", PeriodStart: "2026-11-01"}, now)
	require.NoError(t, err)
	assert.True(t, out.UsageReset)
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), out.PeriodEnd)

	_, err = billingSubscribe(ctx, app, billingSubscribeInput{UserID: "user-3", PeriodStart: "soon"}, now)
	assert.ErrorContains(t, err, "period_start")
}

func TestBillingTools_RequireAdmin(t *testing.T) {
	failOpen := cli.NewApp(application.NewFailOpenService(domain.DefaultLimits(), nil, nil), nil, nil, nil, nil)

	_, err := billingStatus(context.Background(), failOpen, billingUserInput{UserID: "u"})
	assert.ErrorIs(t, err, cli.ErrAdminUnavailable)

	err = billingRefund(context.Background(), newTestApp(t), billingRefundInput{UserID: "u", PurchaseID: "nope"})
	assert.ErrorContains(t, err, "invalid purchase_id")
}

func TestCatalog(t *testing.T) {
	entries := catalog()
	require.Len(t, entries, len(domain.Features))

	byFeature := make(map[domain.Feature]catalogEntry)
	for _, e := range entries {
		byFeature[e.Feature] = e
	}
	assert.Equal(t, domain.ProductDetailPack, byFeature[domain.FeatureDetail].Credit)
	assert.Equal(t, domain.CounterAsk, byFeature[domain.FeatureAsk].FreeCounter)
	assert.Empty(t, byFeature[domain.FeatureDailyDetail].Credit)
}

func TestMissingCreditsPrompt(t *testing.T) {
	result := missingCreditsPrompt("user-1", "synastry")
	require.Len(t, result.Messages, 1)
	text := fmt.Sprintf("%v", result.Messages[0].Content)
	assert.Contains(t, text, "user-1")
	assert.Contains(t, text, "synastry")
}
