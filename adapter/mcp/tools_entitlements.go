package mcp

import (
	"context"
	"errors"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/felixgeelhaar/mcp-go"
)

type entitlementsInput struct {
	UserID            string `json:"user_id,omitempty" jsonschema:"description=Signed-in user id; empty for an anonymous caller"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty" jsonschema:"description=Device fingerprint for the free tier"`
}

type featureInput struct {
	Feature           string `json:"feature" jsonschema:"required,description=ask, detail, synastry, cbt_analysis, daily_detail or report"`
	UserID            string `json:"user_id,omitempty"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
	ReportType        string `json:"report_type,omitempty" jsonschema:"description=Report type for the report feature"`
	ClientIP          string `json:"client_ip,omitempty"`
}

type featureOutput struct {
	Feature  domain.Feature `json:"feature"`
	Allowed  bool           `json:"allowed"`
	Consumed bool           `json:"consumed,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Retry    bool           `json:"retry,omitempty"`
}

func registerEntitlementTools(srv *mcp.Server, deps ToolDependencies) {
	app := deps.App

	srv.Tool("entitlements.get").
		Description("Get the entitlement snapshot for a user or anonymous device").
		Handler(func(ctx context.Context, input entitlementsInput) (domain.Entitlements, error) {
			return getEntitlements(ctx, app, input)
		})

	srv.Tool("entitlements.check").
		Description("Check whether a feature may be used, without debiting anything").
		Handler(func(ctx context.Context, input featureInput) (featureOutput, error) {
			return checkFeature(ctx, app, input)
		})

	srv.Tool("entitlements.consume").
		Description("Use a feature, debiting the subscription, a credit or the free tier").
		Handler(func(ctx context.Context, input featureInput) (featureOutput, error) {
			return consumeFeature(ctx, app, input)
		})
}

func getEntitlements(ctx context.Context, app *cli.App, input entitlementsInput) (domain.Entitlements, error) {
	if app == nil || app.Entitlements == nil {
		return domain.Entitlements{}, cli.ErrAppNotInitialized
	}
	return app.Entitlements.GetEntitlements(ctx, input.UserID, input.DeviceFingerprint)
}

func checkFeature(ctx context.Context, app *cli.App, input featureInput) (featureOutput, error) {
	if app == nil || app.Entitlements == nil {
		return featureOutput{}, cli.ErrAppNotInitialized
	}
	req, err := input.request()
	if err != nil {
		return featureOutput{}, err
	}
	decision, err := app.Entitlements.CanUseFeature(ctx, req)
	if err != nil {
		return featureOutput{}, err
	}
	return featureOutput{Feature: req.Feature, Allowed: decision.Allowed, Reason: decision.Reason}, nil
}

func consumeFeature(ctx context.Context, app *cli.App, input featureInput) (featureOutput, error) {
	if app == nil || app.Entitlements == nil {
		return featureOutput{}, cli.ErrAppNotInitialized
	}
	req, err := input.request()
	if err != nil {
		return featureOutput{}, err
	}
	ok, err := app.Entitlements.ConsumeFeature(ctx, req)
	if err != nil {
		return featureOutput{}, err
	}
	if ok {
		return featureOutput{Feature: req.Feature, Allowed: true, Consumed: true}, nil
	}

	decision, err := app.Entitlements.CanUseFeature(ctx, req)
	if err != nil {
		return featureOutput{}, err
	}
	decision, raced := domain.ExplainFailedConsume(req, decision)
	if raced {
		return featureOutput{Feature: req.Feature, Allowed: true, Reason: "balance changed concurrently", Retry: true}, nil
	}
	return featureOutput{Feature: req.Feature, Reason: decision.Reason}, nil
}

func (in featureInput) request() (domain.FeatureRequest, error) {
	if in.Feature == "" {
		return domain.FeatureRequest{}, errors.New("feature is required")
	}
	feature, err := domain.ParseFeature(in.Feature)
	if err != nil {
		return domain.FeatureRequest{}, err
	}
	return domain.FeatureRequest{
		UserID:            in.UserID,
		Feature:           feature,
		DeviceFingerprint: in.DeviceFingerprint,
		ReportType:        in.ReportType,
		ClientIP:          in.ClientIP,
	}, nil
}
