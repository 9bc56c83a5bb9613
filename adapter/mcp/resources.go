package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cosmiq-app/cosmiq/internal/billing/application/queries"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/felixgeelhaar/mcp-go"
)

// RegisterResources registers MCP resources for the configured operator subject.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}
	app := deps.App

	srv.Resource("cosmiq://catalog").
		Name("Catalog").
		Description("Gated features and how each is paid for").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			return jsonResource(uri, catalog())
		})

	srv.Resource("cosmiq://entitlements").
		Name("Entitlements").
		Description("Entitlement snapshot of the operator subject").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil || app.Entitlements == nil {
				return nil, fmt.Errorf("entitlements require initialization")
			}
			snapshot, err := app.Entitlements.GetEntitlements(ctx, app.CurrentUserID, "")
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, snapshot)
		})

	srv.Resource("cosmiq://billing/status").
		Name("Billing Status").
		Description("Subscription, purchases and credit balances of the operator subject").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil || !app.HasAdmin() {
				return nil, fmt.Errorf("billing status requires database connection")
			}
			status, err := app.BillingStatusHandler.Handle(ctx, queries.GetBillingStatusQuery{UserID: app.CurrentUserID})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, status)
		})

	return nil
}

type catalogEntry struct {
	Feature     domain.Feature     `json:"feature"`
	Credit      domain.ProductType `json:"credit_product,omitempty"`
	FreeCounter domain.FreeCounter `json:"free_counter,omitempty"`
}

func catalog() []catalogEntry {
	entries := make([]catalogEntry, 0, len(domain.Features))
	for _, f := range domain.Features {
		entry := catalogEntry{Feature: f}
		if product, ok := f.ProductType(); ok {
			entry.Credit = product
		}
		if counter, ok := f.FreeCounter(); ok {
			entry.FreeCounter = counter
		}
		entries = append(entries, entry)
	}
	return entries
}

func jsonResource(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}
