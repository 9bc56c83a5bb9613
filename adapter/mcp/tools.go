// Package mcp exposes the entitlement and billing operations as MCP tools.
package mcp

import (
	"context"
	"errors"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	"github.com/felixgeelhaar/mcp-go"
)

// ToolDependencies provides handlers and context for MCP tools.
type ToolDependencies struct {
	App *cli.App
}

// RegisterCLITools registers MCP tools that mirror CLI functionality.
func RegisterCLITools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil {
		return errors.New("app is required")
	}

	registerCoreTools(srv, deps)
	registerEntitlementTools(srv, deps)
	registerBillingTools(srv, deps)

	return nil
}

type healthOutput struct {
	Status       string `json:"status"`
	Entitlements string `json:"entitlements"`
}

func registerCoreTools(srv *mcp.Server, deps ToolDependencies) {
	app := deps.App

	srv.Tool("cli.health").
		Description("Check wiring health and whether entitlements are store-backed").
		Handler(func(ctx context.Context, input struct{}) (healthOutput, error) {
			return health(app), nil
		})
}

func health(app *cli.App) healthOutput {
	out := healthOutput{Status: "ok", Entitlements: "store-backed"}
	if !app.HasAdmin() {
		out.Entitlements = "fail-open"
	}
	return out
}
