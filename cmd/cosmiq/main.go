// Command cosmiq is the operator CLI: it serves the entitlement API and administers billing.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	cliBilling "github.com/cosmiq-app/cosmiq/adapter/cli/billing"
	cliEntitlements "github.com/cosmiq-app/cosmiq/adapter/cli/entitlements"
	"github.com/cosmiq-app/cosmiq/adapter/cli/mcp"
	"github.com/cosmiq-app/cosmiq/adapter/cli/server"
	"github.com/cosmiq-app/cosmiq/internal/app"
	"github.com/cosmiq-app/cosmiq/pkg/config"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.LoggerFromEnv()
	cli.SetLogger(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// serve, migrate and mcp serve build their own container; the rest share this one.
	container, err := app.NewContainer(ctx, cfg, logger)
	switch {
	case err == nil:
		defer container.Close()
		cli.SetApp(cli.FromContainer(container, cfg.UserID))
	case cfg.IsDevelopment():
		logger.Warn("container unavailable, only serve, migrate and mcp will work", "error", err)
	default:
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}

	for _, cmd := range []*cobra.Command{cliEntitlements.Cmd, cliBilling.Cmd, server.Cmd, server.MigrateCmd, mcp.Cmd} {
		cli.AddCommand(cmd)
	}
	cli.ExecuteContext(ctx)
}
