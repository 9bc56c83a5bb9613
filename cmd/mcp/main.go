// Command mcp serves the cosmiq entitlement and billing tools to MCP clients.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cosmiq-app/cosmiq/internal/mcp"
	"github.com/cosmiq-app/cosmiq/pkg/config"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.LoggerFromEnv()
	cfg, err := config.Load()
	if err == nil {
		err = mcp.Run(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("mcp server exited", "error", err)
		os.Exit(1)
	}
}
