// Package mcp holds the command that serves the entitlement tools over MCP.
package mcp

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/cosmiq-app/cosmiq/internal/mcp"
	"github.com/cosmiq-app/cosmiq/pkg/config"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
)

// Cmd groups the MCP subcommands.
var Cmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose entitlements and billing to MCP clients",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP tools on MCP_ADDR",
	Long: `Serve the entitlement and billing tools over streamable HTTP on MCP_ADDR.
Set MCP_AUTH_TOKEN to require a bearer token. Billing tools need DATABASE_URL.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logCfg := observability.LogConfigFromEnv(os.Getenv)
		if cfg.IsDevelopment() && os.Getenv("LOG_LEVEL") == "" {
			logCfg.Level = slog.LevelDebug
		}
		logCfg.Output = cmd.ErrOrStderr()
		return mcpserver.Run(cmd.Context(), cfg, observability.NewLogger(logCfg))
	},
}

func init() {
	Cmd.AddCommand(serveCmd)
}
