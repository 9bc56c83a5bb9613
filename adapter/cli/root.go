package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cosmiq-app/cosmiq/pkg/observability"
)

var (
	verbose bool
	logger  = slog.Default()
)

type startedAtKey struct{}

var rootCmd = &cobra.Command{
	Use:   "cosmiq",
	Short: "Entitlements and credits for the astrology app",
	Long: `cosmiq decides which paid features a caller may use and debits
the right balance: the subscription, purchased credits or the
device free tier.

It serves the entitlement API, inspects and consumes entitlements
and administers subscriptions and credits.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if verbose {
			cfg := observability.LogConfigFromEnv(os.Getenv)
			cfg.Level = slog.LevelDebug
			logger = observability.NewLogger(cfg)
		}
		// Each invocation is one correlation scope.
		ctx := observability.NewRequestContext(cmd.Context(), "")
		ctx = context.WithValue(ctx, startedAtKey{}, time.Now())
		cmd.SetContext(ctx)
		logger.DebugContext(ctx, "command started", "command", cmd.CommandPath())
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		started, ok := ctx.Value(startedAtKey{}).(time.Time)
		if !ok {
			return
		}
		logger.DebugContext(ctx, "command finished",
			"command", cmd.CommandPath(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

// Execute runs the root command with a background context.
func Execute() {
	ExecuteContext(context.Background())
}

// ExecuteContext runs the root command, exiting non-zero on error.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// AddCommand registers a subcommand.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// SetLogger replaces the CLI logger. nil is ignored.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}
