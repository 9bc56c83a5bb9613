// Package server holds the commands that run the entitlement API and manage its schema.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cosmiq-app/cosmiq/adapter/api"
	"github.com/cosmiq-app/cosmiq/internal/app"
	"github.com/cosmiq-app/cosmiq/pkg/config"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	addr       string
	withOutbox bool
)

// Cmd runs the entitlement HTTP API.
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the entitlement HTTP API",
	Long: `Serve the entitlement API with /healthz, /readyz and /metrics.

Without DATABASE_URL every feature is allowed and nothing is persisted.
Pass --with-outbox (or OUTBOX_PROCESSOR_ENABLED=true) to publish events
from this process instead of a separate worker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := observability.LoggerFromEnv()

		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer container.Close()

		listenAddr := cfg.HTTPAddr
		if addr != "" {
			listenAddr = addr
		}
		listener, err := net.Listen("tcp", listenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
		}

		return Run(ctx, container, listener, withOutbox || cfg.OutboxProcessorEnabled, cmd.OutOrStdout())
	},
}

// Run serves the API on listener until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, container *app.Container, listener net.Listener, startOutbox bool, out io.Writer) error {
	logger := container.Logger

	if startOutbox && container.OutboxProcessor != nil {
		if err := container.OutboxProcessor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start outbox processor: %w", err)
		}
		defer container.OutboxProcessor.Stop()
	}

	srv := api.NewHTTPServer(listener.Addr().String(), api.NewRouter(api.RouterOptions{
		Entitlements: api.NewEntitlementHandler(container.Entitlements, logger),
		Health:       container.Health,
		Metrics:      container.Metrics.Handler(),
		Logger:       logger,
	}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	logger.Info("entitlement API listening", "addr", listener.Addr().String())
	fmt.Fprintf(out, "Entitlement API listening on %s\n", listener.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown error", "error", err)
		return err
	}
	logger.Info("API server stopped")
	return nil
}

func init() {
	Cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	Cmd.Flags().BoolVar(&withOutbox, "with-outbox", false, "run the outbox processor in this process")
}
