// Package mcp exposes the entitlement and billing operations as MCP tools over HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	mcptools "github.com/cosmiq-app/cosmiq/adapter/mcp"
	"github.com/cosmiq-app/cosmiq/internal/app"
	"github.com/cosmiq-app/cosmiq/pkg/config"
)

// ServerName identifies this server to MCP clients.
const ServerName = "cosmiq"

// Run builds a container from cfg and serves MCP on cfg.MCPAddr until ctx ends.
// A canceled context is a clean shutdown and returns nil.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize container: %w", err)
	}
	defer container.Close()

	err = Serve(ctx, cfg, cli.FromContainer(container, cfg.UserID), logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Serve blocks serving the tools backed by cliApp. With MCPAuthToken set every
// request must carry it as a bearer token.
func Serve(ctx context.Context, cfg *config.Config, cliApp *cli.App, logger *slog.Logger) error {
	switch {
	case cfg == nil:
		return errors.New("config is required")
	case cliApp == nil:
		return errors.New("CLI app is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")

	srv, err := NewServer(cliApp, logger)
	if err != nil {
		return err
	}

	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil,
		mcpgo.WithMiddleware(middlewareStack(cfg.MCPAuthToken, logger)...))
}

func middlewareStack(token string, logger *slog.Logger) []middleware.Middleware {
	bridge := slogBridge{logger}
	stack := middleware.DefaultStack(bridge)
	if token == "" {
		logger.Warn("MCP_AUTH_TOKEN not set, tools are callable without credentials")
		return stack
	}

	auth := middleware.BearerTokenAuthenticator(middleware.StaticTokens(map[string]*middleware.Identity{
		token: {ID: "operator", Name: "operator"},
	}))
	return append([]middleware.Middleware{middleware.Auth(auth, middleware.WithAuthLogger(bridge))}, stack...)
}

// NewServer registers the tools, resources and prompts on a fresh MCP server.
// Tools are required; resources and prompts are best-effort.
func NewServer(cliApp *cli.App, logger *slog.Logger) (*mcpgo.Server, error) {
	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:    ServerName,
		Version: cli.Version,
		Capabilities: mcpgo.Capabilities{
			Tools:     true,
			Resources: true,
			Prompts:   true,
		},
	})

	deps := mcptools.ToolDependencies{App: cliApp}
	if err := mcptools.RegisterCLITools(srv, deps); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	if err := mcptools.RegisterResources(srv, deps); err != nil {
		logger.Warn("skipping MCP resources", "error", err)
	}
	if err := mcptools.RegisterPrompts(srv, deps); err != nil {
		logger.Warn("skipping MCP prompts", "error", err)
	}
	return srv, nil
}

// slogBridge satisfies the mcp-go middleware logger.
type slogBridge struct{ *slog.Logger }

func (b slogBridge) Debug(msg string, fields ...middleware.Field) {
	b.Logger.Debug(msg, args(fields)...)
}

func (b slogBridge) Info(msg string, fields ...middleware.Field) {
	b.Logger.Info(msg, args(fields)...)
}

func (b slogBridge) Warn(msg string, fields ...middleware.Field) {
	b.Logger.Warn(msg, args(fields)...)
}

func (b slogBridge) Error(msg string, fields ...middleware.Field) {
	b.Logger.Error(msg, args(fields)...)
}

func args(fields []middleware.Field) []any {
	out := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}
