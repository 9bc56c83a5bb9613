// Package observability provides structured logging, metrics and health checks
// shared by the cosmiq binaries.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// LogConfig configures NewLogger.
type LogConfig struct {
	Level     slog.Level
	Format    LogFormat
	Output    io.Writer
	AddSource bool
	Service   string
	Version   string
}

// LogConfigFromEnv reads the logging environment:
// APP_ENV=production switches to JSON on stdout with source locations,
// LOG_LEVEL and LOG_FORMAT override level and format, APP_VERSION tags every entry.
func LogConfigFromEnv(getenv func(string) string) LogConfig {
	cfg := LogConfig{
		Level:   slog.LevelInfo,
		Format:  LogFormatText,
		Output:  os.Stderr,
		Service: "cosmiq",
		Version: "dev",
	}
	if getenv("APP_ENV") == "production" {
		cfg.Format = LogFormatJSON
		cfg.Output = os.Stdout
		cfg.AddSource = true
	}
	if level := getenv("LOG_LEVEL"); level != "" {
		cfg.Level = ParseLevel(level)
	}
	if format := getenv("LOG_FORMAT"); format != "" {
		cfg.Format = LogFormat(strings.ToLower(format))
	}
	if version := getenv("APP_VERSION"); version != "" {
		cfg.Version = version
	}
	return cfg
}

// LoggerFromEnv builds the process logger from the environment.
func LoggerFromEnv() *slog.Logger {
	return NewLogger(LogConfigFromEnv(os.Getenv))
}

// NewLogger creates a logger that tags entries with the service and the
// request-scoped ids found in the context.
func NewLogger(cfg LogConfig) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == LogFormatJSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	var attrs []slog.Attr
	if cfg.Service != "" {
		attrs = append(attrs, slog.String("service", cfg.Service))
	}
	if cfg.Version != "" {
		attrs = append(attrs, slog.String("version", cfg.Version))
	}
	return slog.New(contextHandler{Handler: handler.WithAttrs(attrs)})
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// contextHandler copies correlation, request and user ids from the context onto each record.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	for key, value := range map[string]string{
		CorrelationIDKey: CorrelationIDFromContext(ctx),
		RequestIDKey:     RequestIDFromContext(ctx),
		UserIDKey:        UserIDFromContext(ctx),
	} {
		if value != "" {
			r.AddAttrs(slog.String(key, value))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}
