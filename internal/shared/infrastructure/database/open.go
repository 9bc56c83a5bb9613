package database

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Config selects and sizes the backend.
type Config struct {
	// Driver overrides detection from URL.
	Driver Driver
	// URL is the DATABASE_URL: a PostgreSQL connection string or a SQLite location.
	URL string
	// MaxConns caps the PostgreSQL pool. SQLite always uses a single connection.
	MaxConns int
}

// Opener creates a connection for one driver.
type Opener func(ctx context.Context, cfg Config) (Connection, error)

var (
	openersMu sync.RWMutex
	openers   = map[Driver]Opener{}
)

// Register makes a driver available to Open. Driver packages call it from init,
// so binaries choose backends with blank imports.
func Register(driver Driver, open Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[driver] = open
}

// NewConnection opens the backend named by cfg.Driver, or detected from cfg.URL.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DetectDriver(cfg.URL)
	}

	openersMu.RLock()
	open, ok := openers[driver]
	openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("database driver %q not registered", driver)
	}
	return open(ctx, cfg)
}

// SQLitePath strips the sqlite:// or file: scheme from a SQLite URL.
func SQLitePath(url string) string {
	for _, scheme := range []string{"sqlite://", "sqlite:", "file:"} {
		if strings.HasPrefix(url, scheme) {
			return strings.TrimPrefix(url, scheme)
		}
	}
	return url
}
