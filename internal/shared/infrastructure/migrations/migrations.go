package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database"
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// execer runs one migration script.
type execer func(ctx context.Context, query string) error

// RunSQLiteMigrations executes all SQLite migrations in order.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB) error {
	return run(ctx, sqliteFS, "sqlite", func(ctx context.Context, query string) error {
		_, err := db.ExecContext(ctx, query)
		return err
	})
}

// Run executes the migrations matching the connection's driver.
func Run(ctx context.Context, conn database.Connection) error {
	exec := func(ctx context.Context, query string) error {
		_, err := conn.Exec(ctx, query)
		return err
	}
	switch conn.Driver() {
	case database.DriverPostgres:
		return run(ctx, postgresFS, "postgres", exec)
	case database.DriverSQLite:
		return run(ctx, sqliteFS, "sqlite", exec)
	default:
		return fmt.Errorf("no migrations for driver %s", conn.Driver())
	}
}

// Files lists the up migrations for a driver in execution order.
func Files(driver database.Driver) ([]string, error) {
	switch driver {
	case database.DriverPostgres:
		return upFiles(postgresFS, "postgres")
	case database.DriverSQLite:
		return upFiles(sqliteFS, "sqlite")
	default:
		return nil, fmt.Errorf("no migrations for driver %s", driver)
	}
}

func run(ctx context.Context, fsys embed.FS, dir string, exec execer) error {
	files, err := upFiles(fsys, dir)
	if err != nil {
		return err
	}

	for _, file := range files {
		migration, err := fsys.ReadFile(dir + "/" + file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		// CREATE ... IF NOT EXISTS keeps reruns idempotent
		if err := exec(ctx, string(migration)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", file, err)
		}
	}

	return nil
}

func upFiles(fsys fs.ReadDirFS, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
