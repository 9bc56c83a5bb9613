// Package postgres registers the pgx-backed PostgreSQL backend used in production.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database"
)

// applicationName tags sessions in pg_stat_activity unless the URL sets one.
const applicationName = "cosmiq"

func init() {
	database.Register(database.DriverPostgres, NewConnection)
}

// Connection is a pgx pool.
type Connection struct {
	querier
	pool *pgxpool.Pool
}

// NewConnection creates a pool for cfg.URL. The pool connects lazily; callers Ping to verify.
func NewConnection(ctx context.Context, cfg database.Config) (database.Connection, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(min(cfg.MaxConns, 1<<15))
	}
	poolConfig.HealthCheckPeriod = 30 * time.Second
	if _, ok := poolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Connection{querier: querier{pool}, pool: pool}, nil
}

func (c *Connection) Driver() database.Driver        { return database.DriverPostgres }
func (c *Connection) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *Connection) Close() error {
	c.pool.Close()
	return nil
}

// BeginTx starts a read-committed transaction; guarded updates take row locks.
func (c *Connection) BeginTx(ctx context.Context) (database.Transaction, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &transaction{querier: querier{tx}, tx: tx}, nil
}

type transaction struct {
	querier
	tx pgx.Tx
}

func (t *transaction) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *transaction) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// pgxRunner is the part of *pgxpool.Pool and pgx.Tx the executor needs.
type pgxRunner interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// querier adapts pgx to database.Executor.
type querier struct {
	run pgxRunner
}

func (q querier) Exec(ctx context.Context, query string, args ...any) (database.Result, error) {
	tag, err := q.run.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return commandTag{tag}, nil
}

func (q querier) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return q.run.QueryRow(ctx, query, args...)
}

func (q querier) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := q.run.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return cursor{rows}, nil
}

type commandTag struct {
	tag pgconn.CommandTag
}

func (r commandTag) RowsAffected() (int64, error) { return r.tag.RowsAffected(), nil }

// cursor adapts pgx.Rows, whose Close returns nothing.
type cursor struct {
	pgx.Rows
}

func (c cursor) Close() error {
	c.Rows.Close()
	return nil
}
