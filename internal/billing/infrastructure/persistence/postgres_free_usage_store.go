package persistence

import (
	"context"
	"fmt"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database"
)

// PostgresFreeUsageStore implements FreeUsageStore with PostgreSQL.
type PostgresFreeUsageStore struct {
	conn database.Connection
}

// NewPostgresFreeUsageStore creates a new store.
func NewPostgresFreeUsageStore(conn database.Connection) *PostgresFreeUsageStore {
	return &PostgresFreeUsageStore{conn: conn}
}

func (s *PostgresFreeUsageStore) db(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, s.conn)
}

// Get returns the device row, or nil when the device was never seen.
func (s *PostgresFreeUsageStore) Get(ctx context.Context, fingerprint string) (*domain.FreeUsage, error) {
	query := `
		SELECT fingerprint, ip_address, ask_used, detail_used, synastry_used, created_at, updated_at
		FROM free_usage
		WHERE fingerprint = $1
	`
	var u domain.FreeUsage
	err := s.db(ctx).QueryRow(ctx, query, fingerprint).Scan(
		&u.Fingerprint, &u.IPAddress, &u.AskUsed, &u.DetailUsed, &u.SynastryUsed, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetOrCreate inserts the device row unless it exists, then reads it.
func (s *PostgresFreeUsageStore) GetOrCreate(ctx context.Context, fingerprint, ip string) (*domain.FreeUsage, error) {
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO free_usage (fingerprint, ip_address)
		VALUES ($1, $2)
		ON CONFLICT (fingerprint) DO NOTHING
	`, fingerprint, ip)
	if err != nil {
		return nil, err
	}

	usage, err := s.Get(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if usage == nil {
		return nil, fmt.Errorf("free usage row for %q vanished after insert", fingerprint)
	}
	return usage, nil
}

// Increment adds one to counter while it is below limit.
func (s *PostgresFreeUsageStore) Increment(ctx context.Context, fingerprint string, counter domain.FreeCounter, limit int) (bool, error) {
	col, err := freeUsageColumn(counter)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE free_usage
		SET %[1]s = %[1]s + 1, updated_at = NOW()
		WHERE fingerprint = $1 AND %[1]s < $2
	`, col)

	res, err := s.db(ctx).Exec(ctx, query, fingerprint, limit)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ domain.FreeUsageStore = (*PostgresFreeUsageStore)(nil)
