package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database"
)

// SQLiteFreeUsageStore implements FreeUsageStore with SQLite.
type SQLiteFreeUsageStore struct {
	conn database.Connection
}

// NewSQLiteFreeUsageStore creates a new store.
func NewSQLiteFreeUsageStore(conn database.Connection) *SQLiteFreeUsageStore {
	return &SQLiteFreeUsageStore{conn: conn}
}

func (s *SQLiteFreeUsageStore) db(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, s.conn)
}

// Get returns the device row, or nil when the device was never seen.
func (s *SQLiteFreeUsageStore) Get(ctx context.Context, fingerprint string) (*domain.FreeUsage, error) {
	query := `
		SELECT fingerprint, ip_address, ask_used, detail_used, synastry_used, created_at, updated_at
		FROM free_usage
		WHERE fingerprint = ?
	`
	var (
		u            domain.FreeUsage
		createdAtStr string
		updatedAtStr string
	)
	err := s.db(ctx).QueryRow(ctx, query, fingerprint).Scan(
		&u.Fingerprint, &u.IPAddress, &u.AskUsed, &u.DetailUsed, &u.SynastryUsed, &createdAtStr, &updatedAtStr,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	u.CreatedAt = parseSQLiteTime(createdAtStr)
	u.UpdatedAt = parseSQLiteTime(updatedAtStr)
	return &u, nil
}

// GetOrCreate inserts the device row unless it exists, then reads it.
func (s *SQLiteFreeUsageStore) GetOrCreate(ctx context.Context, fingerprint, ip string) (*domain.FreeUsage, error) {
	now := formatSQLiteTime(time.Now())
	_, err := s.db(ctx).Exec(ctx, `
		INSERT INTO free_usage (fingerprint, ip_address, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING
	`, fingerprint, ip, now, now)
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
func (s *SQLiteFreeUsageStore) Increment(ctx context.Context, fingerprint string, counter domain.FreeCounter, limit int) (bool, error) {
	col, err := freeUsageColumn(counter)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE free_usage
		SET %[1]s = %[1]s + 1, updated_at = ?
		WHERE fingerprint = ? AND %[1]s < ?
	`, col)

	res, err := s.db(ctx).Exec(ctx, query, formatSQLiteTime(time.Now()), fingerprint, limit)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ domain.FreeUsageStore = (*SQLiteFreeUsageStore)(nil)
