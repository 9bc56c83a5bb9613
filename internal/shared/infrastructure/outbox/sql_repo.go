package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedApplication "github.com/cosmiq-app/cosmiq/internal/shared/application"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database"
)

// textTimeLayout has fixed-width fractions so SQLite TEXT timestamps sort chronologically.
const textTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const messageColumns = `id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
	payload, metadata, created_at, published_at, next_retry_at, retry_count,
	last_error, dead_lettered_at, dead_letter_reason`

// dialect adapts the shared queries to a driver. Queries are written with ?
// placeholders; numbered drivers get them rewritten to $n.
type dialect struct {
	numbered  bool
	textTypes bool
}

func dialectFor(driver database.Driver) (dialect, error) {
	switch driver {
	case database.DriverPostgres:
		return dialect{numbered: true}, nil
	case database.DriverSQLite:
		return dialect{textTypes: true}, nil
	default:
		return dialect{}, fmt.Errorf("outbox: unsupported driver %q", driver)
	}
}

func (d dialect) query(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// arg encodes timestamps and JSON for drivers without native types.
func (d dialect) arg(v any) any {
	if !d.textTypes {
		return v
	}
	switch v := v.(type) {
	case time.Time:
		return v.UTC().Format(textTimeLayout)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format(textTimeLayout)
	case json.RawMessage:
		return string(v)
	default:
		return v
	}
}

func (d dialect) args(vs ...any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = d.arg(v)
	}
	return out
}

// SQLRepository stores the outbox in PostgreSQL or SQLite.
type SQLRepository struct {
	conn    database.Connection
	dialect dialect
	now     func() time.Time
}

// NewSQLRepository creates a repository for the connection's driver.
func NewSQLRepository(conn database.Connection) (*SQLRepository, error) {
	d, err := dialectFor(conn.Driver())
	if err != nil {
		return nil, err
	}
	return &SQLRepository{conn: conn, dialect: d, now: time.Now}, nil
}

func (r *SQLRepository) exec(ctx context.Context, q string, args ...any) (database.Result, error) {
	return database.ExecutorFromContext(ctx, r.conn).Exec(ctx, r.dialect.query(q), r.dialect.args(args...)...)
}

// Save inserts msg and sets its ID.
func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	metadata := msg.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	q := r.dialect.query(`
		INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at, next_retry_at, dead_lettered_at, dead_letter_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	args := r.dialect.args(
		msg.EventID.String(), msg.AggregateType, msg.AggregateID, msg.EventType, msg.RoutingKey,
		msg.Payload, metadata, msg.CreatedAt, msg.NextRetryAt, msg.DeadLetteredAt, msg.DeadLetterReason,
	)
	if err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, q, args...).Scan(&msg.ID); err != nil {
		return fmt.Errorf("save %s: %w", msg.RoutingKey, err)
	}
	return nil
}

// SaveBatch inserts all messages in one transaction, joining the one in ctx if any.
func (r *SQLRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return sharedApplication.WithUnitOfWork(ctx, database.NewUnitOfWork(r.conn), func(ctx context.Context) error {
		for _, msg := range msgs {
			if err := r.Save(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetUnpublished returns due messages, oldest first.
func (r *SQLRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	q := r.dialect.query(`SELECT ` + messageColumns + ` FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`)
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, q, r.dialect.args(r.now(), limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (r *SQLRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.exec(ctx, `UPDATE outbox SET published_at = ?, dead_lettered_at = NULL WHERE id = ?`, r.now(), id)
	return err
}

func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.exec(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?`, errMsg, nextRetryAt, id)
	return err
}

func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.exec(ctx, `UPDATE outbox SET dead_lettered_at = ?, dead_letter_reason = ? WHERE id = ?`, r.now(), reason, id)
	return err
}

func (r *SQLRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE published_at IS NULL AND dead_lettered_at IS NULL`,
	).Scan(&n)
	return n, err
}

func (r *SQLRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	res, err := r.exec(ctx, `DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanMessage(rows database.Rows) (*Message, error) {
	var (
		msg                                           Message
		payload, metadata                             jsonText
		created, published, nextRetry, deadLetteredAt timestamp
	)
	err := rows.Scan(
		&msg.ID, &msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.RoutingKey,
		&payload, &metadata, &created, &published, &nextRetry, &msg.RetryCount,
		&msg.LastError, &deadLetteredAt, &msg.DeadLetterReason,
	)
	if err != nil {
		return nil, fmt.Errorf("scan outbox row: %w", err)
	}
	msg.Payload = json.RawMessage(payload)
	msg.Metadata = json.RawMessage(metadata)
	if created.ptr != nil {
		msg.CreatedAt = *created.ptr
	}
	msg.PublishedAt = published.ptr
	msg.NextRetryAt = nextRetry.ptr
	msg.DeadLetteredAt = deadLetteredAt.ptr
	return &msg, nil
}

// timestamp scans native timestamps and the TEXT encoding alike.
type timestamp struct {
	ptr *time.Time
}

func (ts *timestamp) Scan(src any) error {
	var t time.Time
	switch v := src.(type) {
	case nil:
		ts.ptr = nil
		return nil
	case time.Time:
		t = v
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", v, err)
		}
		t = parsed
	case []byte:
		return ts.Scan(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	ts.ptr = &t
	return nil
}

// jsonText scans JSONB and TEXT columns.
type jsonText []byte

func (j *jsonText) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = jsonText(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	return nil
}
