package outbox

import (
	"context"
	"time"
)

// Repository persists outbox messages. Writes made with a ctx from
// database.UnitOfWork join that transaction, so an event is stored only if the
// billing change that raised it commits.
type Repository interface {
	Save(ctx context.Context, msg *Message) error
	// SaveBatch stores all messages or none.
	SaveBatch(ctx context.Context, msgs []*Message) error

	// GetUnpublished returns up to limit messages that are neither published
	// nor dead-lettered and whose retry time has passed, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)

	MarkPublished(ctx context.Context, id int64) error
	// MarkFailed increments the retry count and defers the message until nextRetryAt.
	MarkFailed(ctx context.Context, id int64, err string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error

	// CountPending counts messages still awaiting delivery.
	CountPending(ctx context.Context) (int64, error)
	// DeleteOld removes published messages older than the retention window.
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}
