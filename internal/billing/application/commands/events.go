package commands

import (
	"context"

	sharedApplication "github.com/cosmiq-app/cosmiq/internal/shared/application"
	sharedDomain "github.com/cosmiq-app/cosmiq/internal/shared/domain"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/outbox"
)

// saveEvents writes events to the outbox inside the caller's unit of work.
func saveEvents(ctx context.Context, repo outbox.Repository, actor string, events ...sharedDomain.DomainEvent) error {
	sharedApplication.ApplyEventMetadata(events, sharedApplication.EventMetadataFromContext(ctx, actor))

	msgs := make([]*outbox.Message, 0, len(events))
	for _, event := range events {
		msg, err := outbox.NewMessage(event)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return repo.SaveBatch(ctx, msgs)
}
