package application

import (
	"context"

	"github.com/cosmiq-app/cosmiq/internal/shared/domain"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
	"github.com/google/uuid"
)

// EventMetadataFromContext builds metadata for events raised on behalf of userID.
// The correlation id of the request in ctx is kept when it is a UUID, so an API
// call, its log lines and its outbox events share one id; otherwise a new one is minted.
func EventMetadataFromContext(ctx context.Context, userID string) domain.EventMetadata {
	correlationID, err := uuid.Parse(observability.CorrelationIDFromContext(ctx))
	if err != nil {
		correlationID = uuid.New()
	}
	return domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   uuid.New(),
		UserID:        userID,
	}
}

// ApplyEventMetadata sets metadata on the events that accept it.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	for _, event := range events {
		if e, ok := event.(interface{ SetMetadata(domain.EventMetadata) }); ok {
			e.SetMetadata(metadata)
		}
	}
}
