package commands

import (
	"context"
	"fmt"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	sharedApplication "github.com/cosmiq-app/cosmiq/internal/shared/application"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// RefundPurchaseCommand marks a purchase refunded. Its remaining units stop counting.
type RefundPurchaseCommand struct {
	UserID     string
	PurchaseID uuid.UUID
}

// RefundPurchaseHandler handles the RefundPurchaseCommand.
type RefundPurchaseHandler struct {
	admin      domain.SubscriptionAdmin
	subs       domain.SubscriptionStore
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
}

// NewRefundPurchaseHandler creates a new RefundPurchaseHandler.
func NewRefundPurchaseHandler(admin domain.SubscriptionAdmin, subs domain.SubscriptionStore, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork) *RefundPurchaseHandler {
	return &RefundPurchaseHandler{
		admin:      admin,
		subs:       subs,
		outboxRepo: outboxRepo,
		uow:        uow,
	}
}

// Handle executes the RefundPurchaseCommand.
func (h *RefundPurchaseHandler) Handle(ctx context.Context, cmd RefundPurchaseCommand) error {
	if cmd.UserID == "" || cmd.PurchaseID == uuid.Nil {
		return fmt.Errorf("user id and purchase id are required")
	}

	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		purchases, err := h.subs.GetPurchases(txCtx, cmd.UserID)
		if err != nil {
			return err
		}

		var found *domain.Purchase
		for i := range purchases {
			if purchases[i].ID == cmd.PurchaseID {
				found = &purchases[i]
				break
			}
		}
		// Purchases of other users are reported as missing.
		if found == nil {
			return domain.ErrPurchaseNotFound
		}
		if found.Status == domain.PurchaseRefunded {
			return nil
		}

		if err := h.admin.SetPurchaseStatus(txCtx, cmd.PurchaseID, domain.PurchaseRefunded); err != nil {
			return err
		}

		return saveEvents(txCtx, h.outboxRepo, cmd.UserID, domain.NewPurchaseRefunded(cmd.UserID, cmd.PurchaseID))
	})
}
