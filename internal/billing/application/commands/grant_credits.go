package commands

import (
	"context"
	"fmt"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	sharedApplication "github.com/cosmiq-app/cosmiq/internal/shared/application"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// GrantCreditsCommand grants units of a product to a user as a completed purchase.
type GrantCreditsCommand struct {
	UserID      string
	ProductType string
	ReportType  string
	Quantity    int
	PaymentID   string
}

// GrantCreditsResult contains the recorded purchase.
type GrantCreditsResult struct {
	PurchaseID uuid.UUID
}

// GrantCreditsHandler handles the GrantCreditsCommand.
type GrantCreditsHandler struct {
	admin      domain.SubscriptionAdmin
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
}

// NewGrantCreditsHandler creates a new GrantCreditsHandler.
func NewGrantCreditsHandler(admin domain.SubscriptionAdmin, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork) *GrantCreditsHandler {
	return &GrantCreditsHandler{
		admin:      admin,
		outboxRepo: outboxRepo,
		uow:        uow,
	}
}

// Handle executes the GrantCreditsCommand.
func (h *GrantCreditsHandler) Handle(ctx context.Context, cmd GrantCreditsCommand) (*GrantCreditsResult, error) {
	if cmd.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	product, err := domain.ParseProductType(cmd.ProductType)
	if err != nil {
		return nil, err
	}
	if cmd.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if product == domain.ProductReport && cmd.ReportType == "" {
		return nil, fmt.Errorf("report type is required for report purchases")
	}
	if product != domain.ProductReport && cmd.ReportType != "" {
		return nil, fmt.Errorf("report type only applies to report purchases")
	}

	var result *GrantCreditsResult

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		purchase := &domain.Purchase{
			UserID:          cmd.UserID,
			ProductType:     product,
			ReportType:      cmd.ReportType,
			Quantity:        cmd.Quantity,
			Status:          domain.PurchaseCompleted,
			StripePaymentID: cmd.PaymentID,
		}
		if err := h.admin.RecordPurchase(txCtx, purchase); err != nil {
			return err
		}

		if err := saveEvents(txCtx, h.outboxRepo, cmd.UserID, domain.NewCreditsGranted(*purchase)); err != nil {
			return err
		}

		result = &GrantCreditsResult{PurchaseID: purchase.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
