package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	sharedApplication "github.com/cosmiq-app/cosmiq/internal/shared/application"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// SetSubscriptionCommand contains the billing state reported for a user.
type SetSubscriptionCommand struct {
	UserID             string
	Plan               string
	Status             string
	PeriodStart        time.Time
	PeriodEnd          time.Time
	CancelAtPeriodEnd  bool
	StripeCustomerID   string
	StripeSubscription string
}

// SetSubscriptionResult contains the stored subscription.
type SetSubscriptionResult struct {
	SubscriptionID uuid.UUID
	UsageReset     bool
}

// SetSubscriptionHandler handles the SetSubscriptionCommand.
type SetSubscriptionHandler struct {
	admin      domain.SubscriptionAdmin
	subs       domain.SubscriptionStore
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
}

// NewSetSubscriptionHandler creates a new SetSubscriptionHandler.
func NewSetSubscriptionHandler(admin domain.SubscriptionAdmin, subs domain.SubscriptionStore, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork) *SetSubscriptionHandler {
	return &SetSubscriptionHandler{
		admin:      admin,
		subs:       subs,
		outboxRepo: outboxRepo,
		uow:        uow,
	}
}

// Handle executes the SetSubscriptionCommand.
func (h *SetSubscriptionHandler) Handle(ctx context.Context, cmd SetSubscriptionCommand) (*SetSubscriptionResult, error) {
	if cmd.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	plan := domain.Plan(cmd.Plan)
	if !plan.IsValid() {
		return nil, fmt.Errorf("invalid plan %q", cmd.Plan)
	}
	status := domain.SubscriptionStatus(cmd.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid subscription status %q", cmd.Status)
	}
	if !cmd.PeriodEnd.After(cmd.PeriodStart) {
		return nil, fmt.Errorf("period end must be after period start")
	}

	var result *SetSubscriptionResult

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		existing, err := h.subs.GetSubscription(txCtx, cmd.UserID)
		if err != nil {
			return err
		}

		start := cmd.PeriodStart.UTC()
		end := cmd.PeriodEnd.UTC()
		sub := &domain.Subscription{
			UserID:               cmd.UserID,
			Plan:                 plan,
			Status:               status,
			CurrentPeriodStart:   &start,
			CurrentPeriodEnd:     &end,
			CancelAtPeriodEnd:    cmd.CancelAtPeriodEnd,
			StripeCustomerID:     cmd.StripeCustomerID,
			StripeSubscriptionID: cmd.StripeSubscription,
		}
		if err := h.admin.UpsertSubscription(txCtx, sub); err != nil {
			return err
		}

		if err := saveEvents(txCtx, h.outboxRepo, cmd.UserID, domain.NewSubscriptionUpdated(*sub)); err != nil {
			return err
		}

		result = &SetSubscriptionResult{
			SubscriptionID: sub.ID,
			UsageReset:     existing != nil && !samePeriodStart(existing.CurrentPeriodStart, start),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func samePeriodStart(a *time.Time, b time.Time) bool {
	return a != nil && a.Equal(b)
}
