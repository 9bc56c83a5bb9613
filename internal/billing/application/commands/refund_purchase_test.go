package commands

import (
	"testing"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRefundPurchaseHandler_Handle(t *testing.T) {
	purchaseID := uuid.New()

	t.Run("refunds an owned purchase", func(t *testing.T) {
		admin := new(mockAdmin)
		subs := new(mockSubscriptionStore)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		handler := NewRefundPurchaseHandler(admin, subs, outboxRepo, uow)

		ctx, txCtx := txContext()
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)
		subs.On("GetPurchases", txCtx, "user-1").Return([]domain.Purchase{
			{ID: purchaseID, UserID: "user-1", Status: domain.PurchaseCompleted},
		}, nil)
		admin.On("SetPurchaseStatus", txCtx, purchaseID, domain.PurchaseRefunded).Return(nil)
		outboxRepo.On("SaveBatch", txCtx, mock.Anything).Return(nil)

		err := handler.Handle(ctx, RefundPurchaseCommand{UserID: "user-1", PurchaseID: purchaseID})

		require.NoError(t, err)
		admin.AssertExpectations(t)
		outboxRepo.AssertExpectations(t)
	})

	t.Run("already refunded is a no-op", func(t *testing.T) {
		admin := new(mockAdmin)
		subs := new(mockSubscriptionStore)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		handler := NewRefundPurchaseHandler(admin, subs, outboxRepo, uow)

		ctx, txCtx := txContext()
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)
		subs.On("GetPurchases", txCtx, "user-1").Return([]domain.Purchase{
			{ID: purchaseID, UserID: "user-1", Status: domain.PurchaseRefunded},
		}, nil)

		err := handler.Handle(ctx, RefundPurchaseCommand{UserID: "user-1", PurchaseID: purchaseID})

		require.NoError(t, err)
		admin.AssertNotCalled(t, "SetPurchaseStatus", mock.Anything, mock.Anything, mock.Anything)
		outboxRepo.AssertNotCalled(t, "SaveBatch", mock.Anything, mock.Anything)
	})

	t.Run("purchase of another user is not found", func(t *testing.T) {
		subs := new(mockSubscriptionStore)
		uow := new(mockUnitOfWork)
		handler := NewRefundPurchaseHandler(new(mockAdmin), subs, new(mockOutboxRepo), uow)

		ctx, txCtx := txContext()
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)
		subs.On("GetPurchases", txCtx, "user-2").Return([]domain.Purchase{}, nil)

		err := handler.Handle(ctx, RefundPurchaseCommand{UserID: "user-2", PurchaseID: purchaseID})

		assert.ErrorIs(t, err, domain.ErrPurchaseNotFound)
		uow.AssertExpectations(t)
	})

	t.Run("requires ids", func(t *testing.T) {
		handler := NewRefundPurchaseHandler(new(mockAdmin), new(mockSubscriptionStore), new(mockOutboxRepo), new(mockUnitOfWork))

		err := handler.Handle(t.Context(), RefundPurchaseCommand{UserID: "user-1"})
		require.Error(t, err)
	})
}
