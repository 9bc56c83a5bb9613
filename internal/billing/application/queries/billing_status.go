package queries

import (
	"context"
	"errors"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/google/uuid"
)

// GetBillingStatusQuery asks for a user's subscription and purchase ledger.
type GetBillingStatusQuery struct {
	UserID string
}

// BillingStatusDTO is an operator view of a user's billing state.
type BillingStatusDTO struct {
	UserID       string                     `json:"user_id"`
	Subscription *SubscriptionDTO           `json:"subscription,omitempty"`
	Purchases    []PurchaseDTO              `json:"purchases"`
	Credits      map[domain.ProductType]int `json:"credits"`
}

// SubscriptionDTO is the stored subscription including its period usage.
type SubscriptionDTO struct {
	Plan                 string     `json:"plan"`
	Status               string     `json:"status"`
	PeriodStart          *time.Time `json:"period_start,omitempty"`
	PeriodEnd            *time.Time `json:"period_end,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	SynastryReads        int        `json:"synastry_reads"`
	MonthlyReportClaimed bool       `json:"monthly_report_claimed"`
}

// PurchaseDTO is one ledger row.
type PurchaseDTO struct {
	ID          uuid.UUID `json:"id"`
	ProductType string    `json:"product_type"`
	ReportType  string    `json:"report_type,omitempty"`
	Quantity    int       `json:"quantity"`
	Consumed    int       `json:"consumed"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// GetBillingStatusHandler handles the GetBillingStatusQuery.
type GetBillingStatusHandler struct {
	subs domain.SubscriptionStore
}

// NewGetBillingStatusHandler creates a new GetBillingStatusHandler.
func NewGetBillingStatusHandler(subs domain.SubscriptionStore) *GetBillingStatusHandler {
	return &GetBillingStatusHandler{subs: subs}
}

// Handle executes the GetBillingStatusQuery.
func (h *GetBillingStatusHandler) Handle(ctx context.Context, query GetBillingStatusQuery) (*BillingStatusDTO, error) {
	if query.UserID == "" {
		return nil, errors.New("user id is required")
	}

	sub, err := h.subs.GetSubscription(ctx, query.UserID)
	if err != nil {
		return nil, err
	}
	purchases, err := h.subs.GetPurchases(ctx, query.UserID)
	if err != nil {
		return nil, err
	}
	credits, err := h.subs.GetCreditBalances(ctx, query.UserID, domain.CreditProducts)
	if err != nil {
		return nil, err
	}

	dto := &BillingStatusDTO{
		UserID:    query.UserID,
		Purchases: make([]PurchaseDTO, 0, len(purchases)),
		Credits:   credits,
	}
	if sub != nil {
		dto.Subscription = &SubscriptionDTO{
			Plan:                 string(sub.Plan),
			Status:               string(sub.Status),
			PeriodStart:          sub.CurrentPeriodStart,
			PeriodEnd:            sub.CurrentPeriodEnd,
			CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
			SynastryReads:        sub.Usage.SynastryReads,
			MonthlyReportClaimed: sub.Usage.MonthlyReportClaimed,
		}
	}
	for _, p := range purchases {
		dto.Purchases = append(dto.Purchases, PurchaseDTO{
			ID:          p.ID,
			ProductType: string(p.ProductType),
			ReportType:  p.ReportType,
			Quantity:    p.Quantity,
			Consumed:    p.Consumed,
			Status:      string(p.Status),
			CreatedAt:   p.CreatedAt,
		})
	}

	return dto, nil
}
