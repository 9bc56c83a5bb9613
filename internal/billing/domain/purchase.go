package domain

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseStatus is the payment state of a purchase.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseRefunded  PurchaseStatus = "refunded"
)

// IsValid reports whether s is a known status.
func (s PurchaseStatus) IsValid() bool {
	switch s {
	case PurchasePending, PurchaseCompleted, PurchaseFailed, PurchaseRefunded:
		return true
	default:
		return false
	}
}

// Purchase is a one-off payment for credits or a report.
type Purchase struct {
	ID          uuid.UUID
	UserID      string
	ProductType ProductType
	// ReportType identifies the report bought; empty for credit products.
	ReportType      string
	Quantity        int
	Consumed        int
	Status          PurchaseStatus
	StripePaymentID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Available returns the unconsumed units of a completed purchase.
func (p Purchase) Available() int {
	if p.Status != PurchaseCompleted || p.Consumed >= p.Quantity {
		return 0
	}
	return p.Quantity - p.Consumed
}

// PurchasedReportTypes returns the distinct report types among completed report purchases.
func PurchasedReportTypes(purchases []Purchase) []string {
	seen := make(map[string]struct{})
	reports := make([]string, 0)
	for _, p := range purchases {
		if p.ProductType != ProductReport || p.Status != PurchaseCompleted || p.ReportType == "" {
			continue
		}
		if _, ok := seen[p.ReportType]; ok {
			continue
		}
		seen[p.ReportType] = struct{}{}
		reports = append(reports, p.ReportType)
	}
	return reports
}
