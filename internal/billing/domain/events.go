package domain

import (
	"time"

	sharedDomain "github.com/cosmiq-app/cosmiq/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	// AggregateType is the aggregate name used for entitlement events.
	AggregateType = "Entitlement"

	RoutingKeyFeatureConsumed = "billing.feature.consumed"
	RoutingKeyCreditsGranted  = "billing.credits.granted"
	RoutingKeySubscriptionSet = "billing.subscription.updated"
	RoutingKeyPurchaseRefund  = "billing.purchase.refunded"
)

// FeatureConsumed is emitted after a successful debit.
type FeatureConsumed struct {
	sharedDomain.BaseEvent
	UserID            string  `json:"user_id,omitempty"`
	DeviceFingerprint string  `json:"device_fingerprint,omitempty"`
	Feature           Feature `json:"feature"`
	ReportType        string  `json:"report_type,omitempty"`
	Bucket            Bucket  `json:"bucket"`
}

// NewFeatureConsumed creates a FeatureConsumed event keyed by the user, or by the device for anonymous callers.
func NewFeatureConsumed(userID, fingerprint string, feature Feature, reportType string, bucket Bucket) *FeatureConsumed {
	return &FeatureConsumed{
		BaseEvent:         sharedDomain.NewBaseEvent(subjectKey(userID, fingerprint), AggregateType, RoutingKeyFeatureConsumed),
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		Feature:           feature,
		ReportType:        reportType,
		Bucket:            bucket,
	}
}

// CreditsGranted is emitted when an operator grants credits.
type CreditsGranted struct {
	sharedDomain.BaseEvent
	UserID      string      `json:"user_id"`
	PurchaseID  string      `json:"purchase_id"`
	ProductType ProductType `json:"product_type"`
	ReportType  string      `json:"report_type,omitempty"`
	Quantity    int         `json:"quantity"`
}

// NewCreditsGranted creates a CreditsGranted event for a recorded purchase.
func NewCreditsGranted(p Purchase) *CreditsGranted {
	return &CreditsGranted{
		BaseEvent:   sharedDomain.NewBaseEvent(p.UserID, AggregateType, RoutingKeyCreditsGranted),
		UserID:      p.UserID,
		PurchaseID:  p.ID.String(),
		ProductType: p.ProductType,
		ReportType:  p.ReportType,
		Quantity:    p.Quantity,
	}
}

// SubscriptionUpdated is emitted when a subscription is created or changed.
type SubscriptionUpdated struct {
	sharedDomain.BaseEvent
	UserID    string             `json:"user_id"`
	Plan      Plan               `json:"plan"`
	Status    SubscriptionStatus `json:"status"`
	PeriodEnd *time.Time         `json:"period_end,omitempty"`
}

// NewSubscriptionUpdated creates a SubscriptionUpdated event.
func NewSubscriptionUpdated(sub Subscription) *SubscriptionUpdated {
	return &SubscriptionUpdated{
		BaseEvent: sharedDomain.NewBaseEvent(sub.UserID, AggregateType, RoutingKeySubscriptionSet),
		UserID:    sub.UserID,
		Plan:      sub.Plan,
		Status:    sub.Status,
		PeriodEnd: sub.CurrentPeriodEnd,
	}
}

// PurchaseRefundedEvent is emitted when a purchase is refunded and its units stop counting.
type PurchaseRefundedEvent struct {
	sharedDomain.BaseEvent
	UserID     string `json:"user_id"`
	PurchaseID string `json:"purchase_id"`
}

// NewPurchaseRefunded creates a PurchaseRefundedEvent.
func NewPurchaseRefunded(userID string, purchaseID uuid.UUID) *PurchaseRefundedEvent {
	return &PurchaseRefundedEvent{
		BaseEvent:  sharedDomain.NewBaseEvent(userID, AggregateType, RoutingKeyPurchaseRefund),
		UserID:     userID,
		PurchaseID: purchaseID.String(),
	}
}

func subjectKey(userID, fingerprint string) string {
	if userID != "" {
		return userID
	}
	return "device:" + fingerprint
}
