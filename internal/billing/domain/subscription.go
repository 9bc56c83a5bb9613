package domain

import (
	"time"

	"github.com/google/uuid"
)

// Plan is the billing cadence of a subscription.
type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// IsValid reports whether p is a known plan.
func (p Plan) IsValid() bool {
	return p == PlanMonthly || p == PlanYearly
}

// CalendarPeriod returns the UTC calendar month (or year, for the yearly plan)
// containing now.
func (p Plan) CalendarPeriod(now time.Time) (start, end time.Time) {
	now = now.UTC()
	if p == PlanYearly {
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	}
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// PeriodFrom returns the end of a period of this plan starting at start.
func (p Plan) PeriodFrom(start time.Time) time.Time {
	if p == PlanYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// SubscriptionStatus represents the current billing state.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionExpired  SubscriptionStatus = "expired"
)

// IsValid reports whether s is a known status.
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue, SubscriptionCanceled, SubscriptionExpired:
		return true
	default:
		return false
	}
}

// GrantsBenefits reports whether a subscription in this status is a paying subscriber.
func (s SubscriptionStatus) GrantsBenefits() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// Usage holds the per-period counters of a subscription. They reset at period rollover.
type Usage struct {
	SynastryReads        int
	MonthlyReportClaimed bool
}

// Subscription represents a user's subscription.
type Subscription struct {
	ID                   uuid.UUID
	UserID               string
	Plan                 Plan
	Status               SubscriptionStatus
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
	Usage                Usage
	StripeCustomerID     string
	StripeSubscriptionID string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsActive reports whether the subscription currently grants subscriber benefits.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status.GrantsBenefits()
}

// SubscriptionBenefits is the subscriber part of an entitlement snapshot.
type SubscriptionBenefits struct {
	Plan      Plan               `json:"plan"`
	Status    SubscriptionStatus `json:"status"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	// SynastryReadsLeft is reported as-is and may be negative; clamp before display.
	SynastryReadsLeft    int  `json:"synastry_reads_left"`
	MonthlyReportClaimed bool `json:"monthly_report_claimed"`
}
