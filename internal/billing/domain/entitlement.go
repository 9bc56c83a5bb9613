package domain

import "sort"

// Entitlements is a point-in-time projection of what a caller may use.
// It is computed per request and never persisted.
type Entitlements struct {
	IsLoggedIn           bool                  `json:"is_logged_in"`
	IsSubscriber         bool                  `json:"is_subscriber"`
	Subscription         *SubscriptionBenefits `json:"subscription,omitempty"`
	FreeAskLeft          Quota                 `json:"free_ask_left"`
	FreeDetailLeft       Quota                 `json:"free_detail_left"`
	FreeSynastryLeft     Quota                 `json:"free_synastry_left"`
	PurchasedAsk         int                   `json:"purchased_ask"`
	PurchasedDetailPack  int                   `json:"purchased_detail_pack"`
	PurchasedSynastry    int                   `json:"purchased_synastry"`
	PurchasedCBTAnalysis int                   `json:"purchased_cbt_analysis"`
	PurchasedReports     []string              `json:"purchased_reports"`
}

// BaselineEntitlements returns the snapshot of a caller with untouched free-tier quotas.
func BaselineEntitlements(limits Limits) Entitlements {
	return Entitlements{
		FreeAskLeft:      Quota(limits.FreeAsk),
		FreeDetailLeft:   Quota(limits.FreeDetail),
		FreeSynastryLeft: Quota(limits.FreeSynastry),
		PurchasedReports: []string{},
	}
}

// ApplyFreeUsage projects a device's free-tier counters onto the snapshot.
// Quotas already marked unlimited are left alone.
func (e *Entitlements) ApplyFreeUsage(usage *FreeUsage, limits Limits) {
	if usage == nil {
		return
	}
	if !e.FreeAskLeft.IsUnlimited() {
		e.FreeAskLeft = RemainingQuota(limits.FreeAsk, usage.AskUsed)
	}
	if !e.FreeDetailLeft.IsUnlimited() {
		e.FreeDetailLeft = RemainingQuota(limits.FreeDetail, usage.DetailUsed)
	}
	if !e.FreeSynastryLeft.IsUnlimited() {
		e.FreeSynastryLeft = RemainingQuota(limits.FreeSynastry, usage.SynastryUsed)
	}
}

// ApplySubscription marks the snapshot as a subscriber's when sub grants benefits.
func (e *Entitlements) ApplySubscription(sub *Subscription, limits Limits) {
	if !sub.IsActive() {
		return
	}
	e.IsSubscriber = true
	e.FreeAskLeft = Unlimited
	e.FreeDetailLeft = Unlimited
	e.Subscription = &SubscriptionBenefits{
		Plan:                 sub.Plan,
		Status:               sub.Status,
		ExpiresAt:            sub.CurrentPeriodEnd,
		SynastryReadsLeft:    limits.MonthlySynastryAllowance - sub.Usage.SynastryReads,
		MonthlyReportClaimed: sub.Usage.MonthlyReportClaimed,
	}
}

// SetPurchased records the available credit balance of a credit product.
func (e *Entitlements) SetPurchased(product ProductType, available int) {
	switch product {
	case ProductAsk:
		e.PurchasedAsk = available
	case ProductDetailPack:
		e.PurchasedDetailPack = available
	case ProductSynastry:
		e.PurchasedSynastry = available
	case ProductCBTAnalysis:
		e.PurchasedCBTAnalysis = available
	}
}

// Purchased returns the available credit balance of a credit product.
func (e Entitlements) Purchased(product ProductType) int {
	switch product {
	case ProductAsk:
		return e.PurchasedAsk
	case ProductDetailPack:
		return e.PurchasedDetailPack
	case ProductSynastry:
		return e.PurchasedSynastry
	case ProductCBTAnalysis:
		return e.PurchasedCBTAnalysis
	default:
		return 0
	}
}

// SetPurchasedReports stores the owned report types in sorted order.
func (e *Entitlements) SetPurchasedReports(reports []string) {
	sorted := append([]string(nil), reports...)
	sort.Strings(sorted)
	if sorted == nil {
		sorted = []string{}
	}
	e.PurchasedReports = sorted
}

// OwnsReport reports whether reportType has been purchased.
func (e Entitlements) OwnsReport(reportType string) bool {
	i := sort.SearchStrings(e.PurchasedReports, reportType)
	return i < len(e.PurchasedReports) && e.PurchasedReports[i] == reportType
}

// FreeLeft returns the free-tier quota guarding feature f.
func (e Entitlements) FreeLeft(f Feature) Quota {
	switch f {
	case FeatureAsk:
		return e.FreeAskLeft
	case FeatureDetail:
		return e.FreeDetailLeft
	case FeatureSynastry:
		return e.FreeSynastryLeft
	default:
		return 0
	}
}

// SynastryReadsLeft returns the remaining monthly synastry allowance, or 0 for non-subscribers.
func (e Entitlements) SynastryReadsLeft() int {
	if e.Subscription == nil {
		return 0
	}
	return e.Subscription.SynastryReadsLeft
}

// MonthlyReportClaimed reports whether the subscriber already claimed this period's report.
func (e Entitlements) MonthlyReportClaimed() bool {
	return e.Subscription != nil && e.Subscription.MonthlyReportClaimed
}
