package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func subscriber(readsLeft int, claimed bool) Entitlements {
	e := BaselineEntitlements(DefaultLimits())
	e.IsLoggedIn = true
	e.ApplySubscription(&Subscription{
		Plan:   PlanMonthly,
		Status: SubscriptionActive,
		Usage: Usage{
			SynastryReads:        DefaultLimits().MonthlySynastryAllowance - readsLeft,
			MonthlyReportClaimed: claimed,
		},
	}, DefaultLimits())
	return e
}

func exhausted() Entitlements {
	e := BaselineEntitlements(DefaultLimits())
	e.FreeAskLeft = 0
	e.FreeDetailLeft = 0
	e.FreeSynastryLeft = 0
	return e
}

func TestDecide_MeteredFeatures(t *testing.T) {
	withAskCredit := exhausted()
	withAskCredit.PurchasedAsk = 2
	withDetailCredit := exhausted()
	withDetailCredit.PurchasedDetailPack = 1

	tests := []struct {
		name    string
		snap    Entitlements
		feature Feature
		allowed bool
		reason  string
	}{
		{"subscriber ask", subscriber(0, false), FeatureAsk, true, ""},
		{"subscriber detail", subscriber(0, false), FeatureDetail, true, ""},
		{"ask credit", withAskCredit, FeatureAsk, true, ""},
		{"detail pack", withDetailCredit, FeatureDetail, true, ""},
		{"ask credit does not cover detail", withAskCredit, FeatureDetail, false, ReasonDetailExhausted},
		{"free ask", BaselineEntitlements(DefaultLimits()), FeatureAsk, true, ""},
		{"free detail", BaselineEntitlements(DefaultLimits()), FeatureDetail, true, ""},
		{"ask exhausted", exhausted(), FeatureAsk, false, ReasonAskExhausted},
		{"detail exhausted", exhausted(), FeatureDetail, false, ReasonDetailExhausted},
		{"free synastry", BaselineEntitlements(DefaultLimits()), FeatureSynastry, true, ""},
		{"synastry exhausted", exhausted(), FeatureSynastry, false, ReasonSynastryExhausted},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.snap, tc.feature, "")
			assert.Equal(t, tc.allowed, d.Allowed)
			assert.Equal(t, tc.reason, d.Reason)
		})
	}
}

func TestDecide_SubscriberSynastry(t *testing.T) {
	assert.True(t, Decide(subscriber(1, false), FeatureSynastry, "").Allowed)

	overflow := subscriber(0, false)
	overflow.PurchasedSynastry = 2
	assert.True(t, Decide(overflow, FeatureSynastry, "").Allowed)

	d := Decide(subscriber(0, false), FeatureSynastry, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSynastryMonthlyLimit, d.Reason)

	// Over-consumed allowance is reported negative and still denies.
	d = Decide(subscriber(-2, false), FeatureSynastry, "")
	assert.False(t, d.Allowed)
}

func TestDecide_CBTAnalysisHasNoFreeTier(t *testing.T) {
	d := Decide(BaselineEntitlements(DefaultLimits()), FeatureCBTAnalysis, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonCBTRequiresPurchase, d.Reason)

	purchased := exhausted()
	purchased.PurchasedCBTAnalysis = 1
	assert.True(t, Decide(purchased, FeatureCBTAnalysis, "").Allowed)
	assert.True(t, Decide(subscriber(0, false), FeatureCBTAnalysis, "").Allowed)
}

func TestDecide_DailyDetailIsSubscriptionOnly(t *testing.T) {
	rich := BaselineEntitlements(DefaultLimits())
	rich.PurchasedAsk = 10
	rich.PurchasedDetailPack = 10

	d := Decide(rich, FeatureDailyDetail, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyDetailSubscriber, d.Reason)
	assert.True(t, Decide(subscriber(0, false), FeatureDailyDetail, "").Allowed)
}

func TestDecide_Report(t *testing.T) {
	owner := BaselineEntitlements(DefaultLimits())
	owner.SetPurchasedReports([]string{"year_ahead", "natal"})

	tests := []struct {
		name       string
		snap       Entitlements
		reportType string
		allowed    bool
		reason     string
	}{
		{"missing type denies subscriber", subscriber(3, false), "", false, ReasonReportTypeRequired},
		{"missing type denies owner", owner, "", false, ReasonReportTypeRequired},
		{"owned report", owner, "natal", true, ""},
		{"not owned", owner, "career", false, ReasonReportNotPurchased},
		{"subscriber monthly unclaimed", subscriber(3, false), MonthlyReport, true, ""},
		{"subscriber monthly claimed", subscriber(3, true), MonthlyReport, false, ReasonReportClaimed},
		{"subscriber other report", subscriber(3, false), "natal", false, ReasonReportNotPurchased},
		{"non-subscriber monthly", BaselineEntitlements(DefaultLimits()), MonthlyReport, false, ReasonReportNotPurchased},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.snap, FeatureReport, tc.reportType)
			assert.Equal(t, tc.allowed, d.Allowed)
			assert.Equal(t, tc.reason, d.Reason)
		})
	}
}

func TestDecide_UnknownFeature(t *testing.T) {
	d := Decide(subscriber(3, false), Feature("horoscope"), "")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonUnknownFeature, d.Reason)
}

func TestExplainFailedConsume(t *testing.T) {
	denied := Decision{Reason: ReasonAskExhausted}
	allowed := Decision{Allowed: true}

	tests := []struct {
		name      string
		req       FeatureRequest
		decision  Decision
		want      Decision
		wantRaced bool
	}{
		{"denial passes through", FeatureRequest{Feature: FeatureAsk, DeviceFingerprint: "d"}, denied, denied, false},
		{"allowed with device is a race", FeatureRequest{Feature: FeatureAsk, DeviceFingerprint: "d"}, allowed, allowed, true},
		{"free tier without device", FeatureRequest{Feature: FeatureAsk}, allowed, Decision{Reason: ReasonDeviceRequired}, false},
		{"logged in without device", FeatureRequest{UserID: "u", Feature: FeatureSynastry}, allowed, Decision{Reason: ReasonDeviceRequired}, false},
		{"no free tier is a race", FeatureRequest{UserID: "u", Feature: FeatureCBTAnalysis}, allowed, allowed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, raced := ExplainFailedConsume(tt.req, tt.decision)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRaced, raced)
		})
	}
}
