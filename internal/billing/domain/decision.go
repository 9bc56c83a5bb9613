package domain

// Decision is the outcome of a feature access check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

const (
	ReasonUnknownFeature        = "Unknown feature"
	ReasonAskExhausted          = "You have used all your free questions. Subscribe or buy more to keep asking."
	ReasonDetailExhausted       = "You have used your free detailed reading. Subscribe or buy a detail pack to unlock more."
	ReasonSynastryExhausted     = "You have used your free compatibility reading. Subscribe or buy a synastry reading."
	ReasonSynastryMonthlyLimit  = "Monthly synastry limit reached"
	ReasonCBTRequiresPurchase   = "CBT analysis requires a subscription or a purchase"
	ReasonDailyDetailSubscriber = "Daily detail is available to subscribers only"
	ReasonReportTypeRequired    = "Report type is required"
	ReasonReportClaimed         = "Monthly report already claimed this period"
	ReasonReportNotPurchased    = "Report not purchased"
	ReasonDeviceRequired        = "A device fingerprint is required to use the free tier"
)

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Decide applies the gating rules for feature against a snapshot.
// Rules are evaluated in precedence order and the first satisfied rule wins:
// subscription, then purchased credit, then free quota.
func Decide(e Entitlements, feature Feature, reportType string) Decision {
	switch feature {
	case FeatureAsk:
		return decideMetered(e, feature, ReasonAskExhausted)
	case FeatureDetail:
		return decideMetered(e, feature, ReasonDetailExhausted)
	case FeatureSynastry:
		if e.IsSubscriber {
			if e.SynastryReadsLeft() > 0 || e.PurchasedSynastry > 0 {
				return allow()
			}
			return deny(ReasonSynastryMonthlyLimit)
		}
		return decideMetered(e, feature, ReasonSynastryExhausted)
	case FeatureCBTAnalysis:
		if e.IsSubscriber || e.PurchasedCBTAnalysis > 0 {
			return allow()
		}
		return deny(ReasonCBTRequiresPurchase)
	case FeatureDailyDetail:
		if e.IsSubscriber {
			return allow()
		}
		return deny(ReasonDailyDetailSubscriber)
	case FeatureReport:
		return decideReport(e, reportType)
	default:
		return deny(ReasonUnknownFeature)
	}
}

func decideMetered(e Entitlements, feature Feature, exhausted string) Decision {
	if e.IsSubscriber {
		return allow()
	}
	if product, ok := feature.ProductType(); ok && e.Purchased(product) > 0 {
		return allow()
	}
	if e.FreeLeft(feature).Available() {
		return allow()
	}
	return deny(exhausted)
}

func decideReport(e Entitlements, reportType string) Decision {
	if reportType == "" {
		return deny(ReasonReportTypeRequired)
	}
	if e.OwnsReport(reportType) {
		return allow()
	}
	if e.IsSubscriber && reportType == MonthlyReport {
		if e.MonthlyReportClaimed() {
			return deny(ReasonReportClaimed)
		}
		return allow()
	}
	return deny(ReasonReportNotPurchased)
}

// ExplainFailedConsume turns the re-evaluated decision after a failed debit into
// the answer for the caller. raced is true when the rules still allow the feature,
// meaning a concurrent request spent the unit. Without a fingerprint the free tier
// is unreachable, so a free-tier allowance is reported as a denial instead.
func ExplainFailedConsume(req FeatureRequest, d Decision) (decision Decision, raced bool) {
	if !d.Allowed {
		return d, false
	}
	if _, free := req.Feature.FreeCounter(); free && req.DeviceFingerprint == "" {
		return deny(ReasonDeviceRequired), false
	}
	return d, true
}
