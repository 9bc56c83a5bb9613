package domain

import "fmt"

// Feature is a gated, paid capability of the app.
type Feature string

const (
	FeatureAsk         Feature = "ask"
	FeatureDetail      Feature = "detail"
	FeatureSynastry    Feature = "synastry"
	FeatureCBTAnalysis Feature = "cbt_analysis"
	FeatureDailyDetail Feature = "daily_detail"
	FeatureReport      Feature = "report"
)

// Features lists every gated feature.
var Features = []Feature{
	FeatureAsk,
	FeatureDetail,
	FeatureSynastry,
	FeatureCBTAnalysis,
	FeatureDailyDetail,
	FeatureReport,
}

// ParseFeature converts a raw feature name.
func ParseFeature(raw string) (Feature, error) {
	f := Feature(raw)
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFeature, raw)
	}
	return f, nil
}

// IsValid reports whether f is a known feature.
func (f Feature) IsValid() bool {
	switch f {
	case FeatureAsk, FeatureDetail, FeatureSynastry, FeatureCBTAnalysis, FeatureDailyDetail, FeatureReport:
		return true
	default:
		return false
	}
}

// ProductType returns the credit product that pays for f, if any.
// daily_detail is subscription-only and report purchases are ownership, not credits.
func (f Feature) ProductType() (ProductType, bool) {
	switch f {
	case FeatureAsk:
		return ProductAsk, true
	case FeatureDetail:
		return ProductDetailPack, true
	case FeatureSynastry:
		return ProductSynastry, true
	case FeatureCBTAnalysis:
		return ProductCBTAnalysis, true
	default:
		return "", false
	}
}

// FreeCounter returns the device free-tier counter for f, if f has a free tier.
func (f Feature) FreeCounter() (FreeCounter, bool) {
	switch f {
	case FeatureAsk:
		return CounterAsk, true
	case FeatureDetail:
		return CounterDetail, true
	case FeatureSynastry:
		return CounterSynastry, true
	default:
		return "", false
	}
}

func (f Feature) String() string {
	return string(f)
}

// ProductType identifies a purchasable product.
type ProductType string

const (
	ProductAsk         ProductType = "ask"
	ProductDetailPack  ProductType = "detail_pack"
	ProductSynastry    ProductType = "synastry"
	ProductCBTAnalysis ProductType = "cbt_analysis"
	ProductReport      ProductType = "report"
)

// CreditProducts are the product types sold as countable credits.
var CreditProducts = []ProductType{
	ProductAsk,
	ProductDetailPack,
	ProductSynastry,
	ProductCBTAnalysis,
}

// ParseProductType converts a raw product type.
func ParseProductType(raw string) (ProductType, error) {
	p := ProductType(raw)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProduct, raw)
	}
	return p, nil
}

// IsValid reports whether p is a known product type.
func (p ProductType) IsValid() bool {
	switch p {
	case ProductAsk, ProductDetailPack, ProductSynastry, ProductCBTAnalysis, ProductReport:
		return true
	default:
		return false
	}
}

// IsCredit reports whether p is sold as consumable credit units.
func (p ProductType) IsCredit() bool {
	return p.IsValid() && p != ProductReport
}

// MonthlyReport is the report type subscribers may claim once per billing period.
const MonthlyReport = "monthly"

// Bucket names the balance a successful debit was taken from.
type Bucket string

const (
	BucketSubscription Bucket = "subscription"
	BucketCredit       Bucket = "credit"
	BucketFree         Bucket = "free"
	BucketOwned        Bucket = "owned"
	BucketNoop         Bucket = "noop"
)
