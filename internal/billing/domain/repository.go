package domain

import (
	"context"

	"github.com/google/uuid"
)

// SubscriptionStore is the read and debit side of the subscription and purchase ledger.
// Mutating methods are single atomic guarded updates: they return false, not an
// error, when the guard fails because the balance is exhausted.
type SubscriptionStore interface {
	// GetSubscription returns nil when the user never subscribed.
	GetSubscription(ctx context.Context, userID string) (*Subscription, error)
	// GetAvailableCredits sums the unconsumed units of completed purchases of product.
	GetAvailableCredits(ctx context.Context, userID string, product ProductType) (int, error)
	// GetCreditBalances returns the available units of each requested product in one read.
	// Products without units are present with a zero balance.
	GetCreditBalances(ctx context.Context, userID string, products []ProductType) (map[ProductType]int, error)
	GetPurchases(ctx context.Context, userID string) ([]Purchase, error)
	// PurchasedReportTypes returns the distinct report types of completed report purchases.
	PurchasedReportTypes(ctx context.Context, userID string) ([]string, error)
	// ConsumeCredit debits one unit of product from the oldest purchase with units left.
	ConsumeCredit(ctx context.Context, userID string, product ProductType) (bool, error)
	// UseSynastryRead increments the period's synastry counter while it is below allowance
	// and the subscription grants benefits.
	UseSynastryRead(ctx context.Context, userID string, allowance int) (bool, error)
	// ClaimMonthlyReport marks the period's monthly report as claimed, once.
	ClaimMonthlyReport(ctx context.Context, userID string) (bool, error)
}

// SubscriptionAdmin is the write side fed by checkout and billing webhooks.
type SubscriptionAdmin interface {
	// UpsertSubscription stores sub keyed by user. Usage counters reset when the
	// period start changes.
	UpsertSubscription(ctx context.Context, sub *Subscription) error
	RecordPurchase(ctx context.Context, purchase *Purchase) error
	SetPurchaseStatus(ctx context.Context, purchaseID uuid.UUID, status PurchaseStatus) error
}

// FreeUsageStore keeps per-device free-tier counters.
type FreeUsageStore interface {
	// Get returns nil when no row exists and never creates one.
	Get(ctx context.Context, fingerprint string) (*FreeUsage, error)
	// GetOrCreate inserts the row on first sight; concurrent first calls yield one row.
	GetOrCreate(ctx context.Context, fingerprint, ip string) (*FreeUsage, error)
	// Increment adds one to counter while it is below limit.
	Increment(ctx context.Context, fingerprint string, counter FreeCounter, limit int) (bool, error)
}
