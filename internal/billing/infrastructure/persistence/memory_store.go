package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/google/uuid"
)

// MemoryStore keeps subscriptions, purchases and free usage in process memory.
// Every method holds the store mutex for its whole duration, so guarded
// updates are atomic with respect to each other.
type MemoryStore struct {
	mu            sync.Mutex
	subscriptions map[string]domain.Subscription
	purchases     []domain.Purchase
	freeUsage     map[string]domain.FreeUsage
	now           func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[string]domain.Subscription),
		freeUsage:     make(map[string]domain.FreeUsage),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GetSubscription returns a copy of the user's subscription.
func (s *MemoryStore) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

// GetAvailableCredits sums unconsumed units of completed purchases.
func (s *MemoryStore) GetAvailableCredits(ctx context.Context, userID string, product domain.ProductType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, p := range s.purchases {
		if p.UserID == userID && p.ProductType == product {
			total += p.Available()
		}
	}
	return total, nil
}

// GetCreditBalances returns the available units per product.
func (s *MemoryStore) GetCreditBalances(ctx context.Context, userID string, products []domain.ProductType) (map[domain.ProductType]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balances := make(map[domain.ProductType]int, len(products))
	for _, product := range products {
		balances[product] = 0
	}
	for _, p := range s.purchases {
		if _, wanted := balances[p.ProductType]; wanted && p.UserID == userID {
			balances[p.ProductType] += p.Available()
		}
	}
	return balances, nil
}

// GetPurchases returns the user's purchases, oldest first.
func (s *MemoryStore) GetPurchases(ctx context.Context, userID string) ([]domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Purchase, 0)
	for _, p := range s.purchases {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

// PurchasedReportTypes returns the distinct owned report types.
func (s *MemoryStore) PurchasedReportTypes(ctx context.Context, userID string) ([]string, error) {
	purchases, err := s.GetPurchases(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.PurchasedReportTypes(purchases), nil
}

// ConsumeCredit debits the oldest completed purchase that still has units.
func (s *MemoryStore) ConsumeCredit(ctx context.Context, userID string, product domain.ProductType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.purchases {
		p := &s.purchases[i]
		if p.UserID != userID || p.ProductType != product || p.Available() == 0 {
			continue
		}
		p.Consumed++
		p.UpdatedAt = s.now()
		return true, nil
	}
	return false, nil
}

// UseSynastryRead increments the period counter while below allowance.
func (s *MemoryStore) UseSynastryRead(ctx context.Context, userID string, allowance int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[userID]
	if !ok || !sub.IsActive() || sub.Usage.SynastryReads >= allowance {
		return false, nil
	}
	sub.Usage.SynastryReads++
	sub.UpdatedAt = s.now()
	s.subscriptions[userID] = sub
	return true, nil
}

// ClaimMonthlyReport flips the period's claim flag once.
func (s *MemoryStore) ClaimMonthlyReport(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[userID]
	if !ok || !sub.IsActive() || sub.Usage.MonthlyReportClaimed {
		return false, nil
	}
	sub.Usage.MonthlyReportClaimed = true
	sub.UpdatedAt = s.now()
	s.subscriptions[userID] = sub
	return true, nil
}

// UpsertSubscription stores sub, resetting usage when the period start moves.
func (s *MemoryStore) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *sub
	now := s.now()
	if existing, ok := s.subscriptions[sub.UserID]; ok {
		next.ID = existing.ID
		next.CreatedAt = existing.CreatedAt
		next.Usage = existing.Usage
		if !samePeriod(existing.CurrentPeriodStart, sub.CurrentPeriodStart) {
			next.Usage = domain.Usage{}
		}
	} else {
		if next.ID == uuid.Nil {
			next.ID = uuid.New()
		}
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	s.subscriptions[sub.UserID] = next
	*sub = next
	return nil
}

// RecordPurchase appends a purchase to the ledger.
func (s *MemoryStore) RecordPurchase(ctx context.Context, purchase *domain.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.ID == uuid.Nil {
		purchase.ID = uuid.New()
	}
	now := s.now()
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = now
	}
	purchase.UpdatedAt = now
	s.purchases = append(s.purchases, *purchase)
	sort.SliceStable(s.purchases, func(i, j int) bool {
		return s.purchases[i].CreatedAt.Before(s.purchases[j].CreatedAt)
	})
	return nil
}

// SetPurchaseStatus changes the payment status of a purchase.
func (s *MemoryStore) SetPurchaseStatus(ctx context.Context, purchaseID uuid.UUID, status domain.PurchaseStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.purchases {
		if s.purchases[i].ID == purchaseID {
			s.purchases[i].Status = status
			s.purchases[i].UpdatedAt = s.now()
			return nil
		}
	}
	return domain.ErrPurchaseNotFound
}

// Get returns a copy of the device row, or nil.
func (s *MemoryStore) Get(ctx context.Context, fingerprint string) (*domain.FreeUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage, ok := s.freeUsage[fingerprint]
	if !ok {
		return nil, nil
	}
	return &usage, nil
}

// GetOrCreate returns the device row, inserting it on first sight.
func (s *MemoryStore) GetOrCreate(ctx context.Context, fingerprint, ip string) (*domain.FreeUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage, ok := s.freeUsage[fingerprint]
	if !ok {
		now := s.now()
		usage = domain.FreeUsage{
			Fingerprint: fingerprint,
			IPAddress:   ip,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.freeUsage[fingerprint] = usage
	}
	return &usage, nil
}

// Increment adds one to counter while it is below limit.
func (s *MemoryStore) Increment(ctx context.Context, fingerprint string, counter domain.FreeCounter, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage, ok := s.freeUsage[fingerprint]
	if !ok || usage.Used(counter) >= limit {
		return false, nil
	}
	switch counter {
	case domain.CounterAsk:
		usage.AskUsed++
	case domain.CounterDetail:
		usage.DetailUsed++
	case domain.CounterSynastry:
		usage.SynastryUsed++
	default:
		return false, nil
	}
	usage.UpdatedAt = s.now()
	s.freeUsage[fingerprint] = usage
	return true, nil
}

func samePeriod(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

var (
	_ domain.SubscriptionStore = (*MemoryStore)(nil)
	_ domain.SubscriptionAdmin = (*MemoryStore)(nil)
	_ domain.FreeUsageStore    = (*MemoryStore)(nil)
)
