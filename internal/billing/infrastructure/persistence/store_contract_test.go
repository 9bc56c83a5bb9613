package persistence_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/cosmiq-app/cosmiq/internal/billing/infrastructure/persistence"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database"
	_ "github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database/postgres"
	_ "github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database/sqlite"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/migrations"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledger interface {
	domain.SubscriptionStore
	domain.SubscriptionAdmin
}

type backend struct {
	name      string
	ledger    ledger
	freeUsage domain.FreeUsageStore
}

func backends(t *testing.T) []backend {
	t.Helper()

	memory := persistence.NewMemoryStore()
	out := []backend{
		{name: "memory", ledger: memory, freeUsage: memory},
	}

	sqliteConn := openConnection(t, database.Config{
		Driver: database.DriverSQLite,
		URL:    "sqlite://" + filepath.Join(t.TempDir(), "cosmiq.db"),
	})
	out = append(out, backend{
		name:      "sqlite",
		ledger:    persistence.NewSQLiteSubscriptionStore(sqliteConn),
		freeUsage: persistence.NewSQLiteFreeUsageStore(sqliteConn),
	})

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		pgConn := openConnection(t, database.Config{Driver: database.DriverPostgres, URL: url})
		for _, table := range []string{"purchases", "subscriptions", "free_usage"} {
			_, err := pgConn.Exec(context.Background(), "DELETE FROM "+table)
			require.NoError(t, err)
		}
		out = append(out, backend{
			name:      "postgres",
			ledger:    persistence.NewPostgresSubscriptionStore(pgConn),
			freeUsage: persistence.NewPostgresFreeUsageStore(pgConn),
		})
	}
	return out
}

func openConnection(t *testing.T, cfg database.Config) database.Connection {
	t.Helper()
	ctx := context.Background()

	conn, err := database.NewConnection(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrations.Run(ctx, conn))
	return conn
}

// uniqueID keeps backends that outlive a subtest (postgres) free of cross-test rows.
func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

func activeSubscription(userID string, periodStart time.Time) *domain.Subscription {
	end := periodStart.AddDate(0, 1, 0)
	return &domain.Subscription{
		UserID:             userID,
		Plan:               domain.PlanMonthly,
		Status:             domain.SubscriptionActive,
		CurrentPeriodStart: &periodStart,
		CurrentPeriodEnd:   &end,
	}
}

func completedPurchase(userID string, product domain.ProductType, quantity int, createdAt time.Time) *domain.Purchase {
	return &domain.Purchase{
		UserID:      userID,
		ProductType: product,
		Quantity:    quantity,
		Status:      domain.PurchaseCompleted,
		CreatedAt:   createdAt,
	}
}

func TestStores_SubscriptionRoundTrip(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			userID := uniqueID("sub")

			missing, err := b.ledger.GetSubscription(ctx, userID)
			require.NoError(t, err)
			assert.Nil(t, missing)

			start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
			sub := activeSubscription(userID, start)
			sub.StripeCustomerID = "cus_123"
			require.NoError(t, b.ledger.UpsertSubscription(ctx, sub))
			assert.NotEqual(t, uuid.Nil, sub.ID)

			got, err := b.ledger.GetSubscription(ctx, userID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, domain.PlanMonthly, got.Plan)
			assert.Equal(t, domain.SubscriptionActive, got.Status)
			assert.Equal(t, "cus_123", got.StripeCustomerID)
			require.NotNil(t, got.CurrentPeriodStart)
			assert.True(t, start.Equal(*got.CurrentPeriodStart))
			assert.True(t, got.IsActive())
		})
	}
}

func TestStores_UsageResetsOnPeriodRollover(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			userID := uniqueID("rollover")
			start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

			require.NoError(t, b.ledger.UpsertSubscription(ctx, activeSubscription(userID, start)))
			ok, err := b.ledger.UseSynastryRead(ctx, userID, 3)
			require.NoError(t, err)
			require.True(t, ok)
			ok, err = b.ledger.ClaimMonthlyReport(ctx, userID)
			require.NoError(t, err)
			require.True(t, ok)

			// Same period: webhook replays keep usage.
			require.NoError(t, b.ledger.UpsertSubscription(ctx, activeSubscription(userID, start)))
			got, err := b.ledger.GetSubscription(ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, 1, got.Usage.SynastryReads)
			assert.True(t, got.Usage.MonthlyReportClaimed)

			// Next period resets.
			require.NoError(t, b.ledger.UpsertSubscription(ctx, activeSubscription(userID, start.AddDate(0, 1, 0))))
			got, err = b.ledger.GetSubscription(ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, 0, got.Usage.SynastryReads)
			assert.False(t, got.Usage.MonthlyReportClaimed)
		})
	}
}

func TestStores_CreditLedger(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			userID := uniqueID("credits")
			base := time.Now().UTC().Add(-time.Hour)

			older := completedPurchase(userID, domain.ProductAsk, 1, base)
			newer := completedPurchase(userID, domain.ProductAsk, 2, base.Add(time.Minute))
			pending := completedPurchase(userID, domain.ProductAsk, 5, base.Add(2*time.Minute))
			pending.Status = domain.PurchasePending
			report := completedPurchase(userID, domain.ProductReport, 1, base.Add(3*time.Minute))
			report.ReportType = "natal"
			for _, p := range []*domain.Purchase{older, newer, pending, report} {
				require.NoError(t, b.ledger.RecordPurchase(ctx, p))
			}

			available, err := b.ledger.GetAvailableCredits(ctx, userID, domain.ProductAsk)
			require.NoError(t, err)
			assert.Equal(t, 3, available)

			balances, err := b.ledger.GetCreditBalances(ctx, userID, domain.CreditProducts)
			require.NoError(t, err)
			assert.Equal(t, map[domain.ProductType]int{
				domain.ProductAsk:         3,
				domain.ProductDetailPack:  0,
				domain.ProductSynastry:    0,
				domain.ProductCBTAnalysis: 0,
			}, balances)

			reports, err := b.ledger.PurchasedReportTypes(ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, []string{"natal"}, reports)

			// Oldest purchase is drained first.
			ok, err := b.ledger.ConsumeCredit(ctx, userID, domain.ProductAsk)
			require.NoError(t, err)
			require.True(t, ok)

			purchases, err := b.ledger.GetPurchases(ctx, userID)
			require.NoError(t, err)
			require.Len(t, purchases, 4)
			assert.Equal(t, older.ID, purchases[0].ID)
			assert.Equal(t, 1, purchases[0].Consumed)
			assert.Equal(t, 0, purchases[1].Consumed)

			for i := 0; i < 2; i++ {
				ok, err = b.ledger.ConsumeCredit(ctx, userID, domain.ProductAsk)
				require.NoError(t, err)
				require.True(t, ok)
			}
			ok, err = b.ledger.ConsumeCredit(ctx, userID, domain.ProductAsk)
			require.NoError(t, err)
			assert.False(t, ok, "pending purchases are never debited")

			require.NoError(t, b.ledger.SetPurchaseStatus(ctx, pending.ID, domain.PurchaseCompleted))
			available, err = b.ledger.GetAvailableCredits(ctx, userID, domain.ProductAsk)
			require.NoError(t, err)
			assert.Equal(t, 5, available)

			require.NoError(t, b.ledger.SetPurchaseStatus(ctx, pending.ID, domain.PurchaseRefunded))
			available, err = b.ledger.GetAvailableCredits(ctx, userID, domain.ProductAsk)
			require.NoError(t, err)
			assert.Equal(t, 0, available)

			err = b.ledger.SetPurchaseStatus(ctx, uuid.New(), domain.PurchaseRefunded)
			assert.ErrorIs(t, err, domain.ErrPurchaseNotFound)
		})
	}
}

func TestStores_DebitOrderFollowsCreatedAt(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			userID := uniqueID("order")
			backdated := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)

			// Recorded first but bought later.
			recent := completedPurchase(userID, domain.ProductSynastry, 1, time.Time{})
			require.NoError(t, b.ledger.RecordPurchase(ctx, recent))
			assert.False(t, recent.CreatedAt.IsZero())

			imported := completedPurchase(userID, domain.ProductSynastry, 1, backdated)
			require.NoError(t, b.ledger.RecordPurchase(ctx, imported))
			assert.True(t, imported.CreatedAt.Equal(backdated))

			ok, err := b.ledger.ConsumeCredit(ctx, userID, domain.ProductSynastry)
			require.NoError(t, err)
			require.True(t, ok)

			purchases, err := b.ledger.GetPurchases(ctx, userID)
			require.NoError(t, err)
			require.Len(t, purchases, 2)
			assert.Equal(t, imported.ID, purchases[0].ID)
			assert.True(t, purchases[0].CreatedAt.Equal(backdated))
			assert.Equal(t, 1, purchases[0].Consumed)
			assert.Equal(t, 0, purchases[1].Consumed)
		})
	}
}

func TestStores_SynastryAndReportGuards(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			userID := uniqueID("guards")

			ok, err := b.ledger.UseSynastryRead(ctx, userID, 3)
			require.NoError(t, err)
			assert.False(t, ok, "no subscription")

			require.NoError(t, b.ledger.UpsertSubscription(ctx, activeSubscription(userID, time.Now().UTC())))
			for i := 0; i < 2; i++ {
				ok, err = b.ledger.UseSynastryRead(ctx, userID, 2)
				require.NoError(t, err)
				assert.True(t, ok)
			}
			ok, err = b.ledger.UseSynastryRead(ctx, userID, 2)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = b.ledger.ClaimMonthlyReport(ctx, userID)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = b.ledger.ClaimMonthlyReport(ctx, userID)
			require.NoError(t, err)
			assert.False(t, ok)

			canceled := activeSubscription(userID, time.Now().UTC().AddDate(0, 1, 0))
			canceled.Status = domain.SubscriptionCanceled
			require.NoError(t, b.ledger.UpsertSubscription(ctx, canceled))
			ok, err = b.ledger.UseSynastryRead(ctx, userID, 10)
			require.NoError(t, err)
			assert.False(t, ok, "canceled subscriptions grant nothing")
		})
	}
}

func TestStores_FreeUsageLifecycle(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			fp := uniqueID("fp")

			usage, err := b.freeUsage.Get(ctx, fp)
			require.NoError(t, err)
			assert.Nil(t, usage)

			ok, err := b.freeUsage.Increment(ctx, fp, domain.CounterAsk, 3)
			require.NoError(t, err)
			assert.False(t, ok, "increment never creates the row")

			usage, err = b.freeUsage.GetOrCreate(ctx, fp, "203.0.113.7")
			require.NoError(t, err)
			require.NotNil(t, usage)
			assert.Equal(t, fp, usage.Fingerprint)
			assert.Equal(t, "203.0.113.7", usage.IPAddress)
			assert.Equal(t, 0, usage.AskUsed)

			ok, err = b.freeUsage.Increment(ctx, fp, domain.CounterDetail, 1)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = b.freeUsage.Increment(ctx, fp, domain.CounterDetail, 1)
			require.NoError(t, err)
			assert.False(t, ok)

			again, err := b.freeUsage.GetOrCreate(ctx, fp, "198.51.100.1")
			require.NoError(t, err)
			assert.Equal(t, 1, again.DetailUsed)
			assert.Equal(t, "203.0.113.7", again.IPAddress, "existing row is not overwritten")

			_, err = b.freeUsage.Increment(ctx, fp, domain.FreeCounter("bogus"), 1)
			if b.name != "memory" {
				assert.Error(t, err)
			}
		})
	}
}

func TestStores_ConcurrentFreeIncrementsNeverExceedLimit(t *testing.T) {
	const limit, callers = 3, 20

	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			fp := uniqueID("race")

			var wg sync.WaitGroup
			var granted atomic.Int32
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := b.freeUsage.GetOrCreate(ctx, fp, ""); err != nil {
						t.Error(err)
						return
					}
					ok, err := b.freeUsage.Increment(ctx, fp, domain.CounterAsk, limit)
					if err != nil {
						t.Error(err)
						return
					}
					if ok {
						granted.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(limit), granted.Load())
			usage, err := b.freeUsage.Get(ctx, fp)
			require.NoError(t, err)
			assert.Equal(t, limit, usage.AskUsed)
		})
	}
}

func TestStores_ConcurrentCreditDebitsNeverExceedBalance(t *testing.T) {
	const callers = 12

	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			userID := uniqueID("race")
			base := time.Now().UTC().Add(-time.Hour)
			require.NoError(t, b.ledger.RecordPurchase(ctx, completedPurchase(userID, domain.ProductSynastry, 2, base)))
			require.NoError(t, b.ledger.RecordPurchase(ctx, completedPurchase(userID, domain.ProductSynastry, 3, base.Add(time.Second))))

			var wg sync.WaitGroup
			var granted atomic.Int32
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := b.ledger.ConsumeCredit(ctx, userID, domain.ProductSynastry)
					if err != nil {
						t.Error(err)
						return
					}
					if ok {
						granted.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.LessOrEqual(t, granted.Load(), int32(5))
			available, err := b.ledger.GetAvailableCredits(ctx, userID, domain.ProductSynastry)
			require.NoError(t, err)
			assert.Equal(t, 5-int(granted.Load()), available)
			assert.GreaterOrEqual(t, available, 0)
		})
	}
}

func TestStores_ConcurrentSynastryReadsNeverExceedAllowance(t *testing.T) {
	const allowance, callers = 3, 15

	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			userID := uniqueID("race")
			require.NoError(t, b.ledger.UpsertSubscription(ctx, activeSubscription(userID, time.Now().UTC())))

			var wg sync.WaitGroup
			var granted atomic.Int32
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := b.ledger.UseSynastryRead(ctx, userID, allowance)
					if err != nil {
						t.Error(err)
						return
					}
					if ok {
						granted.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(allowance), granted.Load())
		})
	}
}
