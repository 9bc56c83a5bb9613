package persistence

import (
	"context"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresSubscriptionStore implements the subscription ledger with PostgreSQL.
type PostgresSubscriptionStore struct {
	conn database.Connection
}

// NewPostgresSubscriptionStore creates a new store.
func NewPostgresSubscriptionStore(conn database.Connection) *PostgresSubscriptionStore {
	return &PostgresSubscriptionStore{conn: conn}
}

func (s *PostgresSubscriptionStore) db(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, s.conn)
}

// GetSubscription returns the subscription for a user.
func (s *PostgresSubscriptionStore) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `
		SELECT id, user_id, plan, status, current_period_start, current_period_end,
		       cancel_at_period_end, synastry_reads, monthly_report_claimed,
		       stripe_customer_id, stripe_subscription_id, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
	`

	var (
		sub          domain.Subscription
		plan, status string
	)
	err := s.db(ctx).QueryRow(ctx, query, userID).Scan(
		&sub.ID,
		&sub.UserID,
		&plan,
		&status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.Usage.SynastryReads,
		&sub.Usage.MonthlyReportClaimed,
		&sub.StripeCustomerID,
		&sub.StripeSubscriptionID,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	sub.Plan = domain.Plan(plan)
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}

// GetAvailableCredits sums unconsumed units of completed purchases.
func (s *PostgresSubscriptionStore) GetAvailableCredits(ctx context.Context, userID string, product domain.ProductType) (int, error) {
	query := `
		SELECT COALESCE(SUM(quantity - consumed), 0)
		FROM purchases
		WHERE user_id = $1 AND product_type = $2 AND status = 'completed' AND consumed < quantity
	`
	var total int
	if err := s.db(ctx).QueryRow(ctx, query, userID, string(product)).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// GetCreditBalances returns the available units per product.
func (s *PostgresSubscriptionStore) GetCreditBalances(ctx context.Context, userID string, products []domain.ProductType) (map[domain.ProductType]int, error) {
	balances := make(map[domain.ProductType]int, len(products))
	names := make([]string, 0, len(products))
	for _, product := range products {
		balances[product] = 0
		names = append(names, string(product))
	}
	if len(names) == 0 {
		return balances, nil
	}

	query := `
		SELECT product_type, SUM(quantity - consumed)
		FROM purchases
		WHERE user_id = $1 AND product_type = ANY($2) AND status = 'completed' AND consumed < quantity
		GROUP BY product_type
	`
	rows, err := s.db(ctx).Query(ctx, query, userID, pq.Array(names))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var product string
		var available int
		if err := rows.Scan(&product, &available); err != nil {
			return nil, err
		}
		balances[domain.ProductType(product)] = available
	}
	return balances, rows.Err()
}

// GetPurchases returns the user's purchases, oldest first.
func (s *PostgresSubscriptionStore) GetPurchases(ctx context.Context, userID string) ([]domain.Purchase, error) {
	query := `
		SELECT id, user_id, product_type, report_type, quantity, consumed, status,
		       stripe_payment_id, created_at, updated_at
		FROM purchases
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0)
	for rows.Next() {
		var (
			p               domain.Purchase
			product, status string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &product, &p.ReportType, &p.Quantity, &p.Consumed,
			&status, &p.StripePaymentID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.ProductType = domain.ProductType(product)
		p.Status = domain.PurchaseStatus(status)
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// PurchasedReportTypes returns the distinct report types the user owns.
func (s *PostgresSubscriptionStore) PurchasedReportTypes(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT COALESCE(array_agg(DISTINCT report_type ORDER BY report_type), '{}')
		FROM purchases
		WHERE user_id = $1 AND product_type = 'report' AND status = 'completed' AND report_type <> ''
	`
	var reports []string
	if err := s.db(ctx).QueryRow(ctx, query, userID).Scan(pq.Array(&reports)); err != nil {
		return nil, err
	}
	return reports, nil
}

// ConsumeCredit debits the oldest completed purchase with units left.
// The sub-select locks the chosen row; a concurrent debit that drained it
// makes the UPDATE miss, and the loop retries while units remain.
func (s *PostgresSubscriptionStore) ConsumeCredit(ctx context.Context, userID string, product domain.ProductType) (bool, error) {
	query := `
		UPDATE purchases
		SET consumed = consumed + 1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM purchases
			WHERE user_id = $1 AND product_type = $2 AND status = 'completed' AND consumed < quantity
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE
		)
		AND consumed < quantity
	`

	for attempt := 0; attempt < maxConsumeAttempts; attempt++ {
		ok, err := s.guardedUpdate(ctx, query, userID, string(product))
		if err != nil || ok {
			return ok, err
		}

		available, err := s.GetAvailableCredits(ctx, userID, product)
		if err != nil {
			return false, err
		}
		if available == 0 {
			return false, nil
		}
	}
	return false, nil
}

// UseSynastryRead increments the period counter while below allowance.
func (s *PostgresSubscriptionStore) UseSynastryRead(ctx context.Context, userID string, allowance int) (bool, error) {
	query := `
		UPDATE subscriptions
		SET synastry_reads = synastry_reads + 1, updated_at = NOW()
		WHERE user_id = $1 AND status IN ('active', 'trialing') AND synastry_reads < $2
	`
	return s.guardedUpdate(ctx, query, userID, allowance)
}

// ClaimMonthlyReport flips the period's claim flag once.
func (s *PostgresSubscriptionStore) ClaimMonthlyReport(ctx context.Context, userID string) (bool, error) {
	query := `
		UPDATE subscriptions
		SET monthly_report_claimed = TRUE, updated_at = NOW()
		WHERE user_id = $1 AND status IN ('active', 'trialing') AND NOT monthly_report_claimed
	`
	return s.guardedUpdate(ctx, query, userID)
}

func (s *PostgresSubscriptionStore) guardedUpdate(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db(ctx).Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpsertSubscription inserts or updates a subscription keyed by user.
// Usage counters are zeroed when the stored period start differs.
func (s *PostgresSubscriptionStore) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	query := `
		INSERT INTO subscriptions (
			id, user_id, plan, status, current_period_start, current_period_end,
			cancel_at_period_end, stripe_customer_id, stripe_subscription_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			synastry_reads = CASE
				WHEN subscriptions.current_period_start IS NOT DISTINCT FROM EXCLUDED.current_period_start
				THEN subscriptions.synastry_reads ELSE 0 END,
			monthly_report_claimed = CASE
				WHEN subscriptions.current_period_start IS NOT DISTINCT FROM EXCLUDED.current_period_start
				THEN subscriptions.monthly_report_claimed ELSE FALSE END,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			updated_at = NOW()
	`
	_, err := s.db(ctx).Exec(ctx, query,
		sub.ID,
		sub.UserID,
		string(sub.Plan),
		string(sub.Status),
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
	)
	if err != nil {
		return err
	}

	stored, err := s.GetSubscription(ctx, sub.UserID)
	if err != nil {
		return err
	}
	if stored != nil {
		*sub = *stored
	}
	return nil
}

// RecordPurchase inserts a purchase. A zero CreatedAt takes the column default.
func (s *PostgresSubscriptionStore) RecordPurchase(ctx context.Context, p *domain.Purchase) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	var createdAt *time.Time
	if !p.CreatedAt.IsZero() {
		createdAt = &p.CreatedAt
	}
	query := `
		INSERT INTO purchases (
			id, user_id, product_type, report_type, quantity, consumed, status, stripe_payment_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9::timestamptz, NOW()))
		RETURNING created_at, updated_at
	`
	return s.db(ctx).QueryRow(ctx, query,
		p.ID,
		p.UserID,
		string(p.ProductType),
		p.ReportType,
		p.Quantity,
		p.Consumed,
		string(p.Status),
		p.StripePaymentID,
		createdAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// SetPurchaseStatus changes the payment status of a purchase.
func (s *PostgresSubscriptionStore) SetPurchaseStatus(ctx context.Context, purchaseID uuid.UUID, status domain.PurchaseStatus) error {
	ok, err := s.guardedUpdate(ctx,
		`UPDATE purchases SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), purchaseID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrPurchaseNotFound
	}
	return nil
}

var (
	_ domain.SubscriptionStore = (*PostgresSubscriptionStore)(nil)
	_ domain.SubscriptionAdmin = (*PostgresSubscriptionStore)(nil)
)
