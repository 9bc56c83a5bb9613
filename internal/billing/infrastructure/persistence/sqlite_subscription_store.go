package persistence

import (
	"context"
	"strings"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// SQLiteSubscriptionStore implements the subscription ledger with SQLite.
type SQLiteSubscriptionStore struct {
	conn database.Connection
}

// NewSQLiteSubscriptionStore creates a new store.
func NewSQLiteSubscriptionStore(conn database.Connection) *SQLiteSubscriptionStore {
	return &SQLiteSubscriptionStore{conn: conn}
}

func (s *SQLiteSubscriptionStore) db(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, s.conn)
}

// GetSubscription returns the subscription for a user.
func (s *SQLiteSubscriptionStore) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `
		SELECT id, user_id, plan, status, current_period_start, current_period_end,
		       cancel_at_period_end, synastry_reads, monthly_report_claimed,
		       stripe_customer_id, stripe_subscription_id, created_at, updated_at
		FROM subscriptions
		WHERE user_id = ?
	`

	var (
		sub            domain.Subscription
		idStr          string
		plan, status   string
		periodStartStr *string
		periodEndStr   *string
		createdAtStr   string
		updatedAtStr   string
	)

	err := s.db(ctx).QueryRow(ctx, query, userID).Scan(
		&idStr,
		&sub.UserID,
		&plan,
		&status,
		&periodStartStr,
		&periodEndStr,
		&sub.CancelAtPeriodEnd,
		&sub.Usage.SynastryReads,
		&sub.Usage.MonthlyReportClaimed,
		&sub.StripeCustomerID,
		&sub.StripeSubscriptionID,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}

	sub.ID, _ = uuid.Parse(idStr)
	sub.Plan = domain.Plan(plan)
	sub.Status = domain.SubscriptionStatus(status)
	sub.CurrentPeriodStart = parseNullableSQLiteTime(periodStartStr)
	sub.CurrentPeriodEnd = parseNullableSQLiteTime(periodEndStr)
	sub.CreatedAt = parseSQLiteTime(createdAtStr)
	sub.UpdatedAt = parseSQLiteTime(updatedAtStr)
	return &sub, nil
}

// GetAvailableCredits sums unconsumed units of completed purchases.
func (s *SQLiteSubscriptionStore) GetAvailableCredits(ctx context.Context, userID string, product domain.ProductType) (int, error) {
	query := `
		SELECT COALESCE(SUM(quantity - consumed), 0)
		FROM purchases
		WHERE user_id = ? AND product_type = ? AND status = 'completed' AND consumed < quantity
	`
	var total int
	if err := s.db(ctx).QueryRow(ctx, query, userID, string(product)).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// GetCreditBalances returns the available units per product.
func (s *SQLiteSubscriptionStore) GetCreditBalances(ctx context.Context, userID string, products []domain.ProductType) (map[domain.ProductType]int, error) {
	balances := make(map[domain.ProductType]int, len(products))
	if len(products) == 0 {
		return balances, nil
	}

	args := make([]any, 0, len(products)+1)
	args = append(args, userID)
	placeholders := make([]string, 0, len(products))
	for _, product := range products {
		balances[product] = 0
		args = append(args, string(product))
		placeholders = append(placeholders, "?")
	}

	query := `
		SELECT product_type, SUM(quantity - consumed)
		FROM purchases
		WHERE user_id = ? AND status = 'completed' AND consumed < quantity
		  AND product_type IN (` + strings.Join(placeholders, ", ") + `)
		GROUP BY product_type
	`
	rows, err := s.db(ctx).Query(ctx, query, args...)
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
func (s *SQLiteSubscriptionStore) GetPurchases(ctx context.Context, userID string) ([]domain.Purchase, error) {
	query := `
		SELECT id, user_id, product_type, report_type, quantity, consumed, status,
		       stripe_payment_id, created_at, updated_at
		FROM purchases
		WHERE user_id = ?
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
			p            domain.Purchase
			idStr        string
			product      string
			status       string
			createdAtStr string
			updatedAtStr string
		)
		if err := rows.Scan(&idStr, &p.UserID, &product, &p.ReportType, &p.Quantity, &p.Consumed,
			&status, &p.StripePaymentID, &createdAtStr, &updatedAtStr); err != nil {
			return nil, err
		}
		p.ID, _ = uuid.Parse(idStr)
		p.ProductType = domain.ProductType(product)
		p.Status = domain.PurchaseStatus(status)
		p.CreatedAt = parseSQLiteTime(createdAtStr)
		p.UpdatedAt = parseSQLiteTime(updatedAtStr)
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// PurchasedReportTypes returns the distinct owned report types.
func (s *SQLiteSubscriptionStore) PurchasedReportTypes(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT DISTINCT report_type
		FROM purchases
		WHERE user_id = ? AND product_type = 'report' AND status = 'completed' AND report_type <> ''
		ORDER BY report_type
	`
	rows, err := s.db(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]string, 0)
	for rows.Next() {
		var report string
		if err := rows.Scan(&report); err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// ConsumeCredit debits the oldest completed purchase with units left.
// The consumed < quantity guard is re-checked by the UPDATE itself.
func (s *SQLiteSubscriptionStore) ConsumeCredit(ctx context.Context, userID string, product domain.ProductType) (bool, error) {
	query := `
		UPDATE purchases
		SET consumed = consumed + 1, updated_at = ?
		WHERE id = (
			SELECT id FROM purchases
			WHERE user_id = ? AND product_type = ? AND status = 'completed' AND consumed < quantity
			ORDER BY created_at, id
			LIMIT 1
		)
		AND consumed < quantity
	`

	for attempt := 0; attempt < maxConsumeAttempts; attempt++ {
		res, err := s.db(ctx).Exec(ctx, query, formatSQLiteTime(time.Now()), userID, string(product))
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
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
func (s *SQLiteSubscriptionStore) UseSynastryRead(ctx context.Context, userID string, allowance int) (bool, error) {
	query := `
		UPDATE subscriptions
		SET synastry_reads = synastry_reads + 1, updated_at = ?
		WHERE user_id = ? AND status IN ('active', 'trialing') AND synastry_reads < ?
	`
	return s.guardedUpdate(ctx, query, formatSQLiteTime(time.Now()), userID, allowance)
}

// ClaimMonthlyReport flips the period's claim flag once.
func (s *SQLiteSubscriptionStore) ClaimMonthlyReport(ctx context.Context, userID string) (bool, error) {
	query := `
		UPDATE subscriptions
		SET monthly_report_claimed = 1, updated_at = ?
		WHERE user_id = ? AND status IN ('active', 'trialing') AND monthly_report_claimed = 0
	`
	return s.guardedUpdate(ctx, query, formatSQLiteTime(time.Now()), userID)
}

func (s *SQLiteSubscriptionStore) guardedUpdate(ctx context.Context, query string, args ...any) (bool, error) {
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
func (s *SQLiteSubscriptionStore) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	now := formatSQLiteTime(time.Now())
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	query := `
		INSERT INTO subscriptions (
			id, user_id, plan, status, current_period_start, current_period_end,
			cancel_at_period_end, synastry_reads, monthly_report_claimed,
			stripe_customer_id, stripe_subscription_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			plan = excluded.plan,
			status = excluded.status,
			synastry_reads = CASE
				WHEN subscriptions.current_period_start IS excluded.current_period_start
				THEN subscriptions.synastry_reads ELSE 0 END,
			monthly_report_claimed = CASE
				WHEN subscriptions.current_period_start IS excluded.current_period_start
				THEN subscriptions.monthly_report_claimed ELSE 0 END,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			stripe_customer_id = excluded.stripe_customer_id,
			stripe_subscription_id = excluded.stripe_subscription_id,
			updated_at = excluded.updated_at
	`

	_, err := s.db(ctx).Exec(ctx, query,
		sub.ID.String(),
		sub.UserID,
		string(sub.Plan),
		string(sub.Status),
		nullableSQLiteTime(sub.CurrentPeriodStart),
		nullableSQLiteTime(sub.CurrentPeriodEnd),
		sub.CancelAtPeriodEnd,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
		now,
		now,
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

// RecordPurchase inserts a purchase.
func (s *SQLiteSubscriptionStore) RecordPurchase(ctx context.Context, p *domain.Purchase) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `
		INSERT INTO purchases (
			id, user_id, product_type, report_type, quantity, consumed, status,
			stripe_payment_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db(ctx).Exec(ctx, query,
		p.ID.String(),
		p.UserID,
		string(p.ProductType),
		p.ReportType,
		p.Quantity,
		p.Consumed,
		string(p.Status),
		p.StripePaymentID,
		formatSQLiteTime(p.CreatedAt),
		formatSQLiteTime(p.UpdatedAt),
	)
	return err
}

// SetPurchaseStatus changes the payment status of a purchase.
func (s *SQLiteSubscriptionStore) SetPurchaseStatus(ctx context.Context, purchaseID uuid.UUID, status domain.PurchaseStatus) error {
	ok, err := s.guardedUpdate(ctx,
		`UPDATE purchases SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatSQLiteTime(time.Now()), purchaseID.String())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrPurchaseNotFound
	}
	return nil
}

var (
	_ domain.SubscriptionStore = (*SQLiteSubscriptionStore)(nil)
	_ domain.SubscriptionAdmin = (*SQLiteSubscriptionStore)(nil)
)
