package app

import (
	"fmt"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	billingPersistence "github.com/cosmiq-app/cosmiq/internal/billing/infrastructure/persistence"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/database"
	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/outbox"
)

// SubscriptionLedger is a subscription store that also accepts admin writes.
type SubscriptionLedger interface {
	domain.SubscriptionStore
	domain.SubscriptionAdmin
}

// sqlStores are the database-backed stores sharing one connection, so a unit
// of work on it covers billing writes and their outbox rows together.
type sqlStores struct {
	ledger    SubscriptionLedger
	freeUsage domain.FreeUsageStore
	outbox    outbox.Repository
}

func openStores(conn database.Connection) (sqlStores, error) {
	var s sqlStores
	switch driver := conn.Driver(); driver {
	case database.DriverPostgres:
		s.ledger = billingPersistence.NewPostgresSubscriptionStore(conn)
		s.freeUsage = billingPersistence.NewPostgresFreeUsageStore(conn)
	case database.DriverSQLite:
		s.ledger = billingPersistence.NewSQLiteSubscriptionStore(conn)
		s.freeUsage = billingPersistence.NewSQLiteFreeUsageStore(conn)
	default:
		return s, fmt.Errorf("no billing stores for driver %q", driver)
	}

	repo, err := outbox.NewSQLRepository(conn)
	if err != nil {
		return s, err
	}
	s.outbox = repo
	return s, nil
}
