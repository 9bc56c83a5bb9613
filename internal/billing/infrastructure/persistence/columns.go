package persistence

import (
	"fmt"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
)

// sqliteTimeLayout has fixed-width fractions so TEXT columns sort chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// freeUsageColumn maps a counter onto its column. Counter names never reach SQL unmapped.
func freeUsageColumn(counter domain.FreeCounter) (string, error) {
	switch counter {
	case domain.CounterAsk:
		return "ask_used", nil
	case domain.CounterDetail:
		return "detail_used", nil
	case domain.CounterSynastry:
		return "synastry_used", nil
	default:
		return "", fmt.Errorf("unknown free usage counter %q", counter)
	}
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullableSQLiteTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatSQLiteTime(*t)
}

func parseNullableSQLiteTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t := parseSQLiteTime(*s)
	return &t
}

// maxConsumeAttempts bounds retries when a concurrent debit drains the selected purchase.
const maxConsumeAttempts = 3
