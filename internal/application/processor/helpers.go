package processor

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ahtrading/posledger/internal/application/payload"
)

// businessDate resolves a document's posting date: an explicit payload
// date wins, otherwise the event's ingestion time in UTC.
func businessDate(explicit *payload.Date, eventCreatedAt time.Time) time.Time {
	if explicit != nil && !explicit.IsZero() {
		return explicit.Time
	}
	return eventCreatedAt.UTC().Truncate(24 * time.Hour)
}

func derefDecimal(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func normalizeMethod(method string) string {
	m := strings.ToLower(strings.TrimSpace(method))
	if m == "" {
		return "cash"
	}
	return m
}

func currencyOrUSD(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return "USD"
	}
	return c
}
