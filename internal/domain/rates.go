package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateSnapshot is an immutable EUR-based exchange rate table. A refresh
// produces a new snapshot, never mutates one in place.
type RateSnapshot struct {
	BaseCurrency string                     `json:"baseCurrency"` // always EUR internally
	Rates        map[string]decimal.Decimal `json:"rates"`
	FetchedAt    time.Time                  `json:"fetchedAt"`
	IsFallback   bool                       `json:"isFallback"`
}

// Rate returns the EUR→code multiplier. The base currency always
// resolves to 1 even when absent from the table.
func (s RateSnapshot) Rate(code string) (decimal.Decimal, bool) {
	if code == s.BaseCurrency {
		return decimal.NewFromInt(1), true
	}
	r, ok := s.Rates[code]
	return r, ok
}
