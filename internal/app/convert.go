package app

import (
	"github.com/shopspring/decimal"

	"tripz_dealdesk/internal/domain"
)

// Conversion is the outcome of one currency conversion. The converter
// never fails: a missing rate returns the amount unconverted with
// Missing set, a fallback snapshot marks the result Stale.
type Conversion struct {
	Amount  decimal.Decimal
	Stale   bool
	Missing bool
}

// Convert moves an amount between currencies via the EUR pivot, rounding
// to 2 decimals exactly once per call. Identity conversions return the
// amount bit-for-bit, unrounded. Conversion happens only at the
// ingestion and presentation boundaries, never inside a formula.
func Convert(amount decimal.Decimal, from, to string, snap domain.RateSnapshot) Conversion {
	if from == to {
		return Conversion{Amount: amount, Stale: snap.IsFallback}
	}

	fromRate, okFrom := snap.Rate(from)
	toRate, okTo := snap.Rate(to)
	if !okFrom || !okTo || fromRate.IsZero() {
		return Conversion{Amount: amount, Stale: snap.IsFallback, Missing: true}
	}

	converted := amount.Div(fromRate).Mul(toRate).Round(2)
	return Conversion{Amount: converted, Stale: snap.IsFallback}
}
