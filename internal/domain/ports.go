package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type CalculationRepository interface {
	// Write paths
	Create(ctx context.Context, c Calculation) error
	// Update persists c only when the stored version still equals
	// expectVersion; returns ErrStaleVersion otherwise. The caller bumps
	// c.Version before the write.
	Update(ctx context.Context, c Calculation, expectVersion int64) error
	AppendOverride(ctx context.Context, e OverrideEntry) error
	LogTransition(ctx context.Context, id string, from, to ApprovalStatus, actor string) error

	// Read paths
	Get(ctx context.Context, id string) (Calculation, error)
	ListIDs(ctx context.Context) ([]string, error)
	ListOverrides(ctx context.Context, id string) ([]OverrideEntry, error)
}

type RateProvider interface {
	GetLatestRates(ctx context.Context, base string) (map[string]decimal.Decimal, time.Time, error)
}

type PriceSuggester interface {
	SuggestPrice(ctx context.Context, hotelName string, stars, roomCount int, averagePrice decimal.Decimal) (PriceSuggestion, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
