package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"tripz_dealdesk/internal/domain"
)

const rateCacheKey = "fx:eur:latest"

// fallbackDate is the as-of date of the frozen rate table below.
var fallbackDate = time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)

// fallbackRates is a frozen ECB reference snapshot used when the live
// provider is unavailable. Values served from it carry IsFallback so the
// caller can surface "rates may be stale".
var fallbackRates = map[string]decimal.Decimal{
	"USD": decimal.NewFromFloat(1.0705),
	"GBP": decimal.NewFromFloat(0.8464),
	"CHF": decimal.NewFromFloat(0.9632),
	"JPY": decimal.NewFromFloat(172.25),
	"SEK": decimal.NewFromFloat(11.3590),
	"NOK": decimal.NewFromFloat(11.4630),
	"DKK": decimal.NewFromFloat(7.4583),
	"PLN": decimal.NewFromFloat(4.3130),
	"CZK": decimal.NewFromFloat(24.9340),
	"HUF": decimal.NewFromFloat(396.4300),
	"RON": decimal.NewFromFloat(4.9770),
	"AUD": decimal.NewFromFloat(1.6063),
	"CAD": decimal.NewFromFloat(1.4670),
}

// FallbackSnapshot returns the frozen rate table as a fresh value; the
// map is copied so callers cannot mutate the package table.
func FallbackSnapshot() domain.RateSnapshot {
	rates := make(map[string]decimal.Decimal, len(fallbackRates))
	for k, v := range fallbackRates {
		rates[k] = v
	}
	return domain.RateSnapshot{
		BaseCurrency: "EUR",
		Rates:        rates,
		FetchedAt:    fallbackDate,
		IsFallback:   true,
	}
}

// RateService serves EUR-based snapshots with a cache-aside policy.
// Concurrent refreshes are coalesced: callers arriving while a fetch is
// in flight share its result instead of issuing duplicate requests. A
// failed or timed-out refresh degrades to the fallback snapshot.
type RateService struct {
	provider domain.RateProvider
	cache    domain.Cache
	ttl      time.Duration
	timeout  time.Duration
	notifier Notifier
	sf       singleflight.Group
}

func NewRateService(p domain.RateProvider, c domain.Cache, ttl time.Duration, n Notifier) *RateService {
	if n == nil {
		n = NopNotifier{}
	}
	return &RateService{provider: p, cache: c, ttl: ttl, timeout: 10 * time.Second, notifier: n}
}

// Snapshot returns the current snapshot, refreshing through singleflight
// on a cache miss. It never returns an error: the worst case is the
// frozen fallback table.
func (s *RateService) Snapshot(ctx context.Context) domain.RateSnapshot {
	if s.cache != nil {
		var snap domain.RateSnapshot
		if ok, _ := s.cache.Get(ctx, rateCacheKey, &snap); ok && len(snap.Rates) > 0 {
			return snap
		}
	}
	return s.Refresh(ctx)
}

// Refresh forces a coalesced fetch from the provider.
func (s *RateService) Refresh(ctx context.Context) domain.RateSnapshot {
	v, _, _ := s.sf.Do(rateCacheKey, func() (any, error) {
		return s.fetch(ctx), nil
	})
	return v.(domain.RateSnapshot)
}

func (s *RateService) fetch(ctx context.Context) domain.RateSnapshot {
	s.notifier.Notify(TaskEvent{Task: "rate_refresh", Stage: StageStarted, At: time.Now().UTC()})

	// The fetch is shared across coalesced callers; detach it from any
	// single caller's cancellation and bound it by our own timeout.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	rates, fetchedAt, err := s.provider.GetLatestRates(fctx, "EUR")
	if err != nil {
		log.Warn().Err(err).Msg("rate refresh failed, serving fallback snapshot")
		s.notifier.Notify(TaskEvent{Task: "rate_refresh", Stage: StageFailed, Err: err.Error(), At: time.Now().UTC()})
		return FallbackSnapshot()
	}

	snap := domain.RateSnapshot{
		BaseCurrency: "EUR",
		Rates:        rates,
		FetchedAt:    fetchedAt,
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, rateCacheKey, snap, int(s.ttl.Seconds()))
	}
	s.notifier.Notify(TaskEvent{Task: "rate_refresh", Stage: StageCompleted, At: time.Now().UTC()})
	return snap
}
