package app_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tripz_dealdesk/internal/app"
	"tripz_dealdesk/internal/domain"
)

func liveSnapshot() domain.RateSnapshot {
	return domain.RateSnapshot{
		BaseCurrency: "EUR",
		Rates: map[string]decimal.Decimal{
			"USD": dec("1.10"),
			"GBP": dec("0.85"),
		},
		FetchedAt: time.Now().UTC(),
	}
}

func TestConvert_Identity(t *testing.T) {
	amount := dec("123.456") // deliberately more than 2 decimals
	c := app.Convert(amount, "USD", "USD", liveSnapshot())
	if !c.Amount.Equal(amount) {
		t.Fatalf("identity must be exact: got %s", c.Amount)
	}
	if c.Stale || c.Missing {
		t.Fatalf("identity must be clean: %+v", c)
	}
}

func TestConvert_EURPivot(t *testing.T) {
	// 110 USD -> 100 EUR at 1.10
	c := app.Convert(dec("110"), "USD", "EUR", liveSnapshot())
	if c.Amount.StringFixed(2) != "100.00" {
		t.Fatalf("got %s, want 100.00", c.Amount)
	}
	// 100 EUR -> 85 GBP at 0.85
	c = app.Convert(dec("100"), "EUR", "GBP", liveSnapshot())
	if c.Amount.StringFixed(2) != "85.00" {
		t.Fatalf("got %s, want 85.00", c.Amount)
	}
	// cross rate USD -> GBP through the pivot
	c = app.Convert(dec("110"), "USD", "GBP", liveSnapshot())
	if c.Amount.StringFixed(2) != "85.00" {
		t.Fatalf("got %s, want 85.00", c.Amount)
	}
}

func TestConvert_RoundTripWithinACent(t *testing.T) {
	snap := liveSnapshot()
	for _, amount := range []string{"1", "19.99", "333.33", "50000"} {
		x := dec(amount)
		there := app.Convert(x, "EUR", "USD", snap)
		back := app.Convert(there.Amount, "USD", "EUR", snap)
		if back.Amount.Sub(x).Abs().GreaterThan(dec("0.01")) {
			t.Fatalf("round trip of %s drifted: %s", amount, back.Amount)
		}
	}
}

func TestConvert_MissingRateDegrades(t *testing.T) {
	c := app.Convert(dec("100"), "CHF", "EUR", liveSnapshot())
	if !c.Missing {
		t.Fatalf("expected Missing for CHF")
	}
	if c.Amount.StringFixed(2) != "100.00" {
		t.Fatalf("missing rate must keep the amount: %s", c.Amount)
	}
}

func TestConvert_FallbackMarksStale(t *testing.T) {
	snap := app.FallbackSnapshot()
	c := app.Convert(dec("100"), "USD", "EUR", snap)
	if !c.Stale {
		t.Fatalf("fallback snapshot must mark conversions stale")
	}
	if c.Missing {
		t.Fatalf("USD is in the fallback table")
	}

	// identity through a fallback snapshot is still stale
	c = app.Convert(dec("100"), "EUR", "EUR", snap)
	if !c.Stale {
		t.Fatalf("identity through fallback must stay flagged")
	}
}
