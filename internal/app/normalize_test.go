package app_test

import (
	"testing"

	"tripz_dealdesk/internal/app"
)

func fieldsOf(t *testing.T, raw app.RawInput) (map[string]string, int) {
	t.Helper()
	_, warns := app.Normalize(raw)
	m := make(map[string]string, len(warns))
	for _, w := range warns {
		m[w.Field] = w.Reason
	}
	return m, len(warns)
}

func TestNormalize_HappyPath(t *testing.T) {
	in, warns := app.Normalize(app.RawInput{
		HotelName:         " Hotel Adler ",
		Stars:             "4",
		RoomCount:         "120",
		OccupancyRate:     "62",
		AveragePrice:      "58.50",
		VoucherValue:      "34",
		OperationalCosts:  "6",
		ProjectCostsGross: "12000",
		VATRate:           "0.19",
		CurrencyCode:      "eur",
	})
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if in.HotelName != "Hotel Adler" || in.Stars != 4 || in.RoomCount != 120 {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.AveragePrice.StringFixed(2) != "58.50" || in.CurrencyCode != "EUR" {
		t.Fatalf("unexpected input: %+v", in)
	}
}

func TestNormalize_LenientDefaultsWithWarnings(t *testing.T) {
	reasons, n := fieldsOf(t, app.RawInput{
		Stars:             "4",
		RoomCount:         "abc",
		AveragePrice:      "-12",
		VoucherValue:      "35",
		ProjectCostsGross: "",
	})
	if n == 0 {
		t.Fatalf("expected warnings")
	}
	if _, ok := reasons["roomCount"]; !ok {
		t.Fatalf("expected a roomCount warning, got %v", reasons)
	}
	if _, ok := reasons["averagePrice"]; !ok {
		t.Fatalf("expected an averagePrice warning, got %v", reasons)
	}
	if _, ok := reasons["projectCostsGross"]; !ok {
		t.Fatalf("expected a projectCostsGross warning, got %v", reasons)
	}

	in, _ := app.Normalize(app.RawInput{Stars: "4", RoomCount: "abc", AveragePrice: "-12", VoucherValue: "35"})
	if !in.AveragePrice.IsZero() || in.RoomCount != 0 {
		t.Fatalf("bad fields must default to 0: %+v", in)
	}
}

// Stars outside 1..5 pass through unclamped so rule 1 can see them.
func TestNormalize_StarsPassThrough(t *testing.T) {
	in, _ := app.Normalize(app.RawInput{Stars: "6", VoucherValue: "20"})
	if in.Stars != 6 {
		t.Fatalf("stars = %d, want 6 (unclamped)", in.Stars)
	}
}

func TestNormalize_VoucherDefaultsFromStars(t *testing.T) {
	cases := map[string]string{"3": "30", "4": "35", "5": "45"}
	for stars, want := range cases {
		in, warns := app.Normalize(app.RawInput{Stars: stars})
		if in.VoucherValue.StringFixed(0) != want {
			t.Fatalf("stars=%s: voucher = %s, want %s", stars, in.VoucherValue, want)
		}
		found := false
		for _, w := range warns {
			if w.Field == "voucherValue" {
				found = true
			}
		}
		if !found {
			t.Fatalf("stars=%s: defaulted voucher must warn", stars)
		}
	}

	// no default for categories outside the financeable set
	in, _ := app.Normalize(app.RawInput{Stars: "2"})
	if !in.VoucherValue.IsZero() {
		t.Fatalf("stars=2: voucher = %s, want 0", in.VoucherValue)
	}
}

func TestNormalize_DecimalComma(t *testing.T) {
	in, warns := app.Normalize(app.RawInput{Stars: "3", VoucherValue: "29,90"})
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if in.VoucherValue.StringFixed(2) != "29.90" {
		t.Fatalf("voucher = %s, want 29.90", in.VoucherValue)
	}
}

func TestNormalizeTripzMultiplier(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"", "0.75"},
		{"0", "0"},
		{"0.5", "0.5"},
		{"1", "1"},
		{"1.4", "1"},
		{"-0.2", "0"},
		{"xyz", "0.75"},
	}
	for _, c := range cases {
		got, _ := app.NormalizeTripzMultiplier(c.raw)
		if got.String() != c.want {
			t.Fatalf("raw=%q: got %s, want %s", c.raw, got, c.want)
		}
	}
}
