package app

import (
	"strings"

	"github.com/shopspring/decimal"

	"tripz_dealdesk/internal/domain"
)

// RawInput carries the commercial inputs exactly as they arrived from the
// caller (form-style strings; the HTTP layer folds JSON numbers into the
// same shape). Nothing here is trusted.
type RawInput struct {
	HotelName         string `json:"hotelName"`
	Stars             string `json:"stars"`
	RoomCount         string `json:"roomCount"`
	OccupancyRate     string `json:"occupancyRate"`
	AveragePrice      string `json:"averagePrice"`
	VoucherValue      string `json:"voucherValue"`
	OperationalCosts  string `json:"operationalCosts"`
	ProjectCostsGross string `json:"projectCostsGross"`
	VATRate           string `json:"vatRate"`
	CurrencyCode      string `json:"currencyCode"`
}

// voucherDefaults maps a star category to the default per-room-night
// voucher value used when the caller supplies none.
var voucherDefaults = map[int]decimal.Decimal{
	3: decimal.NewFromInt(30),
	4: decimal.NewFromInt(35),
	5: decimal.NewFromInt(45),
}

// Normalize coerces a raw record into a PricingInput. Bad numeric fields
// default to 0 and produce a FieldWarning instead of an error; this keeps
// the legacy lenient-parsing contract while making every coercion
// visible to the caller. Stars are passed through unclamped: rule 1 of
// the approval policy needs to see out-of-range categories.
func Normalize(raw RawInput) (domain.PricingInput, []domain.FieldWarning) {
	var warns []domain.FieldWarning

	warn := func(field, rawVal, reason string) {
		warns = append(warns, domain.FieldWarning{Field: field, Raw: rawVal, Reason: reason})
	}

	num := func(field, rawVal string, allowNegative bool) decimal.Decimal {
		s := strings.TrimSpace(rawVal)
		if s == "" {
			warn(field, rawVal, "missing, defaulted to 0")
			return decimal.Zero
		}
		// tolerate German-style decimal commas from form input
		s = strings.ReplaceAll(s, ",", ".")
		d, err := decimal.NewFromString(s)
		if err != nil {
			warn(field, rawVal, "not numeric, defaulted to 0")
			return decimal.Zero
		}
		if d.IsNegative() && !allowNegative {
			warn(field, rawVal, "negative not allowed, defaulted to 0")
			return decimal.Zero
		}
		return d
	}

	in := domain.PricingInput{HotelName: strings.TrimSpace(raw.HotelName)}

	stars := num("stars", raw.Stars, false)
	if !stars.IsInteger() {
		warn("stars", raw.Stars, "fractional star category truncated")
	}
	in.Stars = int(stars.IntPart())

	roomCount := num("roomCount", raw.RoomCount, false)
	in.RoomCount = int(roomCount.IntPart())

	in.OccupancyRate = num("occupancyRate", raw.OccupancyRate, false)
	in.AveragePrice = num("averagePrice", raw.AveragePrice, false)
	in.OperationalCosts = num("operationalCosts", raw.OperationalCosts, false)
	in.ProjectCostsGross = num("projectCostsGross", raw.ProjectCostsGross, false)
	in.VATRate = num("vatRate", raw.VATRate, false)

	if strings.TrimSpace(raw.VoucherValue) == "" {
		if def, ok := voucherDefaults[in.Stars]; ok {
			in.VoucherValue = def
			warn("voucherValue", raw.VoucherValue, "missing, defaulted from star category")
		} else {
			in.VoucherValue = decimal.Zero
			warn("voucherValue", raw.VoucherValue, "missing and no star default, defaulted to 0")
		}
	} else {
		in.VoucherValue = num("voucherValue", raw.VoucherValue, false)
	}

	code := strings.ToUpper(strings.TrimSpace(raw.CurrencyCode))
	if code == "" {
		code = "EUR"
	} else if len(code) != 3 {
		warn("currencyCode", raw.CurrencyCode, "not a 3-letter code, defaulted to EUR")
		code = "EUR"
	}
	in.CurrencyCode = code

	return in, warns
}

// NormalizeTripzMultiplier parses the user-adjustable channel fraction.
// Absent means the 0.75 default; out-of-range values clamp into [0,1].
// A literal 0 is legal and distinct from absent.
func NormalizeTripzMultiplier(raw string) (decimal.Decimal, []domain.FieldWarning) {
	one := decimal.NewFromInt(1)
	def := decimal.NewFromFloat(0.75)

	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return def, []domain.FieldWarning{{Field: "tripzMultiplier", Raw: raw, Reason: "not numeric, defaulted to 0.75"}}
	}
	if d.IsNegative() {
		return decimal.Zero, []domain.FieldWarning{{Field: "tripzMultiplier", Raw: raw, Reason: "below 0, clamped"}}
	}
	if d.GreaterThan(one) {
		return one, []domain.FieldWarning{{Field: "tripzMultiplier", Raw: raw, Reason: "above 1, clamped"}}
	}
	return d, nil
}
