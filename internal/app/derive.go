package app

import (
	"github.com/shopspring/decimal"

	"tripz_dealdesk/internal/domain"
)

// Tax constants of the settlement model: German VAT on the project
// volume, and the share of contract-revenue VAT reclaimable via the
// resale channel.
var (
	vatProdukt    = decimal.NewFromFloat(0.19)
	tripzVATShare = decimal.NewFromFloat(0.23)
	volumeUplift  = decimal.NewFromFloat(1.1)
	hundred       = decimal.NewFromInt(100)
)

// Derive computes the full metric set for one normalized input. Pure and
// total: any numeric input, zeros included, yields a result. All amounts
// are EUR; every derived value is rounded to 2 decimals at the end, not
// in intermediate steps. This is the single derivation in the codebase —
// the API, the override path and the batch recalculator all go through it.
func Derive(in domain.PricingInput, actualPrice, tripzMultiplier decimal.Decimal) domain.DerivedMetrics {
	m := domain.DerivedMetrics{
		ActualPrice:     actualPrice,
		TripzMultiplier: tripzMultiplier,
	}

	netPrice := in.VoucherValue.Sub(in.OperationalCosts)
	m.NetPrice = netPrice.Round(2)
	m.VATAmount = netPrice.Mul(in.VATRate).Round(2)
	m.TotalPrice = m.NetPrice.Add(m.VATAmount)

	profit := netPrice.Sub(in.OperationalCosts)
	m.ProfitMargin = profit.Round(2)
	m.MarginPercentage = pct(profit, in.VoucherValue)

	discount := in.AveragePrice.Sub(in.VoucherValue)
	m.DiscountVsMarket = discount.Round(2)
	m.DiscountPercentage = pct(discount, in.AveragePrice)

	// Guarded: a zero voucher value yields zero room nights, never a
	// division by zero.
	if !in.VoucherValue.IsZero() {
		m.RoomNights = in.ProjectCostsGross.Div(in.VoucherValue).Round(0).IntPart()
	}

	volume := decimal.NewFromInt(m.RoomNights).
		Mul(actualPrice.Mul(tripzMultiplier)).
		Mul(volumeUplift)
	m.ContractVolume = volume.Round(2)

	marge := volume.Sub(in.ProjectCostsGross)
	m.Marge = marge.Round(2)

	m.VorsteuerProdukt = in.ProjectCostsGross.Mul(vatProdukt).Round(2)
	m.VorsteuerTripz = volume.Mul(vatProdukt).Mul(tripzVATShare).Round(2)

	netto := m.VorsteuerProdukt.Sub(m.VorsteuerTripz)
	m.NettoSteuerzahlung = netto.Round(2)

	// Only a positive net tax payment reduces the margin; a tax credit
	// does not inflate it.
	taxDrag := netto
	if taxDrag.IsNegative() {
		taxDrag = decimal.Zero
	}
	m.MargeNachSteuern = marge.Sub(taxDrag).Round(2)
	m.MargeNachSteuernPct = pct(marge, volume)

	return m
}

// pct returns part/whole*100 rounded to 2 decimals, 0 when whole is 0.
func pct(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}
