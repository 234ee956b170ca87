package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingInput is the normalized commercial input of a deal. Immutable
// once handed to the engine; corrections go through the override ledger.
type PricingInput struct {
	HotelName         string          `json:"hotelName"`
	Stars             int             `json:"stars"` // passed through unclamped, rule 1 needs the raw value
	RoomCount         int             `json:"roomCount"`
	OccupancyRate     decimal.Decimal `json:"occupancyRate"` // percent
	AveragePrice      decimal.Decimal `json:"averagePrice"`  // market room price, EUR
	VoucherValue      decimal.Decimal `json:"voucherValue"`  // per room-night paid to the hotel, EUR
	OperationalCosts  decimal.Decimal `json:"operationalCosts"`
	ProjectCostsGross decimal.Decimal `json:"projectCostsGross"` // total financing volume, EUR
	VATRate           decimal.Decimal `json:"vatRate"`           // fraction, e.g. 0.19
	CurrencyCode      string          `json:"currencyCode"`      // currency the raw figures arrived in

	// Overridden lists the fields corrected by a human, in override order.
	Overridden []string `json:"overridden,omitempty"`
}

// DerivedMetrics is the full set of monetary figures derived from one
// PricingInput. Always EUR, always produced as a whole.
type DerivedMetrics struct {
	NetPrice              decimal.Decimal `json:"netPrice"`
	VATAmount             decimal.Decimal `json:"vatAmount"`
	TotalPrice            decimal.Decimal `json:"totalPrice"`
	ProfitMargin          decimal.Decimal `json:"profitMargin"`
	MarginPercentage      decimal.Decimal `json:"marginPercentage"`
	DiscountVsMarket      decimal.Decimal `json:"discountVsMarket"`
	DiscountPercentage    decimal.Decimal `json:"discountPercentage"`
	RoomNights            int64           `json:"roomNights"`
	ContractVolume        decimal.Decimal `json:"contractVolumeEstimate"`
	Marge                 decimal.Decimal `json:"marge"`
	VorsteuerProdukt      decimal.Decimal `json:"vorsteuerProdukt"`
	VorsteuerTripz        decimal.Decimal `json:"vorsteuerTripz"`
	NettoSteuerzahlung    decimal.Decimal `json:"nettoSteuerzahlung"`
	MargeNachSteuern      decimal.Decimal `json:"margeNachSteuern"`
	MargeNachSteuernPct   decimal.Decimal `json:"margeNachSteuernPercentage"`
	ActualPrice           decimal.Decimal `json:"actualPrice"`     // resale price used for the volume estimate
	TripzMultiplier       decimal.Decimal `json:"tripzMultiplier"` // fraction of resale price payable by the channel
	RatesStale            bool            `json:"ratesStale,omitempty"`
}

// FieldWarning records a lenient-parsing incident: a raw field that was
// missing, non-numeric or negative and got defaulted instead of rejected.
type FieldWarning struct {
	Field  string `json:"field"`
	Raw    string `json:"raw,omitempty"`
	Reason string `json:"reason"`
}

// Calculation aggregates one deal's input, its derived metrics, the
// approval decision and the override history. Version is bumped on every
// write; writes against a stale version are rejected.
type Calculation struct {
	ID        string           `json:"id"`
	Version   int64            `json:"version"`
	Input     PricingInput     `json:"input"`
	Derived   DerivedMetrics   `json:"derived"`
	Approval  ApprovalDecision `json:"approval"`
	Overrides []OverrideEntry  `json:"overrides,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ApprovalRequest is the payload handed to the external approval
// workflow when a calculation is submitted.
type ApprovalRequest struct {
	CalculationID         string         `json:"calculationId"`
	MetricsSnapshot       DerivedMetrics `json:"metricsSnapshot"`
	BusinessJustification string         `json:"businessJustification"`
}

// PriceSuggestion is the opaque answer of the AI price service. It is an
// untrusted default for the resale price; deviating from it requires an
// override ledger entry.
type PriceSuggestion struct {
	SuggestedPrice       decimal.Decimal `json:"suggestedPrice"`
	ConfidencePercentage decimal.Decimal `json:"confidencePercentage"`
	Reasoning            string          `json:"reasoning"`
	BasedOnSimilarHotels int             `json:"basedOnSimilarHotels"`
}
