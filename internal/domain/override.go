package domain

import "time"

// OverrideEntry is one append-only audit record of a human correcting an
// engine-suggested value. Entries are never updated or deleted; the
// justification is the only trail of why a suggestion was not used.
type OverrideEntry struct {
	ID            string    `json:"id"`
	CalculationID string    `json:"calculationId"`
	FieldName     string    `json:"fieldName"`
	PreviousValue string    `json:"previousValue"`
	NewValue      string    `json:"newValue"`
	Justification string    `json:"justification"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Overridable fields, as accepted by ApplyOverride.
const (
	FieldActualPrice  = "actualPrice"
	FieldVoucherValue = "voucherValue"
	FieldAveragePrice = "averagePrice"
)
