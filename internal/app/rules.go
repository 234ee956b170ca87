package app

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tripz_dealdesk/internal/domain"
)

// Policy holds the approval thresholds. Kept as data so tests (and a
// future config surface) can tighten single thresholds independently.
type Policy struct {
	AllowedStars    map[int]bool
	MarketPriceCaps map[int]decimal.Decimal // per star, EUR
	VoucherCaps     map[int]decimal.Decimal // per star, EUR
	MarginFloorPct  decimal.Decimal         // post-tax margin floor, percent
	DealSizeCeiling decimal.Decimal         // EUR, on estimated project cost
	CostFactor      decimal.Decimal         // operationalCosts -> estimated project cost
}

func DefaultPolicy() Policy {
	return Policy{
		AllowedStars: map[int]bool{3: true, 4: true, 5: true},
		MarketPriceCaps: map[int]decimal.Decimal{
			3: decimal.NewFromInt(50),
			4: decimal.NewFromInt(60),
			5: decimal.NewFromInt(75),
		},
		VoucherCaps: map[int]decimal.Decimal{
			3: decimal.NewFromInt(30),
			4: decimal.NewFromInt(35),
			5: decimal.NewFromInt(45),
		},
		MarginFloorPct:  decimal.NewFromInt(27),
		DealSizeCeiling: decimal.NewFromInt(50000),
		CostFactor:      decimal.NewFromFloat(2.74),
	}
}

// Evaluate runs all five rules in order and collects every violated
// reason; it never short-circuits. prev carries the decision currently
// on record: approved and rejected are sticky and come back unchanged,
// pending and the two automatic states are recomputed live.
func (p Policy) Evaluate(m domain.DerivedMetrics, in domain.PricingInput, prev domain.ApprovalDecision) domain.ApprovalDecision {
	if prev.Status.Terminal() {
		return prev
	}

	var reasons []string

	// Rule 1: star category outside the financeable set.
	if !p.AllowedStars[in.Stars] {
		reasons = append(reasons, fmt.Sprintf("star category %d is outside the allowed set (3-5)", in.Stars))
	}

	// Rule 2: market price above the per-star cap.
	if limit, ok := p.MarketPriceCaps[in.Stars]; ok && in.AveragePrice.GreaterThan(limit) {
		reasons = append(reasons, fmt.Sprintf("market price %s EUR exceeds the %d-star cap of %s EUR",
			in.AveragePrice.StringFixed(2), in.Stars, limit.StringFixed(2)))
	}

	// Rule 3: voucher price above the per-star cap.
	if limit, ok := p.VoucherCaps[in.Stars]; ok && in.VoucherValue.GreaterThan(limit) {
		reasons = append(reasons, fmt.Sprintf("voucher value %s EUR exceeds the %d-star cap of %s EUR",
			in.VoucherValue.StringFixed(2), in.Stars, limit.StringFixed(2)))
	}

	// Rule 4: post-tax margin below the floor.
	if m.MargeNachSteuernPct.LessThan(p.MarginFloorPct) {
		reasons = append(reasons, fmt.Sprintf("post-tax margin %s%% is below the %s%% floor",
			m.MargeNachSteuernPct.StringFixed(2), p.MarginFloorPct.StringFixed(0)))
	}

	// Rule 5: estimated project cost above the deal-size ceiling.
	estimated := in.OperationalCosts.Mul(p.CostFactor)
	if estimated.GreaterThan(p.DealSizeCeiling) {
		reasons = append(reasons, fmt.Sprintf("estimated project cost %s EUR exceeds the %s EUR ceiling",
			estimated.StringFixed(2), p.DealSizeCeiling.StringFixed(0)))
	}

	d := domain.ApprovalDecision{EvaluatedAt: time.Now().UTC()}
	if len(reasons) == 0 {
		d.Status = domain.ApprovalNoneRequired
		return d
	}
	d.Status = domain.ApprovalRequiredNotSent
	d.Reasons = reasons
	return d
}
