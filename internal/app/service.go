package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tripz_dealdesk/internal/adapters/observability"
	"tripz_dealdesk/internal/domain"
)

// CalculationService is the single entry point of the engine: it wires
// normalization, currency conversion, derivation and rule evaluation
// around the calculation store, and owns the optimistic-concurrency
// discipline on approval transitions.
type CalculationService struct {
	repo     domain.CalculationRepository
	rates    *RateService
	cache    domain.Cache
	cacheTTL time.Duration
	policy   Policy
}

func NewCalculationService(r domain.CalculationRepository, rates *RateService, cache domain.Cache, cacheTTL time.Duration, p Policy) *CalculationService {
	return &CalculationService{repo: r, rates: rates, cache: cache, cacheTTL: cacheTTL, policy: p}
}

func calcCacheKey(id string) string { return "calc:" + id }

// eurInput converts the monetary input fields into EUR at the ingestion
// boundary. CurrencyCode keeps the original code for presentation; the
// stored amounts are always EUR.
func (s *CalculationService) eurInput(ctx context.Context, in domain.PricingInput, warns []domain.FieldWarning) (domain.PricingInput, []domain.FieldWarning, bool) {
	if in.CurrencyCode == "EUR" {
		return in, warns, false
	}
	snap := s.rates.Snapshot(ctx)
	stale := snap.IsFallback

	conv := func(field string, v decimal.Decimal) decimal.Decimal {
		c := Convert(v, in.CurrencyCode, "EUR", snap)
		if c.Missing {
			warns = append(warns, domain.FieldWarning{
				Field:  field,
				Reason: fmt.Sprintf("no rate for %s, amount kept unconverted", in.CurrencyCode),
			})
		}
		stale = stale || c.Stale
		return c.Amount
	}

	in.AveragePrice = conv("averagePrice", in.AveragePrice)
	in.VoucherValue = conv("voucherValue", in.VoucherValue)
	in.OperationalCosts = conv("operationalCosts", in.OperationalCosts)
	in.ProjectCostsGross = conv("projectCostsGross", in.ProjectCostsGross)
	return in, warns, stale
}

// resolveActualPrice leniently parses the resale price. Absent falls
// back to the market price; the AI suggestion, when used, is filled in
// by the caller before this point.
func resolveActualPrice(raw string, in domain.PricingInput, warns []domain.FieldWarning) (decimal.Decimal, []domain.FieldWarning) {
	s := strings.TrimSpace(raw)
	if s == "" {
		warns = append(warns, domain.FieldWarning{Field: "actualPrice", Reason: "missing, defaulted to market price"})
		return in.AveragePrice, warns
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil || d.IsNegative() {
		warns = append(warns, domain.FieldWarning{Field: "actualPrice", Raw: raw, Reason: "invalid, defaulted to market price"})
		return in.AveragePrice, warns
	}
	return d, warns
}

// Compute runs the full pipeline for a new deal and persists the result
// at version 1.
func (s *CalculationService) Compute(ctx context.Context, raw RawInput, actualPriceRaw, tripzRaw string) (domain.Calculation, []domain.FieldWarning, error) {
	in, warns := Normalize(raw)
	tm, tw := NormalizeTripzMultiplier(tripzRaw)
	warns = append(warns, tw...)

	in, warns, stale := s.eurInput(ctx, in, warns)
	actual, warns := resolveActualPrice(actualPriceRaw, in, warns)

	derived := Derive(in, actual, tm)
	derived.RatesStale = stale

	now := time.Now().UTC()
	c := domain.Calculation{
		ID:        uuid.NewString(),
		Version:   1,
		Input:     in,
		Derived:   derived,
		Approval:  s.policy.Evaluate(derived, in, domain.ApprovalDecision{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return domain.Calculation{}, warns, err
	}
	logWarnings(c.ID, warns)
	observability.ObserveComputation("create")
	return c, warns, nil
}

// Recompute is the live path: changed inputs re-enter the pipeline and
// the approval status is re-evaluated, except that approved/rejected
// stay untouched. The caller states the version its edit is based on.
func (s *CalculationService) Recompute(ctx context.Context, id string, raw RawInput, actualPriceRaw, tripzRaw string, version int64) (domain.Calculation, []domain.FieldWarning, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Calculation{}, nil, err
	}
	if cur.Version != version {
		return domain.Calculation{}, nil, domain.ErrStaleVersion
	}

	in, warns := Normalize(raw)
	tm, tw := NormalizeTripzMultiplier(tripzRaw)
	warns = append(warns, tw...)
	in.Overridden = cur.Input.Overridden

	in, warns, stale := s.eurInput(ctx, in, warns)
	actual, warns := resolveActualPrice(actualPriceRaw, in, warns)

	derived := Derive(in, actual, tm)
	derived.RatesStale = stale
	approval := s.policy.Evaluate(derived, in, cur.Approval)

	next := cur
	next.Input = in
	next.Derived = derived
	next.Approval = approval
	next.UpdatedAt = time.Now().UTC()
	next.Version = version + 1

	if err := s.write(ctx, next, version, cur.Approval.Status); err != nil {
		return domain.Calculation{}, warns, err
	}
	logWarnings(id, warns)
	observability.ObserveComputation("recompute")
	return next, warns, nil
}

// ApplyOverride records a human correction of an engine-suggested value
// and re-runs derivation with the override flagged. An empty
// justification rejects the whole operation; no ledger entry is written.
func (s *CalculationService) ApplyOverride(ctx context.Context, id, field, newValue, justification string, version int64) (domain.Calculation, domain.OverrideEntry, error) {
	if strings.TrimSpace(justification) == "" {
		return domain.Calculation{}, domain.OverrideEntry{}, domain.ErrEmptyJustification
	}

	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Calculation{}, domain.OverrideEntry{}, err
	}
	if cur.Version != version {
		return domain.Calculation{}, domain.OverrideEntry{}, domain.ErrStaleVersion
	}

	val, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(newValue), ",", "."))
	if err != nil {
		return domain.Calculation{}, domain.OverrideEntry{}, fmt.Errorf("override value %q is not numeric", newValue)
	}

	next := cur
	var previous decimal.Decimal
	switch field {
	case domain.FieldActualPrice:
		previous = cur.Derived.ActualPrice
	case domain.FieldVoucherValue:
		previous = cur.Input.VoucherValue
		next.Input.VoucherValue = val
	case domain.FieldAveragePrice:
		previous = cur.Input.AveragePrice
		next.Input.AveragePrice = val
	default:
		return domain.Calculation{}, domain.OverrideEntry{}, fmt.Errorf("%w: %s", domain.ErrUnknownField, field)
	}

	actual := cur.Derived.ActualPrice
	if field == domain.FieldActualPrice {
		actual = val
	}

	next.Input.Overridden = appendOnce(cur.Input.Overridden, field)
	next.Derived = Derive(next.Input, actual, cur.Derived.TripzMultiplier)
	next.Derived.RatesStale = cur.Derived.RatesStale
	next.Approval = s.policy.Evaluate(next.Derived, next.Input, cur.Approval)
	next.UpdatedAt = time.Now().UTC()
	next.Version = version + 1

	entry := domain.OverrideEntry{
		ID:            uuid.NewString(),
		CalculationID: id,
		FieldName:     field,
		PreviousValue: previous.String(),
		NewValue:      val.String(),
		Justification: strings.TrimSpace(justification),
		CreatedAt:     next.UpdatedAt,
	}

	if err := s.write(ctx, next, version, cur.Approval.Status); err != nil {
		return domain.Calculation{}, domain.OverrideEntry{}, err
	}
	if err := s.repo.AppendOverride(ctx, entry); err != nil {
		return domain.Calculation{}, domain.OverrideEntry{}, fmt.Errorf("append override ledger entry: %w", err)
	}
	next.Overrides = append(next.Overrides, entry)
	observability.ObserveComputation("override")
	return next, entry, nil
}

// SubmitForApproval moves required_not_sent to pending and builds the
// payload handed to the external approval workflow.
func (s *CalculationService) SubmitForApproval(ctx context.Context, id, justification string, version int64) (domain.Calculation, domain.ApprovalRequest, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Calculation{}, domain.ApprovalRequest{}, err
	}
	if cur.Version != version {
		return domain.Calculation{}, domain.ApprovalRequest{}, domain.ErrStaleVersion
	}
	if cur.Approval.Status.Terminal() {
		return domain.Calculation{}, domain.ApprovalRequest{}, domain.ErrTerminalState
	}
	if cur.Approval.Status != domain.ApprovalRequiredNotSent {
		return domain.Calculation{}, domain.ApprovalRequest{}, fmt.Errorf("%w: submit from %s", domain.ErrBadTransition, cur.Approval.Status)
	}

	next := cur
	next.Approval.Status = domain.ApprovalPending
	next.Approval.EvaluatedAt = time.Now().UTC()
	next.UpdatedAt = next.Approval.EvaluatedAt
	next.Version = version + 1

	if err := s.write(ctx, next, version, cur.Approval.Status); err != nil {
		return domain.Calculation{}, domain.ApprovalRequest{}, err
	}
	req := domain.ApprovalRequest{
		CalculationID:         id,
		MetricsSnapshot:       next.Derived,
		BusinessJustification: justification,
	}
	return next, req, nil
}

// Decide records a human terminal decision on a pending calculation.
func (s *CalculationService) Decide(ctx context.Context, id string, approve bool, decidedBy string, version int64) (domain.Calculation, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Calculation{}, err
	}
	if cur.Version != version {
		return domain.Calculation{}, domain.ErrStaleVersion
	}
	if cur.Approval.Status.Terminal() {
		return domain.Calculation{}, domain.ErrTerminalState
	}
	if cur.Approval.Status != domain.ApprovalPending {
		return domain.Calculation{}, fmt.Errorf("%w: decide from %s", domain.ErrBadTransition, cur.Approval.Status)
	}

	next := cur
	if approve {
		next.Approval.Status = domain.ApprovalApproved
	} else {
		next.Approval.Status = domain.ApprovalRejected
	}
	next.Approval.DecidedBy = decidedBy
	next.Approval.EvaluatedAt = time.Now().UTC()
	next.UpdatedAt = next.Approval.EvaluatedAt
	next.Version = version + 1

	if err := s.write(ctx, next, version, cur.Approval.Status); err != nil {
		return domain.Calculation{}, err
	}
	return next, nil
}

// Resend re-opens a rejected calculation as a fresh pending request.
// This is the only way out of a terminal state, and it is explicit.
func (s *CalculationService) Resend(ctx context.Context, id string, version int64) (domain.Calculation, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Calculation{}, err
	}
	if cur.Version != version {
		return domain.Calculation{}, domain.ErrStaleVersion
	}
	if cur.Approval.Status != domain.ApprovalRejected {
		return domain.Calculation{}, fmt.Errorf("%w: resend from %s", domain.ErrBadTransition, cur.Approval.Status)
	}

	next := cur
	next.Approval.Status = domain.ApprovalPending
	next.Approval.DecidedBy = ""
	next.Approval.EvaluatedAt = time.Now().UTC()
	next.UpdatedAt = next.Approval.EvaluatedAt
	next.Version = version + 1

	if err := s.write(ctx, next, version, cur.Approval.Status); err != nil {
		return domain.Calculation{}, err
	}
	return next, nil
}

// Reevaluate re-runs derivation and rule evaluation from the stored
// input, used by the batch recalculator. Terminal statuses survive
// unchanged through the sticky evaluator.
func (s *CalculationService) Reevaluate(ctx context.Context, id string) (domain.Calculation, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Calculation{}, err
	}

	next := cur
	next.Derived = Derive(cur.Input, cur.Derived.ActualPrice, cur.Derived.TripzMultiplier)
	next.Derived.RatesStale = cur.Derived.RatesStale
	next.Approval = s.policy.Evaluate(next.Derived, cur.Input, cur.Approval)
	next.UpdatedAt = time.Now().UTC()
	next.Version = cur.Version + 1

	if err := s.write(ctx, next, cur.Version, cur.Approval.Status); err != nil {
		return domain.Calculation{}, err
	}
	observability.ObserveComputation("reevaluate")
	return next, nil
}

// Get is the cached read path. displayCurrency, when not EUR, converts
// the monetary metrics at the presentation boundary; stored values stay
// EUR.
func (s *CalculationService) Get(ctx context.Context, id, displayCurrency string) (domain.Calculation, error) {
	key := calcCacheKey(id)
	var c domain.Calculation
	ok := false
	if s.cache != nil {
		ok, _ = s.cache.Get(ctx, key, &c)
	}
	if !ok {
		var err error
		c, err = s.repo.Get(ctx, id)
		if err != nil {
			return domain.Calculation{}, err
		}
		if s.cache != nil {
			_ = s.cache.Set(ctx, key, c, int(s.cacheTTL.Seconds()))
		}
	}

	if displayCurrency != "" && displayCurrency != "EUR" {
		snap := s.rates.Snapshot(ctx)
		c.Derived = presentMetrics(c.Derived, displayCurrency, snap)
	}
	return c, nil
}

// ListOverrides returns the full append-only ledger of a calculation.
func (s *CalculationService) ListOverrides(ctx context.Context, id string) ([]domain.OverrideEntry, error) {
	return s.repo.ListOverrides(ctx, id)
}

// write persists next, invalidates the read cache and audits a status
// change when one happened.
func (s *CalculationService) write(ctx context.Context, next domain.Calculation, expectVersion int64, prevStatus domain.ApprovalStatus) error {
	if err := s.repo.Update(ctx, next, expectVersion); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, calcCacheKey(next.ID))
	}
	if next.Approval.Status != prevStatus {
		observability.ObserveTransition(string(prevStatus), string(next.Approval.Status))
		_ = s.repo.LogTransition(ctx, next.ID, prevStatus, next.Approval.Status, next.Approval.DecidedBy)
	}
	return nil
}

// presentMetrics converts the monetary fields of a metric set for
// display. Percentages, counts and the multiplier are unit-free and stay
// as computed.
func presentMetrics(m domain.DerivedMetrics, to string, snap domain.RateSnapshot) domain.DerivedMetrics {
	conv := func(v decimal.Decimal) decimal.Decimal {
		c := Convert(v, "EUR", to, snap)
		if c.Stale || c.Missing {
			m.RatesStale = true
		}
		return c.Amount
	}
	m.NetPrice = conv(m.NetPrice)
	m.VATAmount = conv(m.VATAmount)
	m.TotalPrice = conv(m.TotalPrice)
	m.ProfitMargin = conv(m.ProfitMargin)
	m.DiscountVsMarket = conv(m.DiscountVsMarket)
	m.ContractVolume = conv(m.ContractVolume)
	m.Marge = conv(m.Marge)
	m.VorsteuerProdukt = conv(m.VorsteuerProdukt)
	m.VorsteuerTripz = conv(m.VorsteuerTripz)
	m.NettoSteuerzahlung = conv(m.NettoSteuerzahlung)
	m.MargeNachSteuern = conv(m.MargeNachSteuern)
	m.ActualPrice = conv(m.ActualPrice)
	return m
}

// logWarnings surfaces lenient-parsing coercions in the audit log; every
// write path that normalizes raw input goes through here.
func logWarnings(id string, warns []domain.FieldWarning) {
	for _, w := range warns {
		log.Warn().Str("calculation", id).Str("field", w.Field).Str("raw", w.Raw).Msg(w.Reason)
	}
}

func appendOnce(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	out := make([]string, len(list), len(list)+1)
	copy(out, list)
	return append(out, v)
}
