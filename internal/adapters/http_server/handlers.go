// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tripz_dealdesk/internal/app"
	"tripz_dealdesk/internal/domain"
)

type Handlers struct {
	Calc      *app.CalculationService
	Rates     *app.RateService
	Suggester domain.PriceSuggester // nil when no API key is configured
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Post("/v1/calculations", h.createCalculation)
	s.mux.Get("/v1/calculations/{id}", h.getCalculation)
	s.mux.Post("/v1/calculations/{id}/recompute", h.recompute)
	s.mux.Post("/v1/calculations/{id}/overrides", h.applyOverride)
	s.mux.Get("/v1/calculations/{id}/overrides", h.listOverrides)
	s.mux.Post("/v1/calculations/{id}/approval/submit", h.submitApproval)
	s.mux.Post("/v1/calculations/{id}/approval/decision", h.decideApproval)
	s.mux.Post("/v1/calculations/{id}/approval/resend", h.resendApproval)
	s.mux.Post("/v1/suggestions", h.suggestPrice)
	s.mux.Get("/v1/rates", h.getRates)
}

// flexible accepts a JSON string or number and keeps its raw text. The
// normalizer downstream owns the lenient parsing; the HTTP layer stays
// permissive on purpose.
type flexible string

func (f *flexible) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	*f = flexible(strings.Trim(s, `"`))
	return nil
}

func (f flexible) String() string { return string(f) }

type calculationBody struct {
	HotelName         flexible `json:"hotelName"`
	Stars             flexible `json:"stars"`
	RoomCount         flexible `json:"roomCount"`
	OccupancyRate     flexible `json:"occupancyRate"`
	AveragePrice      flexible `json:"averagePrice"`
	VoucherValue      flexible `json:"voucherValue"`
	OperationalCosts  flexible `json:"operationalCosts"`
	ProjectCostsGross flexible `json:"projectCostsGross"`
	VATRate           flexible `json:"vatRate"`
	CurrencyCode      flexible `json:"currencyCode"`
	ActualPrice       flexible `json:"actualPrice"`
	TripzMultiplier   flexible `json:"tripzMultiplier"`
	Version           int64    `json:"version"` // required on recompute
}

func (b calculationBody) raw() app.RawInput {
	return app.RawInput{
		HotelName:         b.HotelName.String(),
		Stars:             b.Stars.String(),
		RoomCount:         b.RoomCount.String(),
		OccupancyRate:     b.OccupancyRate.String(),
		AveragePrice:      b.AveragePrice.String(),
		VoucherValue:      b.VoucherValue.String(),
		OperationalCosts:  b.OperationalCosts.String(),
		ProjectCostsGross: b.ProjectCostsGross.String(),
		VATRate:           b.VATRate.String(),
		CurrencyCode:      b.CurrencyCode.String(),
	}
}

type calculationResponse struct {
	Calculation domain.Calculation    `json:"calculation"`
	Warnings    []domain.FieldWarning `json:"warnings,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeDomainErr maps the engine's sentinel errors onto HTTP statuses.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "calculation not found")
	case errors.Is(err, domain.ErrStaleVersion):
		writeProblem(w, http.StatusConflict, "Stale Version", "the calculation changed since it was read; reload and retry")
	case errors.Is(err, domain.ErrTerminalState):
		writeProblem(w, http.StatusConflict, "Terminal Approval State", "approved/rejected decisions cannot be overwritten")
	case errors.Is(err, domain.ErrBadTransition):
		writeProblem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, domain.ErrEmptyJustification):
		writeProblem(w, http.StatusUnprocessableEntity, "Justification Required", "override justification must not be empty")
	case errors.Is(err, domain.ErrUnknownField):
		writeProblem(w, http.StatusBadRequest, "Unknown Field", err.Error())
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func (h *Handlers) createCalculation(w http.ResponseWriter, r *http.Request) {
	var body calculationBody
	if !decode(w, r, &body) {
		return
	}

	// The AI suggestion is the untrusted default for the resale price
	// when the caller supplies none.
	actualPrice := body.ActualPrice.String()
	if strings.TrimSpace(actualPrice) == "" && h.Suggester != nil {
		in, _ := app.Normalize(body.raw())
		if sug, err := h.Suggester.SuggestPrice(r.Context(), in.HotelName, in.Stars, in.RoomCount, in.AveragePrice); err == nil {
			actualPrice = sug.SuggestedPrice.String()
		} else {
			log.Warn().Err(err).Msg("price suggestion unavailable, falling back to market price")
		}
	}

	c, warns, err := h.Calc.Compute(r.Context(), body.raw(), actualPrice, body.TripzMultiplier.String())
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, calculationResponse{Calculation: c, Warnings: warns})
}

func (h *Handlers) getCalculation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	currency := strings.ToUpper(r.URL.Query().Get("currency"))

	c, err := h.Calc.Get(r.Context(), id, currency)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	etag, body := calcETagAndBody(c)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write calculation body")
	}
}

func (h *Handlers) recompute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body calculationBody
	if !decode(w, r, &body) {
		return
	}
	if body.Version <= 0 {
		writeProblem(w, http.StatusBadRequest, "Version Required", "recompute must state the version the edit is based on")
		return
	}
	c, warns, err := h.Calc.Recompute(r.Context(), id, body.raw(), body.ActualPrice.String(), body.TripzMultiplier.String(), body.Version)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calculationResponse{Calculation: c, Warnings: warns})
}

func (h *Handlers) applyOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Field         string   `json:"field"`
		NewValue      flexible `json:"newValue"`
		Justification string   `json:"justification"`
		Version       int64    `json:"version"`
	}
	if !decode(w, r, &body) {
		return
	}
	c, entry, err := h.Calc.ApplyOverride(r.Context(), id, body.Field, body.NewValue.String(), body.Justification, body.Version)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrStaleVersion) ||
			errors.Is(err, domain.ErrEmptyJustification) || errors.Is(err, domain.ErrUnknownField) {
			writeDomainErr(w, err)
			return
		}
		writeProblem(w, http.StatusBadRequest, "Invalid Override", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Calculation domain.Calculation   `json:"calculation"`
		LedgerEntry domain.OverrideEntry `json:"ledgerEntry"`
	}{c, entry})
}

func (h *Handlers) listOverrides(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := h.Calc.ListOverrides(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Items []domain.OverrideEntry `json:"items"`
	}{entries})
}

func (h *Handlers) submitApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		BusinessJustification string `json:"businessJustification"`
		Version               int64  `json:"version"`
	}
	if !decode(w, r, &body) {
		return
	}
	c, req, err := h.Calc.SubmitForApproval(r.Context(), id, body.BusinessJustification, body.Version)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Calculation     domain.Calculation     `json:"calculation"`
		ApprovalRequest domain.ApprovalRequest `json:"approvalRequest"`
	}{c, req})
}

func (h *Handlers) decideApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Approve   bool   `json:"approve"`
		DecidedBy string `json:"decidedBy"`
		Version   int64  `json:"version"`
	}
	if !decode(w, r, &body) {
		return
	}
	c, err := h.Calc.Decide(r.Context(), id, body.Approve, body.DecidedBy, body.Version)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calculationResponse{Calculation: c})
}

func (h *Handlers) resendApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Version int64 `json:"version"`
	}
	if !decode(w, r, &body) {
		return
	}
	c, err := h.Calc.Resend(r.Context(), id, body.Version)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calculationResponse{Calculation: c})
}

func (h *Handlers) suggestPrice(w http.ResponseWriter, r *http.Request) {
	if h.Suggester == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Suggestions Disabled", "no suggestion backend configured")
		return
	}
	var body struct {
		HotelName    string   `json:"hotelName"`
		Stars        int      `json:"stars"`
		RoomCount    int      `json:"roomCount"`
		AveragePrice flexible `json:"averagePrice"`
	}
	if !decode(w, r, &body) {
		return
	}
	avg, err := parsePrice(body.AveragePrice.String())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Price", "averagePrice must be numeric")
		return
	}
	sug, err := h.Suggester.SuggestPrice(r.Context(), body.HotelName, body.Stars, body.RoomCount, avg)
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "Suggestion Failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sug)
}

func parsePrice(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
}

func (h *Handlers) getRates(w http.ResponseWriter, r *http.Request) {
	snap := h.Rates.Snapshot(r.Context())
	etag, body := calcETagAndBody(snap)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write rates body")
	}
}
