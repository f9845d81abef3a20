package calculator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/currency"
	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/projection"
)

// Service handles the calculator HTTP API. Every projection request gets
// its own Controller; the feeds are shared.
type Service struct {
	feeds     Feeds
	maxMonths int
}

// NewService creates a calculator service. maxMonths bounds the accepted
// duration; <= 0 means unbounded.
func NewService(feeds Feeds, maxMonths int) *Service {
	return &Service{feeds: feeds, maxMonths: maxMonths}
}

// --- Request/Response types ---

// ProjectionRequest is the JSON body for POST /projections.
type ProjectionRequest struct {
	Input   model.CalculationInput `json:"input"`
	Display string                 `json:"display,omitempty"` // optional display currency
}

// ProjectionResponse is the JSON body returned from POST /projections.
type ProjectionResponse struct {
	ID     string                  `json:"id"`
	Input  model.CalculationInput  `json:"input"`
	Result model.CalculationResult `json:"result"`
	View   View                    `json:"view"`
}

// PriceResponse is the JSON body for GET /price.
type PriceResponse struct {
	Snapshot  *model.PriceSnapshot `json:"snapshot"`
	Formatted string               `json:"formatted,omitempty"`
	Loading   bool                 `json:"loading"`
	Error     string               `json:"error,omitempty"`
}

// RateResponse is the JSON body for GET /rates/{currency}.
type RateResponse struct {
	Snapshot *model.RateSnapshot `json:"snapshot"`
	Loading  bool                `json:"loading"`
	Error    string              `json:"error,omitempty"`
}

// ConvertResponse is the JSON body for GET /convert.
type ConvertResponse struct {
	Amount    decimal.Decimal `json:"amount"`
	From      model.Currency  `json:"from"`
	To        model.Currency  `json:"to"`
	Rate      string          `json:"rate"`
	Label     string          `json:"label"`
	Converted decimal.Decimal `json:"converted"`
	Formatted string          `json:"formatted"`
}

// --- HTTP Handlers ---

// CreateProjection handles POST /api/v1/projections
func (s *Service) CreateProjection(w http.ResponseWriter, r *http.Request) {
	var req ProjectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// The deposit currency comes from a closed select, so anything else is
	// a client bug rather than a value to neutralise.
	cur, err := model.ParseCurrency(string(req.Input.Currency))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Input.Currency = cur

	// Non-numeric fields still produce the empty result; numbers outside
	// the accepted bounds are refused.
	p, err := projection.ParseInput(req.Input)
	switch {
	case errors.Is(err, projection.ErrOutOfRange):
		metrics.InvalidInputsTotal.Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		metrics.InvalidInputsTotal.Inc()
	case s.maxMonths > 0 && p.Months > s.maxMonths:
		writeError(w, "duration exceeds the maximum number of months", http.StatusBadRequest)
		return
	}

	ctl := NewController(s.feeds)
	ctl.SetInput(req.Input)
	if !ctl.CanCalculate() {
		w.Header().Set("Retry-After", "1")
		msg := "rates are still loading"
		if st := s.feeds.Status(); !st.PriceLoading && st.RateError != "" {
			msg = "exchange rate unavailable, retrying: " + st.RateError
		}
		writeError(w, msg, http.StatusServiceUnavailable)
		return
	}

	result := ctl.Submit(req.Input)

	if req.Display != "" {
		display, err := model.ParseCurrency(req.Display)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := ctl.SelectDisplay(display); errors.Is(err, ErrCurrencyUnavailable) {
			writeError(w, err.Error(), http.StatusConflict)
			return
		} else if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	metrics.ProjectionsTotal.WithLabelValues(string(cur)).Inc()
	metrics.ProjectionMonths.Observe(float64(len(result.MonthlyData)))

	resp := ProjectionResponse{
		ID:     uuid.New().String(),
		Input:  req.Input,
		Result: result,
		View:   ctl.View(),
	}

	slog.Info("projection computed",
		"id", resp.ID,
		"currency", cur,
		"months", len(result.MonthlyData),
		"final_balance", result.FinalBalance.String(),
		"display", ctl.Display(),
	)

	writeJSON(w, http.StatusOK, resp)
}

// GetPrice handles GET /api/v1/price
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	st := s.feeds.Status()
	resp := PriceResponse{
		Snapshot: s.feeds.Rates().Price,
		Loading:  st.PriceLoading,
		Error:    st.PriceError,
	}
	if resp.Snapshot != nil {
		resp.Formatted = currency.Format(resp.Snapshot.Price, resp.Snapshot.Currency)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRate handles GET /api/v1/rates/{currency}
// Only the rate feed's own target currency is served.
func (s *Service) GetRate(w http.ResponseWriter, r *http.Request) {
	target, err := model.ParseCurrency(chi.URLParam(r, "currency"))
	if err != nil || s.feeds.Rate == nil || target != s.feeds.Rate.Target() {
		writeError(w, "no rate feed for currency", http.StatusNotFound)
		return
	}

	st := s.feeds.Status()
	writeJSON(w, http.StatusOK, RateResponse{
		Snapshot: s.feeds.Rate.Snapshot(),
		Loading:  st.RateLoading,
		Error:    st.RateError,
	})
}

// Format handles GET /api/v1/format?amount=&currency=&context=
// amount is in SOL. context is "full" (default), "axis" or "subtitle".
// Conversions that are not yet possible render as "N/A".
func (s *Service) Format(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	amount, err := projection.ParseAmount("amount", q.Get("amount"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	cur, err := model.ParseCurrency(q.Get("currency"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rates := s.feeds.Rates()
	var text string
	switch q.Get("context") {
	case "", "full":
		text = rates.Display(amount, cur)
	case "axis":
		v, ok := rates.Convert(amount, cur)
		if !ok {
			text = currency.Unavailable
		} else {
			text = currency.AxisLabel(v, cur)
		}
	case "subtitle":
		text = rates.Subtitle(amount, cur)
	default:
		writeError(w, "context must be full, axis or subtitle", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// Convert handles GET /api/v1/convert?amount=
// amount is in USD and is converted with the live rate.
func (s *Service) Convert(w http.ResponseWriter, r *http.Request) {
	amount, err := projection.ParseAmount("amount", r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rates := s.feeds.Rates()
	converted, ok := rates.FromPrimaryFiat(amount)
	if !ok {
		w.Header().Set("Retry-After", "1")
		writeError(w, "exchange rate not available", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, ConvertResponse{
		Amount:    amount,
		From:      rates.Rate.Base,
		To:        rates.Rate.Target,
		Rate:      rates.Rate.Rate.StringFixed(4),
		Label:     currency.RateLabel(rates.Rate),
		Converted: converted,
		Formatted: currency.Format(converted, rates.Rate.Target),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
