// Package calculator ties the projection engine, the currency presentation
// layer and the live feeds together: a Controller holds one user's form
// state and display currency, and Service exposes it over HTTP.
package calculator

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/currency"
	"github.com/atmx/vault-engine/internal/feed"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/projection"
)

// ErrCurrencyUnavailable is returned when switching to a currency whose
// snapshots have not arrived yet.
var ErrCurrencyUnavailable = errors.New("calculator: currency unavailable until rates load")

// FeedStatus describes the feeds as the user sees them.
type FeedStatus struct {
	PriceLoading bool       `json:"price_loading"`
	PriceError   string     `json:"price_error,omitempty"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
	RateLoading  bool       `json:"rate_loading"`
	RateError    string     `json:"rate_error,omitempty"`
}

// SnapshotSource supplies whatever snapshots exist at call time.
type SnapshotSource interface {
	Rates() currency.Rates
	Status() FeedStatus
}

// Feeds adapts the live price and rate feeds to SnapshotSource.
type Feeds struct {
	Price *feed.PriceFeed
	Rate  *feed.RateFeed
}

func (f Feeds) Rates() currency.Rates {
	var r currency.Rates
	if f.Price != nil {
		r.Price = f.Price.Snapshot()
	}
	if f.Rate != nil {
		r.Rate = f.Rate.Snapshot()
	}
	return r
}

func (f Feeds) Status() FeedStatus {
	st := FeedStatus{PriceLoading: true, RateLoading: true}
	if f.Price != nil {
		st.PriceLoading = f.Price.Loading()
		st.PriceError = f.Price.Err()
		if ts, ok := f.Price.LastUpdated(); ok {
			st.LastUpdated = &ts
		}
	}
	if f.Rate != nil {
		st.RateLoading = f.Rate.Loading()
		st.RateError = f.Rate.Err()
	}
	return st
}

// DefaultInput is the form's initial state.
func DefaultInput() model.CalculationInput {
	return model.CalculationInput{
		InitialDeposit: "100",
		Currency:       model.SOL,
		InterestRate:   "5",
		Duration:       "12",
		PerformanceFee: "25",
	}
}

// Controller is one user's calculator: the form input, the last result
// and the selected display currency. Derived views are rebuilt from the
// current snapshots on every call. A Controller is not safe for
// concurrent use.
type Controller struct {
	src     SnapshotSource
	input   model.CalculationInput
	result  *model.CalculationResult
	display model.Currency
}

// NewController creates a controller with the default form input.
func NewController(src SnapshotSource) *Controller {
	return &Controller{
		src:     src,
		input:   DefaultInput(),
		display: model.SOL,
	}
}

// Input returns the current form input.
func (c *Controller) Input() model.CalculationInput { return c.input }

// SetInput replaces the form input without recomputing.
func (c *Controller) SetInput(in model.CalculationInput) { c.input = in }

// Display returns the selected display currency.
func (c *Controller) Display() model.Currency { return c.display }

// Result returns the last computed result, if any.
func (c *Controller) Result() (model.CalculationResult, bool) {
	if c.result == nil {
		return model.CalculationResult{}, false
	}
	return *c.result, true
}

// CanCalculate reports whether submitting is allowed: not while the first
// price fetch is pending, and not for a GBP deposit until the rate is in.
func (c *Controller) CanCalculate() bool {
	st := c.src.Status()
	if st.PriceLoading {
		return false
	}
	if c.input.Currency == model.GBP && (st.RateLoading || c.src.Rates().Rate == nil) {
		return false
	}
	return true
}

// Submit sets the input, recomputes the result from scratch and resets the
// display currency to the deposit currency.
func (c *Controller) Submit(in model.CalculationInput) model.CalculationResult {
	c.input = in
	res := projection.Calculate(in, c.src.Rates())
	c.result = &res
	if _, err := model.ParseCurrency(string(in.Currency)); err == nil {
		c.display = in.Currency
	}
	return res
}

// SelectDisplay switches the display currency. The switch is refused, and
// the current selection kept, while the required snapshots are missing.
func (c *Controller) SelectDisplay(cur model.Currency) error {
	if _, err := model.ParseCurrency(string(cur)); err != nil {
		return err
	}
	if !c.src.Rates().Available(cur) {
		return fmt.Errorf("%w: %s", ErrCurrencyUnavailable, cur)
	}
	c.display = cur
	return nil
}

// Toggle is one button of the display currency selector.
type Toggle struct {
	Currency model.Currency `json:"currency"`
	Enabled  bool           `json:"enabled"`
	Selected bool           `json:"selected"`
}

// Metric is a summary value with its alternative-currency subtitle.
type Metric struct {
	Value    string `json:"value"`
	Subtitle string `json:"subtitle"`
}

// Summary is the four-figure results header.
type Summary struct {
	Months       int    `json:"months"`
	Years        string `json:"years"`
	Interest     Metric `json:"interest"`
	Fees         Metric `json:"fees"`
	FinalBalance Metric `json:"final_balance"`
}

// ChartPoint is one month of the balance chart in the display currency.
type ChartPoint struct {
	Month   int             `json:"month"`
	Balance decimal.Decimal `json:"balance"`
	Label   string          `json:"label"`
	Tooltip string          `json:"tooltip"`
}

// TableRow is one formatted row of the monthly breakdown.
type TableRow struct {
	Month        int    `json:"month"`
	StartBalance string `json:"start_balance"`
	Interest     string `json:"interest"`
	Fee          string `json:"fee"`
	EndBalance   string `json:"end_balance"`
}

// View is everything needed to render the calculator.
type View struct {
	Display      model.Currency      `json:"display"`
	Toggles      []Toggle            `json:"toggles"`
	CanCalculate bool                `json:"can_calculate"`
	Feeds        FeedStatus          `json:"feeds"`
	LivePrice    string              `json:"live_price,omitempty"`
	Summary      *Summary            `json:"summary,omitempty"`
	Chart        []ChartPoint        `json:"chart"`
	Table        []TableRow          `json:"table"`
	Scenarios    []currency.Scenario `json:"scenarios"`
}

// View derives the rendered state from the last result and the snapshots
// available right now.
func (c *Controller) View() View {
	rates := c.src.Rates()
	v := View{
		Display:      c.display,
		CanCalculate: c.CanCalculate(),
		Feeds:        c.src.Status(),
		Chart:        []ChartPoint{},
		Table:        []TableRow{},
		Scenarios:    []currency.Scenario{},
	}
	if rates.Price != nil {
		v.LivePrice = currency.Format(rates.Price.Price, model.USD)
	}
	for _, cur := range model.Currencies {
		v.Toggles = append(v.Toggles, Toggle{
			Currency: cur,
			Enabled:  rates.Available(cur),
			Selected: cur == c.display,
		})
	}

	if c.result == nil {
		return v
	}
	res := c.result

	metric := func(amount decimal.Decimal) Metric {
		return Metric{
			Value:    rates.Display(amount, c.display),
			Subtitle: rates.Subtitle(amount, c.display),
		}
	}
	months := len(res.MonthlyData)
	v.Summary = &Summary{
		Months:       months,
		Years:        projection.Years(months),
		Interest:     metric(res.TotalInterest),
		Fees:         metric(res.TotalFees),
		FinalBalance: metric(res.FinalBalance),
	}
	v.Scenarios = rates.Scenarios(res.FinalBalance, c.display)

	for _, rec := range res.MonthlyData {
		// Without the snapshot the chart keeps plotting SOL values.
		balance, ok := rates.Convert(rec.EndBalance, c.display)
		tooltip := currency.Unavailable
		if ok {
			tooltip = currency.Format(balance, c.display)
		} else {
			balance = rec.EndBalance
		}
		v.Chart = append(v.Chart, ChartPoint{
			Month:   rec.Month,
			Balance: balance,
			Label:   currency.AxisLabel(balance, c.display),
			Tooltip: tooltip,
		})
		v.Table = append(v.Table, TableRow{
			Month:        rec.Month,
			StartBalance: rates.Display(rec.StartBalance, c.display),
			Interest:     "+" + rates.Display(rec.Interest, c.display),
			Fee:          "-" + rates.Display(rec.Fee, c.display),
			EndBalance:   rates.Display(rec.EndBalance, c.display),
		})
	}
	return v
}
