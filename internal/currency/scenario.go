package currency

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/model"
)

// Scenario is the final balance re-priced at a shifted SOL price.
type Scenario struct {
	Name       string          `json:"name"`
	Multiplier decimal.Decimal `json:"multiplier"`
	SolPrice   string          `json:"sol_price"`
	Balance    string          `json:"balance"`
}

var scenarioSteps = []struct {
	name string
	mult decimal.Decimal
}{
	{"Price -20%", decimal.RequireFromString("0.8")},
	{"Current Price", decimal.NewFromInt(1)},
	{"Price +20%", decimal.RequireFromString("1.2")},
}

// Scenarios prices a SOL balance at 80%, 100% and 120% of the live price.
// Balances are shown in display, which must be fiat; SOL falls back to USD.
// The list is empty when the snapshots for display are missing.
func (r Rates) Scenarios(balance decimal.Decimal, display model.Currency) []Scenario {
	if display == model.SOL {
		display = model.USD
	}
	out := []Scenario{}
	if !r.Available(display) {
		return out
	}
	for _, step := range scenarioSteps {
		price := r.Price.Price.Mul(step.mult)
		value := balance.Mul(price)
		if display == model.GBP {
			value = value.Mul(r.Rate.Rate)
		}
		out = append(out, Scenario{
			Name:       step.name,
			Multiplier: step.mult,
			SolPrice:   Format(price, model.USD),
			Balance:    Format(value, display),
		})
	}
	return out
}

// FromPrimaryFiat converts a USD amount into the rate's target currency.
func (r Rates) FromPrimaryFiat(amount decimal.Decimal) (decimal.Decimal, bool) {
	if !usableRate(r.Rate) {
		return decimal.Zero, false
	}
	return amount.Mul(r.Rate.Rate), true
}

// RateLabel renders a rate as "1 USD = 0.7900 GBP".
func RateLabel(rate *model.RateSnapshot) string {
	if !usableRate(rate) {
		return Unavailable
	}
	return "1 " + string(rate.Base) + " = " + rate.Rate.StringFixed(4) + " " + string(rate.Target)
}
