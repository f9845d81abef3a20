// Package currency converts SOL-denominated amounts into USD and GBP using
// the latest feed snapshots, and formats amounts for display.
//
// A conversion whose snapshot is missing reports ok=false. It never falls
// back to a rate of 0 or 1.
package currency

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/model"
)

// Unavailable is shown in place of an amount whose conversion is missing.
const Unavailable = "N/A"

// Rates is the pair of snapshots read at call time. Either may be nil
// while its feed is loading or after it failed without a prior success.
type Rates struct {
	Price *model.PriceSnapshot
	Rate  *model.RateSnapshot
}

// ToPrimaryFiat converts SOL to USD: amount × price.
func ToPrimaryFiat(amount decimal.Decimal, price *model.PriceSnapshot) (decimal.Decimal, bool) {
	if !usablePrice(price) {
		return decimal.Zero, false
	}
	return amount.Mul(price.Price), true
}

// ToSecondaryFiatViaPrimary converts SOL to GBP through USD:
// amount × price × rate.
func ToSecondaryFiatViaPrimary(amount decimal.Decimal, price *model.PriceSnapshot, rate *model.RateSnapshot) (decimal.Decimal, bool) {
	if !usablePrice(price) || !usableRate(rate) {
		return decimal.Zero, false
	}
	return amount.Mul(price.Price).Mul(rate.Rate), true
}

// Available reports whether amounts can be shown in c right now.
func (r Rates) Available(c model.Currency) bool {
	switch c {
	case model.SOL:
		return true
	case model.USD:
		return usablePrice(r.Price)
	case model.GBP:
		return usablePrice(r.Price) && usableRate(r.Rate)
	}
	return false
}

// Convert expresses a SOL amount in c.
func (r Rates) Convert(amount decimal.Decimal, c model.Currency) (decimal.Decimal, bool) {
	switch c {
	case model.SOL:
		return amount, true
	case model.USD:
		return ToPrimaryFiat(amount, r.Price)
	case model.GBP:
		return ToSecondaryFiatViaPrimary(amount, r.Price, r.Rate)
	}
	return decimal.Zero, false
}

// ToBase expresses an amount given in c as SOL. It is the inverse of
// Convert and is used to normalise fiat deposits before projecting.
func (r Rates) ToBase(amount decimal.Decimal, c model.Currency) (decimal.Decimal, bool) {
	switch c {
	case model.SOL:
		return amount, true
	case model.USD:
		if !usablePrice(r.Price) {
			return decimal.Zero, false
		}
		return amount.Div(r.Price.Price), true
	case model.GBP:
		if !usablePrice(r.Price) || !usableRate(r.Rate) {
			return decimal.Zero, false
		}
		return amount.Div(r.Rate.Rate).Div(r.Price.Price), true
	}
	return decimal.Zero, false
}

// Display formats a SOL amount in c, or returns Unavailable.
func (r Rates) Display(amount decimal.Decimal, c model.Currency) string {
	v, ok := r.Convert(amount, c)
	if !ok {
		return Unavailable
	}
	return Format(v, c)
}

// A zero price or rate is treated like a missing one.
func usablePrice(p *model.PriceSnapshot) bool { return p != nil && !p.Price.IsZero() }
func usableRate(r *model.RateSnapshot) bool   { return r != nil && !r.Rate.IsZero() }
