// Package model defines the core domain types shared across the vault engine.
// All monetary values use shopspring/decimal; never float64 for money.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is one of the three currencies a projection can be entered or
// displayed in.
type Currency string

const (
	// SOL is the base asset. The projection engine computes in SOL only.
	SOL Currency = "SOL"
	// USD is the reference fiat, reached through the price feed.
	USD Currency = "USD"
	// GBP is the secondary fiat, chained through USD via the rate feed.
	GBP Currency = "GBP"
)

// Currencies lists the supported currencies in display order.
var Currencies = []Currency{SOL, USD, GBP}

// ParseCurrency validates a currency code. Matching is case-insensitive.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case SOL, USD, GBP:
		return c, nil
	}
	return "", fmt.Errorf("model: unsupported currency %q (expected SOL, USD or GBP)", s)
}

// IsFiat reports whether c is a fiat currency.
func (c Currency) IsFiat() bool { return c == USD || c == GBP }

// CalculationInput holds the raw form values exactly as the user typed them.
// It must be parsed before anything is computed from it.
type CalculationInput struct {
	InitialDeposit string   `json:"initial_deposit"`
	Currency       Currency `json:"currency"`
	InterestRate   string   `json:"interest_rate"`   // monthly percentage
	Duration       string   `json:"duration"`        // whole months
	PerformanceFee string   `json:"performance_fee"` // percentage of monthly interest
}

// ParsedInput is the numeric form of a CalculationInput. Rates are fractions
// (5% → 0.05).
type ParsedInput struct {
	Deposit     decimal.Decimal
	MonthlyRate decimal.Decimal
	Months      int
	FeeRate     decimal.Decimal
}

// MonthlyRecord is one month of the growth schedule, denominated in SOL.
// Invariant: EndBalance = StartBalance + Interest - Fee.
type MonthlyRecord struct {
	Month        int             `json:"month"`
	StartBalance decimal.Decimal `json:"start_balance"`
	Interest     decimal.Decimal `json:"interest"`
	Fee          decimal.Decimal `json:"fee"`
	EndBalance   decimal.Decimal `json:"end_balance"`
}

// CalculationResult is the full output of a projection. It is rebuilt on
// every submission and never modified afterwards.
type CalculationResult struct {
	FinalBalance  decimal.Decimal `json:"final_balance"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	TotalFees     decimal.Decimal `json:"total_fees"`
	MonthlyData   []MonthlyRecord `json:"monthly_data"`
}

// PriceSnapshot is the unit price of the base asset in the reference fiat.
// Snapshots are replaced wholesale on refresh, never mutated.
type PriceSnapshot struct {
	ID        string          `json:"id" db:"id"`
	Asset     Currency        `json:"asset" db:"asset"`
	Currency  Currency        `json:"currency" db:"currency"`
	Price     decimal.Decimal `json:"price" db:"price"`
	FetchedAt time.Time       `json:"fetched_at" db:"fetched_at"`
}

// RateSnapshot is the multiplier from Base to Target (USD → GBP).
type RateSnapshot struct {
	ID        string          `json:"id" db:"id"`
	Base      Currency        `json:"base" db:"base"`
	Target    Currency        `json:"target" db:"target"`
	Rate      decimal.Decimal `json:"rate" db:"rate"`
	FetchedAt time.Time       `json:"fetched_at" db:"fetched_at"`
}
