package projection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/currency"
	"github.com/atmx/vault-engine/internal/model"
)

// ErrInvalidInput is returned when a raw form value is not a number.
var ErrInvalidInput = errors.New("projection: invalid input")

// ErrOutOfRange is returned for a number that parses but lies outside the
// accepted bounds. It matches ErrInvalidInput under errors.Is.
var ErrOutOfRange = fmt.Errorf("%w: value out of range", ErrInvalidInput)

// Bounds on parsed input.
const (
	// MaxMonths is the longest schedule ParseInput accepts.
	MaxMonths = 1200

	maxRawLen   = 64
	maxExponent = 30
)

var (
	hundred = decimal.NewFromInt(100)

	// MaxAmount bounds the magnitude of a deposit or a formatted amount.
	MaxAmount = decimal.New(1, 15)

	// maxPercent bounds the magnitude of the rate and fee percentages.
	maxPercent = hundred
)

// ParseInput converts raw form strings into engine arguments. Percentages
// are divided by 100. A fractional duration is truncated toward zero and a
// negative one means no months.
func ParseInput(in model.CalculationInput) (model.ParsedInput, error) {
	deposit, err := parseBounded("initial_deposit", in.InitialDeposit, MaxAmount)
	if err != nil {
		return model.ParsedInput{}, err
	}
	rate, err := parseBounded("interest_rate", in.InterestRate, maxPercent)
	if err != nil {
		return model.ParsedInput{}, err
	}
	duration, err := parseBounded("duration", in.Duration, decimal.NewFromInt(MaxMonths))
	switch {
	case err == nil:
	case errors.Is(err, ErrOutOfRange) && duration.IsNegative():
		// Any negative duration is an empty schedule.
	default:
		return model.ParsedInput{}, err
	}
	fee, err := parseBounded("performance_fee", in.PerformanceFee, maxPercent)
	if err != nil {
		return model.ParsedInput{}, err
	}

	months := 0
	if duration.IsPositive() {
		months = int(duration.IntPart())
	}

	return model.ParsedInput{
		Deposit:     deposit,
		MonthlyRate: rate.Div(hundred),
		Months:      months,
		FeeRate:     fee.Div(hundred),
	}, nil
}

// ParseAmount parses a raw amount bounded by MaxAmount.
func ParseAmount(field, raw string) (decimal.Decimal, error) {
	return parseBounded(field, raw, MaxAmount)
}

// parseBounded parses raw as a decimal with |v| <= limit. Length and
// exponent are checked before any arithmetic on the value.
func parseBounded(field, raw string, limit decimal.Decimal) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxRawLen {
		return decimal.Zero, fmt.Errorf("%w: %s is too long", ErrOutOfRange, field)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q is not a number", ErrInvalidInput, field, raw)
	}
	if exp := v.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Zero, fmt.Errorf("%w: %s %q", ErrOutOfRange, field, raw)
	}
	if v.Abs().GreaterThan(limit) {
		return v, fmt.Errorf("%w: %s %q exceeds %s", ErrOutOfRange, field, raw, limit)
	}
	return v, nil
}

// Calculate parses the raw input, normalises the deposit to SOL and runs
// the projection. Unparseable input yields Empty() rather than an error.
//
// When the snapshots needed to convert a fiat deposit are missing, the raw
// amount is used as if it were already in SOL.
func Calculate(in model.CalculationInput, rates currency.Rates) model.CalculationResult {
	p, err := ParseInput(in)
	if err != nil {
		return Empty()
	}

	deposit := p.Deposit
	if in.Currency.IsFiat() {
		if sol, ok := rates.ToBase(p.Deposit, in.Currency); ok {
			deposit = sol
		}
	}

	return Project(deposit, p.MonthlyRate, p.Months, p.FeeRate)
}
