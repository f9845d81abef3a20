// Package projection implements the monthly compound-growth engine for a
// vault deposit with a performance fee taken from each month's interest.
//
// All monetary values use shopspring/decimal; never float64 for money.
// Every value the engine produces is denominated in the base asset (SOL).
package projection

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/model"
)

// Scale is the number of decimal places interest and fee amounts are
// rounded to. Balances are sums of rounded values, so the per-month
// identity end = start + interest - fee holds exactly.
const Scale int32 = 18

// Project computes the month-by-month schedule for a deposit already
// expressed in SOL. monthlyRate and feeRate are fractions (5% → 0.05).
//
// months <= 0 yields an empty schedule with FinalBalance equal to deposit.
// Callers bound months; ParseInput caps it at MaxMonths.
// Negative rates and fees are not rejected; they flow through arithmetically.
// Project is pure: identical inputs always produce identical output.
func Project(deposit, monthlyRate decimal.Decimal, months int, feeRate decimal.Decimal) model.CalculationResult {
	n := months
	if n < 0 {
		n = 0
	}

	balance := deposit
	totalInterest := decimal.Zero
	totalFees := decimal.Zero
	data := make([]model.MonthlyRecord, 0, min(n, MaxMonths))

	for month := 1; month <= n; month++ {
		start := balance
		interest := start.Mul(monthlyRate).Round(Scale)
		// Fee is a share of this month's interest, never of principal.
		fee := interest.Mul(feeRate).Round(Scale)
		end := start.Add(interest).Sub(fee)

		totalInterest = totalInterest.Add(interest)
		totalFees = totalFees.Add(fee)
		balance = end

		data = append(data, model.MonthlyRecord{
			Month:        month,
			StartBalance: start,
			Interest:     interest,
			Fee:          fee,
			EndBalance:   end,
		})
	}

	return model.CalculationResult{
		FinalBalance:  balance,
		TotalInterest: totalInterest,
		TotalFees:     totalFees,
		MonthlyData:   data,
	}
}

// Empty returns the all-zero result used when the input cannot be parsed.
func Empty() model.CalculationResult {
	return model.CalculationResult{
		FinalBalance:  decimal.Zero,
		TotalInterest: decimal.Zero,
		TotalFees:     decimal.Zero,
		MonthlyData:   []model.MonthlyRecord{},
	}
}

// Years renders a month count as years with one decimal place ("18" → "1.5").
func Years(months int) string {
	return fmt.Sprintf("%.1f", float64(months)/12)
}
