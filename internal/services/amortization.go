package services

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinLoanMonths = 1
	MaxLoanMonths = 360

	powPrecision = 28
)

var (
	one         = decimal.NewFromInt(1)
	monthlyBase = decimal.NewFromInt(1200) // 12 months * 100 percent
)

// ComputeEMI returns the fixed monthly installment for a reducing-balance loan:
//
//	emi = P * r * (1+r)^n / ((1+r)^n - 1),  r = annualRate / 12 / 100
//
// rounded half-up to two places. A zero rate spreads the principal evenly.
func ComputeEMI(principal, annualRate decimal.Decimal, months int) decimal.Decimal {
	if months <= 0 || !principal.IsPositive() {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(months))

	r := annualRate.Div(monthlyBase)
	if !r.IsPositive() {
		return principal.Div(n).Round(2)
	}

	factor := pow(one.Add(r), months)
	return principal.Mul(r).Mul(factor).Div(factor.Sub(one)).Round(2)
}

func pow(base decimal.Decimal, n int) decimal.Decimal {
	result := one
	for i := 0; i < n; i++ {
		result = result.Mul(base).Truncate(powPrecision)
	}
	return result
}

// addMonths moves t forward n calendar months keeping its day of month, clamped to the
// last day of the target month (Jan 31 + 1 month = Feb 28/29).
func addMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}
