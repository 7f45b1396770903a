/*
calculator.go - Installment plan arithmetic

PURPOSE:
  Pure functions that turn a unit price and plan parameters into the
  self-describing InstallmentDetails stored on a plan template. No state,
  no I/O: the same inputs always produce the same plan.

ROUNDING:
  Every derived amount is rounded to 2 decimal places, half-up
  (0.005 -> 0.01). Banker's rounding is never used.

FORMULA:
  downPayment = basePrice * percent / 100
  remaining   = basePrice - downPayment
  total       = remaining * (1 + rate/100)     (rate > 0)
              = remaining                      (rate = 0)
  monthly     = total / count

EXAMPLE:
  ComputeInstallmentPlan(1000000, 25, 12, 0)
    -> downPayment 250000.00, remaining 750000.00, monthly 62500.00
  ComputeInstallmentPlan(1000000, 25, 12, 10)
    -> monthly 68750.00

SEE ALSO:
  - plan.go: PlanDetails tagged union
  - sales/plan.go: Template resolution using this calculator
*/
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnitPlaces is the number of decimal places kept for currency amounts.
const MinorUnitPlaces = 2

var hundred = decimal.NewFromInt(100)

// InputError reports a calculator argument outside its accepted range.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Round rounds half-up to the currency minor unit.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnitPlaces)
}

// ComputeInstallmentPlan derives the full installment plan for a base price.
func ComputeInstallmentPlan(basePrice, downPaymentPercent decimal.Decimal, installmentCount int, interestRate decimal.Decimal) (InstallmentDetails, error) {
	if basePrice.IsNegative() {
		return InstallmentDetails{}, &InputError{Field: "installment_price", Message: "must not be negative"}
	}
	if installmentCount < 1 {
		return InstallmentDetails{}, &InputError{Field: "installment_count", Message: "must be at least 1"}
	}
	if downPaymentPercent.IsNegative() || downPaymentPercent.GreaterThan(hundred) {
		return InstallmentDetails{}, &InputError{Field: "down_payment_percent", Message: "must be between 0 and 100"}
	}
	if interestRate.IsNegative() {
		return InstallmentDetails{}, &InputError{Field: "interest_rate", Message: "must not be negative"}
	}

	downPayment := Round(basePrice.Mul(downPaymentPercent).Div(hundred))
	remaining := basePrice.Sub(downPayment)

	total := remaining
	if interestRate.IsPositive() {
		total = Round(remaining.Mul(decimal.NewFromInt(1).Add(interestRate.Div(hundred))))
	}
	monthly := Round(total.Div(decimal.NewFromInt(int64(installmentCount))))

	return InstallmentDetails{
		InstallmentPrice:   basePrice,
		DownPaymentPercent: downPaymentPercent,
		DownPaymentAmount:  downPayment,
		RemainingAmount:    remaining,
		InstallmentCount:   installmentCount,
		InterestRate:       interestRate,
		TotalWithInterest:  total,
		MonthlyInstallment: monthly,
	}, nil
}
