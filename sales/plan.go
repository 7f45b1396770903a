/*
plan.go - Plan template resolution

PURPOSE:
  Turns the payment_plan_selected value of a creation request into a
  persisted PlanTemplate:

    > 0  existing template; must exist, be active and belong to the unit
    -1   synthesize a cash template from the unit's cash price; the
         deposit must equal that price
    -2   synthesize an installment template from the unit's installment
         price (cash price when unset) and the request's terms

  Templates are insert-only. Synthesis always creates a new row so prices
  agreed on earlier reservations never change.

SEE ALSO:
  - money/calculator.go: Installment arithmetic
  - catalog.go: Explicit template creation and quotes
*/
package sales

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/warp/reservation-engine/money"
)

// InstallmentTerms are the caller-chosen parameters of an installment plan.
type InstallmentTerms struct {
	DownPaymentPercent decimal.Decimal
	InstallmentCount   int
	InterestRate       decimal.Decimal
}

// computeInstallment runs the calculator and reports bad input as a
// ValidationError.
func computeInstallment(price decimal.Decimal, terms InstallmentTerms) (money.InstallmentDetails, error) {
	d, err := money.ComputeInstallmentPlan(price, terms.DownPaymentPercent, terms.InstallmentCount, terms.InterestRate)
	if err != nil {
		var inputErr *money.InputError
		if errors.As(err, &inputErr) {
			return money.InstallmentDetails{}, &ValidationError{Field: inputErr.Field, Message: inputErr.Message}
		}
		return money.InstallmentDetails{}, err
	}
	return d, nil
}

// resolvePlan must run inside the creation transaction, after the unit lock.
func resolvePlan(ctx context.Context, tx Store, unit *Unit, req CreateReservationRequest) (*PlanTemplate, error) {
	switch sel := req.PaymentPlanSelected; {
	case sel == SynthesizeCash:
		if !req.DepositAmount.Equal(unit.CashPrice) {
			return nil, &ValidationError{
				Field:   "deposit_amount",
				Message: "cash plan deposit must equal the cash price " + unit.CashPrice.StringFixed(money.MinorUnitPlaces),
			}
		}
		tmpl := &PlanTemplate{
			UnitID:  unit.ID,
			Name:    "Cash (auto)",
			Details: money.CashDetails{CashPrice: unit.CashPrice},
			Active:  true,
		}
		if err := tx.CreatePlanTemplate(ctx, tmpl); err != nil {
			return nil, err
		}
		return tmpl, nil

	case sel == SynthesizeInstallment:
		terms, err := req.installmentTerms()
		if err != nil {
			return nil, err
		}
		details, err := computeInstallment(unit.InstallmentBasePrice(), terms)
		if err != nil {
			return nil, err
		}
		tmpl := &PlanTemplate{
			UnitID:  unit.ID,
			Name:    "Installment (auto)",
			Details: details,
			Active:  true,
		}
		if err := tx.CreatePlanTemplate(ctx, tmpl); err != nil {
			return nil, err
		}
		return tmpl, nil

	case sel > 0:
		tmpl, err := tx.GetPlanTemplate(ctx, sel)
		if err != nil {
			return nil, err
		}
		if tmpl.UnitID != unit.ID {
			return nil, &ValidationError{Field: "payment_plan_selected", Message: "plan template does not belong to this unit"}
		}
		if !tmpl.Active {
			return nil, &ValidationError{Field: "payment_plan_selected", Message: "plan template is not active"}
		}
		return tmpl, nil

	default:
		return nil, &ValidationError{Field: "payment_plan_selected", Message: "must be a template id, -1 (cash) or -2 (installment)"}
	}
}
