/*
plan.go - Payment plan details (tagged union)

PURPOSE:
  A plan template is either Cash or Installment. PlanDetails makes the two
  shapes statically distinguishable while still serializing to the flat
  JSON payload stored on the template row.

TYPES:
  CashDetails         {cash_price}
  InstallmentDetails  {installment_price, down_payment_percent,
                       down_payment_amount, remaining_amount,
                       installment_count, interest_rate,
                       total_with_interest, monthly_installment}

SEE ALSO:
  - calculator.go: Produces InstallmentDetails
*/
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// PlanType discriminates PlanDetails.
type PlanType string

const (
	PlanCash        PlanType = "cash"
	PlanInstallment PlanType = "installment"
)

func (t PlanType) Valid() bool {
	return t == PlanCash || t == PlanInstallment
}

// PlanDetails is implemented only by CashDetails and InstallmentDetails.
type PlanDetails interface {
	Type() PlanType
	// Total is the full amount the buyer owes under this plan.
	Total() decimal.Decimal
	sealed()
}

// =============================================================================
// CASH
// =============================================================================

type CashDetails struct {
	CashPrice decimal.Decimal `json:"cash_price"`
}

func (CashDetails) Type() PlanType { return PlanCash }

func (d CashDetails) Total() decimal.Decimal { return d.CashPrice }

func (CashDetails) sealed() {}

// =============================================================================
// INSTALLMENT
// =============================================================================

type InstallmentDetails struct {
	InstallmentPrice   decimal.Decimal `json:"installment_price"`
	DownPaymentPercent decimal.Decimal `json:"down_payment_percent"`
	DownPaymentAmount  decimal.Decimal `json:"down_payment_amount"`
	RemainingAmount    decimal.Decimal `json:"remaining_amount"`
	InstallmentCount   int             `json:"installment_count"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	TotalWithInterest  decimal.Decimal `json:"total_with_interest"`
	MonthlyInstallment decimal.Decimal `json:"monthly_installment"`
}

func (InstallmentDetails) Type() PlanType { return PlanInstallment }

// Parameterized reports whether a schedule can be generated from the details.
// A template holding only a price has no installment count.
func (d InstallmentDetails) Parameterized() bool {
	return d.InstallmentCount > 0
}

// Total is the down payment plus every installment, i.e. what the generated
// schedule sums to. Unparameterized details fall back to the listed price.
func (d InstallmentDetails) Total() decimal.Decimal {
	if !d.Parameterized() {
		return d.InstallmentPrice
	}
	return d.DownPaymentAmount.Add(d.MonthlyInstallment.Mul(decimal.NewFromInt(int64(d.InstallmentCount))))
}

func (InstallmentDetails) sealed() {}

// =============================================================================
// SERIALIZATION
// =============================================================================

// EncodeDetails renders the flat JSON payload for storage.
func EncodeDetails(d PlanDetails) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("encode plan details: nil details")
	}
	return json.Marshal(d)
}

// DecodeDetails parses a stored payload using the template's plan type.
func DecodeDetails(t PlanType, raw []byte) (PlanDetails, error) {
	switch t {
	case PlanCash:
		var d CashDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode cash details: %w", err)
		}
		return d, nil
	case PlanInstallment:
		var d InstallmentDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode installment details: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("decode plan details: unknown plan type %q", t)
	}
}
