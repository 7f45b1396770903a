/*
types.go - Domain types for the reservation engine

PURPOSE:
  Defines the four persisted entities (Unit, PlanTemplate, Reservation,
  Payment) and their status enums. No behavior beyond simple predicates;
  lifecycle rules live in reservation.go, ledger.go and sync.go.

RELATIONSHIPS:
  Unit 1 ── * PlanTemplate
  Unit 1 ── * Reservation   (at most one Active at any time)
  Reservation 1 ── * Payment

STATUS MACHINES:
  Unit:        available ⇄ reserved → sold, available ⇄ inactive
  Reservation: active → converted_to_sale | cancelled   (both terminal)
  Payment:     pending → overdue → paid, pending|overdue → void

SEE ALSO:
  - money/plan.go: PlanDetails carried by PlanTemplate
  - store.go: Persistence contracts
*/
package sales

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/reservation-engine/money"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UnitID         int64
	PlanTemplateID int64
	ReservationID  int64
	PaymentID      int64
	CustomerID     int64
	// UserID identifies staff: sales representatives and acting users.
	UserID int64
)

// Plan selection sentinels accepted by CreateReservation.
const (
	SynthesizeCash        PlanTemplateID = -1
	SynthesizeInstallment PlanTemplateID = -2
)

// =============================================================================
// INVENTORY UNIT
// =============================================================================

type UnitStatus string

const (
	UnitAvailable UnitStatus = "available"
	UnitReserved  UnitStatus = "reserved"
	UnitSold      UnitStatus = "sold"
	UnitInactive  UnitStatus = "inactive"
)

func (s UnitStatus) Valid() bool {
	switch s {
	case UnitAvailable, UnitReserved, UnitSold, UnitInactive:
		return true
	}
	return false
}

// Unit is a single sellable property. (Project, Block, Floor, UnitNumber)
// is unique.
type Unit struct {
	ID               UnitID
	Project          string
	Block            string
	Floor            int
	UnitNumber       string
	UnitType         string
	Status           UnitStatus
	CashPrice        decimal.Decimal
	InstallmentPrice decimal.NullDecimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (u *Unit) IsAvailable() bool {
	return u.Status == UnitAvailable
}

// InstallmentBasePrice is the installment price, or the cash price when the
// unit has none.
func (u *Unit) InstallmentBasePrice() decimal.Decimal {
	if u.InstallmentPrice.Valid {
		return u.InstallmentPrice.Decimal
	}
	return u.CashPrice
}

// =============================================================================
// PAYMENT PLAN TEMPLATE
// =============================================================================

// PlanTemplate is immutable once created. New pricing creates a new template.
type PlanTemplate struct {
	ID        PlanTemplateID
	UnitID    UnitID
	Name      string
	Details   money.PlanDetails
	Active    bool
	CreatedAt time.Time
}

func (p *PlanTemplate) PlanType() money.PlanType {
	return p.Details.Type()
}

// =============================================================================
// RESERVATION
// =============================================================================

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationConverted ReservationStatus = "converted_to_sale"
	ReservationCancelled ReservationStatus = "cancelled"
)

func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationConverted || s == ReservationCancelled
}

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCheque       PaymentMethod = "cheque"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCreditCard, MethodBankTransfer, MethodCheque:
		return true
	}
	return false
}

type Reservation struct {
	ID             ReservationID
	UnitID         UnitID
	CustomerID     CustomerID
	SalesRepID     *UserID
	PlanTemplateID PlanTemplateID
	// PlanTotal is copied from the template at creation.
	PlanTotal      decimal.Decimal
	DepositAmount  decimal.Decimal
	DepositMethod  PaymentMethod
	DepositReceipt string
	Status         ReservationStatus
	ReservedAt     time.Time
	ExpiryDate     *time.Time
	Notes          string
	CreatedBy      UserID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RemainingAmount is plan_total - deposit_amount.
func (r *Reservation) RemainingAmount() decimal.Decimal {
	return r.PlanTotal.Sub(r.DepositAmount)
}

// IsExpired reports whether the expiry date lies before asOf's date.
func (r *Reservation) IsExpired(asOf time.Time) bool {
	return r.ExpiryDate != nil && r.ExpiryDate.Before(DateOf(asOf))
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentType string

const (
	PaymentDeposit      PaymentType = "deposit"
	PaymentDownPayment  PaymentType = "down_payment"
	PaymentInstallment  PaymentType = "installment"
	PaymentFinalPayment PaymentType = "final_payment"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
	PaymentVoid    PaymentStatus = "void"
)

// IsOpen reports whether the payment is still owed.
func (s PaymentStatus) IsOpen() bool {
	return s == PaymentPending || s == PaymentOverdue
}

type Payment struct {
	ID                PaymentID
	ReservationID     ReservationID
	Type              PaymentType
	Amount            decimal.Decimal
	DueDate           time.Time
	PaymentDate       *time.Time
	Status            PaymentStatus
	InstallmentNumber *int
	Method            PaymentMethod
	ReceiptRef        string
	RecordedBy        UserID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SystemActor is recorded for changes made by background jobs.
const SystemActor UserID = 0
