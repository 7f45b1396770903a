/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the sales
  domain types from the external contract. Money is rendered as strings
  with two decimals; dates as YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Envelopes

TYPES:
  Units:         UnitDTO, CreateUnitRequest, SetUnitStatusRequest
  Plans:         PlanTemplateDTO, CreatePlanTemplateRequest, QuotePlanRequest
  Reservations:  ReservationDTO, ReservationDetailDTO, SummaryDTO,
                 CreateReservationRequest, CancelReservationRequest
  Payments:      PaymentDTO, MarkPaidRequest
  Admin:         SweepRequest
  Envelopes:     ActionResponse, ErrorResponse

VALIDATION:
  Request types carry go-playground/validator tags for shape checks.
  Business rules (prices, plan ownership, availability) stay in sales.

SEE ALSO:
  - handlers.go: Uses these types
  - validate.go: Shared validator instance
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/reservation-engine/money"
	"github.com/warp/reservation-engine/sales"
)

const dateLayout = time.DateOnly

// =============================================================================
// ENVELOPES
// =============================================================================

// ActionResponse is returned by state-changing endpoints.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Kind    string            `json:"kind,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// UNITS
// =============================================================================

type UnitDTO struct {
	ID               int64   `json:"id"`
	Project          string  `json:"project"`
	Block            string  `json:"block"`
	Floor            int     `json:"floor"`
	UnitNumber       string  `json:"unit_number"`
	UnitType         string  `json:"unit_type,omitempty"`
	Status           string  `json:"status"`
	CashPrice        string  `json:"cash_price"`
	InstallmentPrice *string `json:"installment_price,omitempty"`
}

type CreateUnitRequest struct {
	Project          string           `json:"project" validate:"required,max=100"`
	Block            string           `json:"block" validate:"max=50"`
	Floor            int              `json:"floor"`
	UnitNumber       string           `json:"unit_number" validate:"required,max=50"`
	UnitType         string           `json:"unit_type" validate:"max=50"`
	Status           string           `json:"status" validate:"omitempty,oneof=available inactive"`
	CashPrice        decimal.Decimal  `json:"cash_price"`
	InstallmentPrice *decimal.Decimal `json:"installment_price"`
}

type SetUnitStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=available inactive"`
}

func toUnitDTO(u *sales.Unit) UnitDTO {
	dto := UnitDTO{
		ID:         int64(u.ID),
		Project:    u.Project,
		Block:      u.Block,
		Floor:      u.Floor,
		UnitNumber: u.UnitNumber,
		UnitType:   u.UnitType,
		Status:     string(u.Status),
		CashPrice:  amount(u.CashPrice),
	}
	if u.InstallmentPrice.Valid {
		s := amount(u.InstallmentPrice.Decimal)
		dto.InstallmentPrice = &s
	}
	return dto
}

// =============================================================================
// PLAN TEMPLATES
// =============================================================================

type PlanTemplateDTO struct {
	ID        int64             `json:"id"`
	UnitID    int64             `json:"unit_id"`
	Name      string            `json:"name"`
	PlanType  string            `json:"plan_type"`
	Active    bool              `json:"active"`
	Total     string            `json:"total"`
	Details   money.PlanDetails `json:"details"`
	CreatedAt time.Time         `json:"created_at"`
}

type CreatePlanTemplateRequest struct {
	Name               string           `json:"name" validate:"max=200"`
	PlanType           string           `json:"plan_type" validate:"required,oneof=cash installment"`
	DownPaymentPercent *decimal.Decimal `json:"down_payment_percent"`
	InstallmentCount   *int             `json:"installment_count" validate:"omitempty,min=1"`
	InterestRate       *decimal.Decimal `json:"interest_rate"`
}

type QuotePlanRequest struct {
	DownPaymentPercent decimal.Decimal `json:"down_payment_percent"`
	InstallmentCount   int             `json:"installment_count" validate:"required,min=1"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
}

func toPlanTemplateDTO(p *sales.PlanTemplate) PlanTemplateDTO {
	return PlanTemplateDTO{
		ID:        int64(p.ID),
		UnitID:    int64(p.UnitID),
		Name:      p.Name,
		PlanType:  string(p.PlanType()),
		Active:    p.Active,
		Total:     amount(p.Details.Total()),
		Details:   p.Details,
		CreatedAt: p.CreatedAt,
	}
}

// =============================================================================
// RESERVATIONS
// =============================================================================

type CreateReservationRequest struct {
	UnitID               int64            `json:"unit_id" validate:"required,gt=0"`
	CustomerID           int64            `json:"customer_id" validate:"required,gt=0"`
	SalesRepID           *int64           `json:"sales_rep_id" validate:"omitempty,gt=0"`
	PaymentPlanSelected  int64            `json:"payment_plan_selected" validate:"required"`
	DepositAmount        decimal.Decimal  `json:"deposit_amount"`
	DepositPaymentMethod string           `json:"deposit_payment_method" validate:"required,oneof=cash credit_card bank_transfer cheque"`
	DepositReceiptNumber string           `json:"deposit_receipt_number" validate:"max=100"`
	ExpiryDate           string           `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	Notes                string           `json:"notes" validate:"max=2000"`
	DownPaymentPercent   *decimal.Decimal `json:"down_payment_percent"`
	InstallmentCount     *int             `json:"installment_count"`
	InterestRate         *decimal.Decimal `json:"interest_rate"`
}

func (r CreateReservationRequest) toDomain() (sales.CreateReservationRequest, error) {
	req := sales.CreateReservationRequest{
		UnitID:              sales.UnitID(r.UnitID),
		CustomerID:          sales.CustomerID(r.CustomerID),
		PaymentPlanSelected: sales.PlanTemplateID(r.PaymentPlanSelected),
		DepositAmount:       r.DepositAmount,
		DepositMethod:       sales.PaymentMethod(r.DepositPaymentMethod),
		DepositReceipt:      r.DepositReceiptNumber,
		Notes:               r.Notes,
		DownPaymentPercent:  r.DownPaymentPercent,
		InstallmentCount:    r.InstallmentCount,
		InterestRate:        r.InterestRate,
	}
	if r.SalesRepID != nil {
		id := sales.UserID(*r.SalesRepID)
		req.SalesRepID = &id
	}
	if r.ExpiryDate != "" {
		d, err := time.Parse(dateLayout, r.ExpiryDate)
		if err != nil {
			return req, &sales.ValidationError{Field: "expiry_date", Message: "must be YYYY-MM-DD"}
		}
		req.ExpiryDate = &d
	}
	return req, nil
}

type CancelReservationRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type ReservationDTO struct {
	ID                   int64     `json:"id"`
	UnitID               int64     `json:"unit_id"`
	CustomerID           int64     `json:"customer_id"`
	SalesRepID           *int64    `json:"sales_rep_id,omitempty"`
	PaymentPlanID        int64     `json:"payment_plan_id"`
	Status               string    `json:"status"`
	PlanTotal            string    `json:"plan_total"`
	DepositAmount        string    `json:"deposit_amount"`
	DepositPaymentMethod string    `json:"deposit_payment_method"`
	DepositReceiptNumber string    `json:"deposit_receipt_number,omitempty"`
	RemainingAmount      string    `json:"remaining_amount"`
	ReservedAt           time.Time `json:"reserved_at"`
	ExpiryDate           *string   `json:"expiry_date,omitempty"`
	Notes                string    `json:"notes,omitempty"`
	CreatedBy            int64     `json:"created_by"`
}

type SummaryDTO struct {
	PlanTotal        string `json:"plan_total"`
	DepositAmount    string `json:"deposit_amount"`
	RemainingAmount  string `json:"remaining_amount"`
	TotalPaid        string `json:"total_paid"`
	TotalOutstanding string `json:"total_outstanding"`
	PaymentCount     int    `json:"payment_count"`
	PaidCount        int    `json:"paid_count"`
	OverdueCount     int    `json:"overdue_count"`
	IsExpired        bool   `json:"is_expired"`
}

type ReservationDetailDTO struct {
	Reservation ReservationDTO `json:"reservation"`
	Summary     SummaryDTO     `json:"summary"`
}

func toReservationDTO(r *sales.Reservation) ReservationDTO {
	dto := ReservationDTO{
		ID:                   int64(r.ID),
		UnitID:               int64(r.UnitID),
		CustomerID:           int64(r.CustomerID),
		PaymentPlanID:        int64(r.PlanTemplateID),
		Status:               string(r.Status),
		PlanTotal:            amount(r.PlanTotal),
		DepositAmount:        amount(r.DepositAmount),
		DepositPaymentMethod: string(r.DepositMethod),
		DepositReceiptNumber: r.DepositReceipt,
		RemainingAmount:      amount(r.RemainingAmount()),
		ReservedAt:           r.ReservedAt,
		Notes:                r.Notes,
		CreatedBy:            int64(r.CreatedBy),
	}
	if r.SalesRepID != nil {
		id := int64(*r.SalesRepID)
		dto.SalesRepID = &id
	}
	if r.ExpiryDate != nil {
		s := r.ExpiryDate.Format(dateLayout)
		dto.ExpiryDate = &s
	}
	return dto
}

func toSummaryDTO(s *sales.ReservationSummary) SummaryDTO {
	return SummaryDTO{
		PlanTotal:        amount(s.PlanTotal),
		DepositAmount:    amount(s.DepositAmount),
		RemainingAmount:  amount(s.RemainingAmount),
		TotalPaid:        amount(s.TotalPaid),
		TotalOutstanding: amount(s.TotalOutstanding),
		PaymentCount:     s.PaymentCount,
		PaidCount:        s.PaidCount,
		OverdueCount:     s.OverdueCount,
		IsExpired:        s.IsExpired,
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID                int64      `json:"id"`
	ReservationID     int64      `json:"reservation_id"`
	Type              string     `json:"payment_type"`
	Amount            string     `json:"amount"`
	DueDate           string     `json:"due_date"`
	PaymentDate       *time.Time `json:"payment_date,omitempty"`
	Status            string     `json:"status"`
	InstallmentNumber *int       `json:"installment_number,omitempty"`
	Method            string     `json:"payment_method,omitempty"`
	ReceiptRef        string     `json:"receipt_number,omitempty"`
}

type MarkPaidRequest struct {
	PaymentDate   *time.Time `json:"payment_date"`
	PaymentMethod string     `json:"payment_method" validate:"omitempty,oneof=cash credit_card bank_transfer cheque"`
	ReceiptNumber string     `json:"receipt_number" validate:"max=100"`
}

func toPaymentDTO(p *sales.Payment) PaymentDTO {
	return PaymentDTO{
		ID:                int64(p.ID),
		ReservationID:     int64(p.ReservationID),
		Type:              string(p.Type),
		Amount:            amount(p.Amount),
		DueDate:           p.DueDate.Format(dateLayout),
		PaymentDate:       p.PaymentDate,
		Status:            string(p.Status),
		InstallmentNumber: p.InstallmentNumber,
		Method:            string(p.Method),
		ReceiptRef:        p.ReceiptRef,
	}
}

func toPaymentDTOs(ps []sales.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(ps))
	for i := range ps {
		dtos[i] = toPaymentDTO(&ps[i])
	}
	return dtos
}

// =============================================================================
// ADMIN
// =============================================================================

// SweepRequest optionally pins the sweep date; today when empty.
type SweepRequest struct {
	AsOf string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

type OverdueSweepDTO struct {
	AsOf   string `json:"as_of"`
	Marked int64  `json:"marked"`
}

type ExpirySweepDTO struct {
	AsOf string `json:"as_of"`
	sales.ExpiryResult
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(money.MinorUnitPlaces)
}
