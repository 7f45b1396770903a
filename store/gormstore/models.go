package gormstore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/reservation-engine/money"
	"github.com/warp/reservation-engine/sales"
	"gorm.io/datatypes"
)

// Row types are kept apart from the domain types so gorm tags and
// association fields never leak into the sales package.

type unitRow struct {
	ID               int64               `gorm:"primaryKey"`
	Project          string              `gorm:"size:100;not null;uniqueIndex:ux_units_location,priority:1"`
	Block            string              `gorm:"size:50;not null;default:'';uniqueIndex:ux_units_location,priority:2"`
	Floor            int                 `gorm:"not null;default:0;uniqueIndex:ux_units_location,priority:3"`
	UnitNumber       string              `gorm:"size:50;not null;uniqueIndex:ux_units_location,priority:4"`
	UnitType         string              `gorm:"size:50"`
	Status           string              `gorm:"size:20;not null;index"`
	CashPrice        decimal.Decimal     `gorm:"type:decimal(20,2);not null;check:chk_units_cash_price,cash_price >= 0"`
	InstallmentPrice decimal.NullDecimal `gorm:"type:decimal(20,2)"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (unitRow) TableName() string { return "units" }

type planTemplateRow struct {
	ID        int64          `gorm:"primaryKey"`
	UnitID    int64          `gorm:"not null;index"`
	Unit      *unitRow       `gorm:"foreignKey:UnitID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	Name      string         `gorm:"size:200;not null"`
	PlanType  string         `gorm:"size:20;not null"`
	Details   datatypes.JSON `gorm:"not null"`
	Active    bool           `gorm:"not null"`
	CreatedAt time.Time
}

func (planTemplateRow) TableName() string { return "payment_plan_templates" }

type reservationRow struct {
	ID             int64            `gorm:"primaryKey"`
	UnitID         int64            `gorm:"not null;index"`
	Unit           *unitRow         `gorm:"foreignKey:UnitID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	CustomerID     int64            `gorm:"not null;index"`
	SalesRepID     *int64           `gorm:"index"`
	PlanTemplateID int64            `gorm:"not null"`
	PlanTemplate   *planTemplateRow `gorm:"foreignKey:PlanTemplateID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	PlanTotal      decimal.Decimal  `gorm:"type:decimal(20,2);not null"`
	DepositAmount  decimal.Decimal  `gorm:"type:decimal(20,2);not null;check:chk_reservations_deposit,deposit_amount > 0"`
	DepositMethod  string           `gorm:"size:20;not null"`
	DepositReceipt string           `gorm:"size:100"`
	Status         string           `gorm:"size:20;not null;index"`
	ReservedAt     time.Time        `gorm:"not null"`
	ExpiryDate     *time.Time       `gorm:"type:date;index"`
	Notes          string           `gorm:"type:text"`
	CreatedBy      int64            `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (reservationRow) TableName() string { return "reservations" }

type paymentRow struct {
	ID                int64           `gorm:"primaryKey"`
	ReservationID     int64           `gorm:"not null;index"`
	Reservation       *reservationRow `gorm:"foreignKey:ReservationID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	Type              string          `gorm:"size:20;not null"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);not null;check:chk_payments_amount,amount >= 0"`
	DueDate           time.Time       `gorm:"type:date;not null;index"`
	PaymentDate       *time.Time
	Status            string `gorm:"size:20;not null;index"`
	InstallmentNumber *int
	Method            string `gorm:"size:20"`
	ReceiptRef        string `gorm:"size:100"`
	RecordedBy        int64  `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (paymentRow) TableName() string { return "payments" }

// =============================================================================
// CONVERSIONS
// =============================================================================

func toUnitRow(u *sales.Unit) unitRow {
	return unitRow{
		ID:               int64(u.ID),
		Project:          u.Project,
		Block:            u.Block,
		Floor:            u.Floor,
		UnitNumber:       u.UnitNumber,
		UnitType:         u.UnitType,
		Status:           string(u.Status),
		CashPrice:        u.CashPrice,
		InstallmentPrice: u.InstallmentPrice,
	}
}

func (r unitRow) toDomain() *sales.Unit {
	return &sales.Unit{
		ID:               sales.UnitID(r.ID),
		Project:          r.Project,
		Block:            r.Block,
		Floor:            r.Floor,
		UnitNumber:       r.UnitNumber,
		UnitType:         r.UnitType,
		Status:           sales.UnitStatus(r.Status),
		CashPrice:        r.CashPrice,
		InstallmentPrice: r.InstallmentPrice,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func toPlanTemplateRow(p *sales.PlanTemplate) (planTemplateRow, error) {
	raw, err := money.EncodeDetails(p.Details)
	if err != nil {
		return planTemplateRow{}, err
	}
	return planTemplateRow{
		ID:       int64(p.ID),
		UnitID:   int64(p.UnitID),
		Name:     p.Name,
		PlanType: string(p.Details.Type()),
		Details:  datatypes.JSON(raw),
		Active:   p.Active,
	}, nil
}

func (r planTemplateRow) toDomain() (*sales.PlanTemplate, error) {
	details, err := money.DecodeDetails(money.PlanType(r.PlanType), r.Details)
	if err != nil {
		return nil, fmt.Errorf("plan template %d: %w", r.ID, err)
	}
	return &sales.PlanTemplate{
		ID:        sales.PlanTemplateID(r.ID),
		UnitID:    sales.UnitID(r.UnitID),
		Name:      r.Name,
		Details:   details,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}, nil
}

func toReservationRow(r *sales.Reservation) reservationRow {
	row := reservationRow{
		ID:             int64(r.ID),
		UnitID:         int64(r.UnitID),
		CustomerID:     int64(r.CustomerID),
		PlanTemplateID: int64(r.PlanTemplateID),
		PlanTotal:      r.PlanTotal,
		DepositAmount:  r.DepositAmount,
		DepositMethod:  string(r.DepositMethod),
		DepositReceipt: r.DepositReceipt,
		Status:         string(r.Status),
		ReservedAt:     r.ReservedAt.UTC(),
		Notes:          r.Notes,
		CreatedBy:      int64(r.CreatedBy),
	}
	if r.SalesRepID != nil {
		id := int64(*r.SalesRepID)
		row.SalesRepID = &id
	}
	if r.ExpiryDate != nil {
		d := sales.DateOf(*r.ExpiryDate)
		row.ExpiryDate = &d
	}
	return row
}

func (r reservationRow) toDomain() *sales.Reservation {
	res := &sales.Reservation{
		ID:             sales.ReservationID(r.ID),
		UnitID:         sales.UnitID(r.UnitID),
		CustomerID:     sales.CustomerID(r.CustomerID),
		PlanTemplateID: sales.PlanTemplateID(r.PlanTemplateID),
		PlanTotal:      r.PlanTotal,
		DepositAmount:  r.DepositAmount,
		DepositMethod:  sales.PaymentMethod(r.DepositMethod),
		DepositReceipt: r.DepositReceipt,
		Status:         sales.ReservationStatus(r.Status),
		ReservedAt:     r.ReservedAt,
		Notes:          r.Notes,
		CreatedBy:      sales.UserID(r.CreatedBy),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.SalesRepID != nil {
		id := sales.UserID(*r.SalesRepID)
		res.SalesRepID = &id
	}
	if r.ExpiryDate != nil {
		d := sales.DateOf(*r.ExpiryDate)
		res.ExpiryDate = &d
	}
	return res
}

func toPaymentRow(p *sales.Payment) paymentRow {
	row := paymentRow{
		ID:                int64(p.ID),
		ReservationID:     int64(p.ReservationID),
		Type:              string(p.Type),
		Amount:            p.Amount,
		DueDate:           sales.DateOf(p.DueDate),
		Status:            string(p.Status),
		InstallmentNumber: p.InstallmentNumber,
		Method:            string(p.Method),
		ReceiptRef:        p.ReceiptRef,
		RecordedBy:        int64(p.RecordedBy),
	}
	if p.PaymentDate != nil {
		t := p.PaymentDate.UTC()
		row.PaymentDate = &t
	}
	return row
}

func (r paymentRow) toDomain() sales.Payment {
	return sales.Payment{
		ID:                sales.PaymentID(r.ID),
		ReservationID:     sales.ReservationID(r.ReservationID),
		Type:              sales.PaymentType(r.Type),
		Amount:            r.Amount,
		DueDate:           sales.DateOf(r.DueDate),
		PaymentDate:       r.PaymentDate,
		Status:            sales.PaymentStatus(r.Status),
		InstallmentNumber: r.InstallmentNumber,
		Method:            sales.PaymentMethod(r.Method),
		ReceiptRef:        r.ReceiptRef,
		RecordedBy:        sales.UserID(r.RecordedBy),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}
