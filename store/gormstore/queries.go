package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/reservation-engine/sales"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// UNITS
// =============================================================================

func (s *Store) CreateUnit(ctx context.Context, u *sales.Unit) error {
	row := toUnitRow(u)
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return &sales.ValidationError{Field: "unit_number", Message: "a unit already exists at this project, block, floor and number"}
		}
		return fmt.Errorf("create unit: %w", err)
	}
	*u = *row.toDomain()
	return nil
}

func (s *Store) GetUnit(ctx context.Context, id sales.UnitID) (*sales.Unit, error) {
	var row unitRow
	if err := s.conn(ctx).First(&row, int64(id)).Error; err != nil {
		return nil, notFound(err, "unit", int64(id))
	}
	return row.toDomain(), nil
}

func (s *Store) ListUnits(ctx context.Context, status sales.UnitStatus) ([]sales.Unit, error) {
	q := s.conn(ctx).Order("project, block, floor, unit_number")
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var rows []unitRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	units := make([]sales.Unit, len(rows))
	for i, r := range rows {
		units[i] = *r.toDomain()
	}
	return units, nil
}

// LockUnit issues SELECT ... FOR UPDATE. On SQLite the clause is dropped by
// the dialect and the immediate transaction already holds the write lock.
func (s *Store) LockUnit(ctx context.Context, id sales.UnitID) (*sales.Unit, error) {
	if !s.inTx {
		return nil, sales.ErrLockOutsideTx
	}
	var row unitRow
	err := s.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, int64(id)).Error
	if err != nil {
		return nil, notFound(err, "unit", int64(id))
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateUnitStatus(ctx context.Context, id sales.UnitID, status sales.UnitStatus) error {
	result := s.conn(ctx).Model(&unitRow{}).Where("id = ?", int64(id)).Update("status", string(status))
	if result.Error != nil {
		return fmt.Errorf("update unit %d status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return &sales.NotFoundError{Kind: "unit", ID: int64(id)}
	}
	return nil
}

// =============================================================================
// PLAN TEMPLATES
// =============================================================================

func (s *Store) CreatePlanTemplate(ctx context.Context, p *sales.PlanTemplate) error {
	row, err := toPlanTemplateRow(p)
	if err != nil {
		return err
	}
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		if isForeignKey(err) {
			return &sales.NotFoundError{Kind: "unit", ID: int64(p.UnitID)}
		}
		return fmt.Errorf("create plan template: %w", err)
	}
	p.ID = sales.PlanTemplateID(row.ID)
	p.CreatedAt = row.CreatedAt
	return nil
}

func (s *Store) GetPlanTemplate(ctx context.Context, id sales.PlanTemplateID) (*sales.PlanTemplate, error) {
	var row planTemplateRow
	if err := s.conn(ctx).First(&row, int64(id)).Error; err != nil {
		return nil, notFound(err, "plan template", int64(id))
	}
	return row.toDomain()
}

func (s *Store) ListPlanTemplates(ctx context.Context, unitID sales.UnitID) ([]sales.PlanTemplate, error) {
	var rows []planTemplateRow
	if err := s.conn(ctx).Where("unit_id = ?", int64(unitID)).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list plan templates: %w", err)
	}
	out := make([]sales.PlanTemplate, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// CreateReservation reports a hit on the active-reservation index as a
// conflict; it only fires if a caller skipped the unit lock.
func (s *Store) CreateReservation(ctx context.Context, r *sales.Reservation) error {
	row := toReservationRow(r)
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return &sales.ConflictError{UnitID: r.UnitID}
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	r.ID = sales.ReservationID(row.ID)
	r.CreatedAt = row.CreatedAt
	r.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id sales.ReservationID) (*sales.Reservation, error) {
	var row reservationRow
	if err := s.conn(ctx).First(&row, int64(id)).Error; err != nil {
		return nil, notFound(err, "reservation", int64(id))
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateReservation(ctx context.Context, r *sales.Reservation) error {
	result := s.conn(ctx).Model(&reservationRow{}).Where("id = ?", int64(r.ID)).Updates(map[string]any{
		"status": string(r.Status),
		"notes":  r.Notes,
	})
	if result.Error != nil {
		if isDuplicate(result.Error) {
			return &sales.ConflictError{UnitID: r.UnitID}
		}
		return fmt.Errorf("update reservation %d: %w", r.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return &sales.NotFoundError{Kind: "reservation", ID: int64(r.ID)}
	}
	return nil
}

func (s *Store) FindActiveReservation(ctx context.Context, unitID sales.UnitID) (*sales.Reservation, error) {
	var row reservationRow
	err := s.conn(ctx).
		Where("unit_id = ? AND status = ?", int64(unitID), string(sales.ReservationActive)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active reservation: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) CountReservations(ctx context.Context, unitID sales.UnitID, statuses ...sales.ReservationStatus) (int64, error) {
	q := s.conn(ctx).Model(&reservationRow{}).Where("unit_id = ?", int64(unitID))
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(statuses))
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count reservations: %w", err)
	}
	return n, nil
}

func (s *Store) ListExpiredReservations(ctx context.Context, asOf time.Time) ([]sales.Reservation, error) {
	var rows []reservationRow
	err := s.conn(ctx).
		Where("status = ? AND expiry_date IS NOT NULL AND expiry_date < ?", string(sales.ReservationActive), sales.DateOf(asOf)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	out := make([]sales.Reservation, len(rows))
	for i, r := range rows {
		out[i] = *r.toDomain()
	}
	return out, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *Store) CreatePayments(ctx context.Context, payments []sales.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	rows := make([]paymentRow, len(payments))
	for i := range payments {
		rows[i] = toPaymentRow(&payments[i])
	}
	if err := s.conn(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("create payments: %w", err)
	}
	for i := range rows {
		payments[i].ID = sales.PaymentID(rows[i].ID)
		payments[i].CreatedAt = rows[i].CreatedAt
		payments[i].UpdatedAt = rows[i].UpdatedAt
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id sales.PaymentID) (*sales.Payment, error) {
	var row paymentRow
	if err := s.conn(ctx).First(&row, int64(id)).Error; err != nil {
		return nil, notFound(err, "payment", int64(id))
	}
	p := row.toDomain()
	return &p, nil
}

// ListPayments orders by due date, down payment first on the same day.
func (s *Store) ListPayments(ctx context.Context, reservationID sales.ReservationID) ([]sales.Payment, error) {
	var rows []paymentRow
	err := s.conn(ctx).
		Where("reservation_id = ?", int64(reservationID)).
		Order("due_date, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out := make([]sales.Payment, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) UpdatePayment(ctx context.Context, p *sales.Payment) error {
	row := toPaymentRow(p)
	result := s.conn(ctx).Model(&paymentRow{}).Where("id = ?", row.ID).Updates(map[string]any{
		"status":       row.Status,
		"payment_date": row.PaymentDate,
		"method":       row.Method,
		"receipt_ref":  row.ReceiptRef,
		"recorded_by":  row.RecordedBy,
	})
	if result.Error != nil {
		return fmt.Errorf("update payment %d: %w", p.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return &sales.NotFoundError{Kind: "payment", ID: int64(p.ID)}
	}
	return nil
}

func (s *Store) VoidOpenPayments(ctx context.Context, reservationID sales.ReservationID) (int64, error) {
	result := s.conn(ctx).Model(&paymentRow{}).
		Where("reservation_id = ? AND status IN ?", int64(reservationID),
			[]string{string(sales.PaymentPending), string(sales.PaymentOverdue)}).
		Update("status", string(sales.PaymentVoid))
	if result.Error != nil {
		return 0, fmt.Errorf("void payments of reservation %d: %w", reservationID, result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Store) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	result := s.conn(ctx).Model(&paymentRow{}).
		Where("status = ? AND due_date < ?", string(sales.PaymentPending), sales.DateOf(asOf)).
		Update("status", string(sales.PaymentOverdue))
	if result.Error != nil {
		return 0, fmt.Errorf("mark overdue: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func notFound(err error, kind string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &sales.NotFoundError{Kind: kind, ID: id}
	}
	return fmt.Errorf("get %s %d: %w", kind, id, err)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}

func isForeignKey(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func statusStrings(statuses []sales.ReservationStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
