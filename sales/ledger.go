/*
ledger.go - Payment ledger

PURPOSE:
  Owns the Payment rows of a reservation: materializes installment
  schedules, records collected deposits, marks payments paid and moves
  past-due payments to overdue.

SCHEDULE:
  For an installment plan with N installments and first due date S:
    - one down_payment, Paid at booking, when the down payment is > 0,
      carrying the deposit's method and receipt
    - N installments, Pending, due S, S+30, ..., S+30*(N-1) days
  The schedule sums to the plan total.

PAYMENT TRANSITIONS:
  pending -> overdue    SweepOverdue (idempotent)
  pending -> paid       MarkPaid
  overdue -> paid       MarkPaid
  pending|overdue -> void   reservation cancelled
  paid and void are final.

SEE ALSO:
  - money/calculator.go: Produces the installment amounts
  - reservation.go: Calls the ledger during creation and cancellation
*/
package sales

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/reservation-engine/money"
	"go.opentelemetry.io/otel/attribute"
)

// InstallmentSpacingDays is the gap between consecutive installment due dates.
const InstallmentSpacingDays = 30

type PaymentLedger struct {
	store TxStore
	locks *LockManager
	log   logrus.FieldLogger
	now   Clock
}

func NewPaymentLedger(opts Options) *PaymentLedger {
	opts = opts.withDefaults()
	return &PaymentLedger{
		store: opts.Store,
		locks: NewLockManager(opts.Logger),
		log:   opts.Logger.WithField("component", "payment_ledger"),
		now:   opts.Clock,
	}
}

// =============================================================================
// SCHEDULE GENERATION
// =============================================================================

// BuildInstallmentSchedule returns the unsaved payments for an installment
// plan whose first installment falls due on startDate.
func BuildInstallmentSchedule(res *Reservation, d money.InstallmentDetails, startDate time.Time) []Payment {
	payments := make([]Payment, 0, d.InstallmentCount+1)

	if d.DownPaymentAmount.IsPositive() {
		paidAt := res.ReservedAt
		payments = append(payments, Payment{
			ReservationID: res.ID,
			Type:          PaymentDownPayment,
			Amount:        d.DownPaymentAmount,
			DueDate:       DateOf(res.ReservedAt),
			PaymentDate:   &paidAt,
			Status:        PaymentPaid,
			Method:        res.DepositMethod,
			ReceiptRef:    res.DepositReceipt,
			RecordedBy:    res.CreatedBy,
		})
	}

	for i := 1; i <= d.InstallmentCount; i++ {
		n := i
		payments = append(payments, Payment{
			ReservationID:     res.ID,
			Type:              PaymentInstallment,
			Amount:            d.MonthlyInstallment,
			DueDate:           AddDays(startDate, InstallmentSpacingDays*(i-1)),
			Status:            PaymentPending,
			InstallmentNumber: &n,
			RecordedBy:        res.CreatedBy,
		})
	}
	return payments
}

// GenerateInstallmentSchedule persists the schedule inside tx.
func (l *PaymentLedger) GenerateInstallmentSchedule(ctx context.Context, tx Store, res *Reservation, d money.InstallmentDetails, startDate time.Time) ([]Payment, error) {
	if !d.Parameterized() {
		return nil, &ValidationError{Field: "installment_count", Message: "plan has no installment count"}
	}
	payments := BuildInstallmentSchedule(res, d, startDate)
	if err := tx.CreatePayments(ctx, payments); err != nil {
		return nil, err
	}
	l.log.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"installments":   d.InstallmentCount,
		"first_due":      DateOf(startDate).Format(time.DateOnly),
	}).Info("installment schedule created")
	return payments, nil
}

// RecordDeposit stores the collected deposit of a cash plan as a paid payment.
func (l *PaymentLedger) RecordDeposit(ctx context.Context, tx Store, res *Reservation) (*Payment, error) {
	paidAt := res.ReservedAt
	p := Payment{
		ReservationID: res.ID,
		Type:          PaymentDeposit,
		Amount:        res.DepositAmount,
		DueDate:       DateOf(res.ReservedAt),
		PaymentDate:   &paidAt,
		Status:        PaymentPaid,
		Method:        res.DepositMethod,
		ReceiptRef:    res.DepositReceipt,
		RecordedBy:    res.CreatedBy,
	}
	payments := []Payment{p}
	if err := tx.CreatePayments(ctx, payments); err != nil {
		return nil, err
	}
	return &payments[0], nil
}

// =============================================================================
// MARK PAID
// =============================================================================

// MarkPaidInput carries the optional details of a collected payment.
type MarkPaidInput struct {
	PaymentDate *time.Time
	Method      PaymentMethod
	ReceiptRef  string
}

// MarkPaid moves a pending or overdue payment to paid. The reservation's
// unit is locked first so the payment cannot race a cancellation voiding it.
func (l *PaymentLedger) MarkPaid(ctx context.Context, id PaymentID, in MarkPaidInput, actor UserID) (_ *Payment, err error) {
	ctx, span := startSpan(ctx, "PaymentLedger.MarkPaid", attribute.Int64("payment.id", int64(id)))
	defer func() { finishSpan(span, err) }()

	if in.Method != "" && !in.Method.Valid() {
		return nil, &ValidationError{Field: "payment_method", Message: "unknown payment method " + string(in.Method)}
	}

	var updated *Payment
	err = l.store.WithTx(ctx, func(tx Store) error {
		p, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		res, err := tx.GetReservation(ctx, p.ReservationID)
		if err != nil {
			return err
		}
		if _, err := l.locks.Lock(ctx, tx, res.UnitID); err != nil {
			return err
		}

		// Re-read under the lock.
		p, err = tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if !p.Status.IsOpen() {
			return &TransitionError{Entity: "payment", ID: int64(p.ID), From: string(p.Status), To: string(PaymentPaid)}
		}

		paidAt := l.now()
		if in.PaymentDate != nil {
			paidAt = *in.PaymentDate
		}
		p.Status = PaymentPaid
		p.PaymentDate = &paidAt
		if in.Method != "" {
			p.Method = in.Method
		}
		if in.ReceiptRef != "" {
			p.ReceiptRef = in.ReceiptRef
		}
		p.RecordedBy = actor
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"payment_id":     updated.ID,
		"reservation_id": updated.ReservationID,
		"actor_id":       actor,
		"amount":         updated.Amount.StringFixed(money.MinorUnitPlaces),
	}).Info("payment marked paid")
	return updated, nil
}

// =============================================================================
// OVERDUE SWEEP
// =============================================================================

// SweepOverdue marks every pending payment due before asOf's date as
// overdue and returns how many changed. Re-running with the same date
// changes nothing.
func (l *PaymentLedger) SweepOverdue(ctx context.Context, asOf time.Time) (_ int64, err error) {
	ctx, span := startSpan(ctx, "PaymentLedger.SweepOverdue", attribute.String("as_of", DateOf(asOf).Format(time.DateOnly)))
	defer func() { finishSpan(span, err) }()

	var n int64
	err = l.store.WithTx(ctx, func(tx Store) error {
		var err error
		n, err = tx.MarkOverdue(ctx, DateOf(asOf))
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.log.WithFields(logrus.Fields{"as_of": DateOf(asOf).Format(time.DateOnly), "count": n}).Info("payments marked overdue")
	}
	return n, nil
}

// ListPayments returns a reservation's payments ordered by due date.
func (l *PaymentLedger) ListPayments(ctx context.Context, id ReservationID) ([]Payment, error) {
	if _, err := l.store.GetReservation(ctx, id); err != nil {
		return nil, err
	}
	return l.store.ListPayments(ctx, id)
}
