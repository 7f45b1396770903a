/*
reservation.go - Reservation state machine

PURPOSE:
  Owns the lifecycle of a Reservation: creation under an exclusive unit
  lock, conversion to sale and cancellation. Every transition runs in one
  store transaction and ends by calling the StatusObserver, so the unit's
  status is always derived from the reservation inside the same commit.

STATES:
  ┌────────┐  ConvertToSale   ┌───────────────────┐
  │ active │ ───────────────▶ │ converted_to_sale │  (terminal)
  └────────┘                  └───────────────────┘
       │       Cancel          ┌───────────┐
       └─────────────────────▶ │ cancelled │          (terminal)
                               └───────────┘
  Any other transition fails with a *TransitionError.

CREATION PROTOCOL:
  1. Validate request shape
  2. Advisory check: unit exists and is available (outside the tx)
  3. Open tx, AcquireExclusive(unit) -> re-validated under the lock
  4. Resolve or synthesize the plan template
  5. Insert reservation (active)
  6. StatusObserver -> unit reserved
  7. Installment plan with a count: down payment + N installments
     Cash plan: deposit recorded as a paid payment
  8. Commit. Any error rolls back steps 3-7.

CANCEL GUARDS:
  - no payment of the reservation is paid
  - ContractChecker reports no signed contract
  On success the reason is appended to notes, pending/overdue payments
  become void and the unit is released (unless it is already sold).

SEE ALSO:
  - lock.go: LockManager
  - sync.go: StatusObserver
  - ledger.go: PaymentLedger
*/
package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/reservation-engine/money"
	"go.opentelemetry.io/otel/attribute"
)

// ReasonExpired is the cancellation reason recorded by ExpireReservations.
const ReasonExpired = "reservation expired"

// CreateReservationRequest is the input of CreateReservation.
type CreateReservationRequest struct {
	UnitID              UnitID
	CustomerID          CustomerID
	SalesRepID          *UserID
	PaymentPlanSelected PlanTemplateID
	DepositAmount       decimal.Decimal
	DepositMethod       PaymentMethod
	DepositReceipt      string
	ExpiryDate          *time.Time
	Notes               string

	// Required when PaymentPlanSelected is SynthesizeInstallment.
	DownPaymentPercent *decimal.Decimal
	InstallmentCount   *int
	InterestRate       *decimal.Decimal
}

// Validate checks the request shape. Checks needing the unit or the
// current date run later, under the lock.
func (r CreateReservationRequest) Validate() error {
	if r.UnitID <= 0 {
		return &ValidationError{Field: "unit_id", Message: "is required"}
	}
	if r.CustomerID <= 0 {
		return &ValidationError{Field: "customer_id", Message: "is required"}
	}
	if !r.DepositAmount.IsPositive() {
		return &ValidationError{Field: "deposit_amount", Message: "must be greater than zero"}
	}
	if !r.DepositMethod.Valid() {
		return &ValidationError{Field: "deposit_payment_method", Message: "unknown payment method " + string(r.DepositMethod)}
	}
	sel := r.PaymentPlanSelected
	if sel != SynthesizeCash && sel != SynthesizeInstallment && sel <= 0 {
		return &ValidationError{Field: "payment_plan_selected", Message: "must be a template id, -1 (cash) or -2 (installment)"}
	}
	if sel == SynthesizeInstallment {
		if _, err := r.installmentTerms(); err != nil {
			return err
		}
	}
	return nil
}

func (r CreateReservationRequest) installmentTerms() (InstallmentTerms, error) {
	switch {
	case r.DownPaymentPercent == nil:
		return InstallmentTerms{}, &ValidationError{Field: "down_payment_percent", Message: "is required for installment plans"}
	case r.InstallmentCount == nil:
		return InstallmentTerms{}, &ValidationError{Field: "installment_count", Message: "is required for installment plans"}
	case r.InterestRate == nil:
		return InstallmentTerms{}, &ValidationError{Field: "interest_rate", Message: "is required for installment plans"}
	}
	return InstallmentTerms{
		DownPaymentPercent: *r.DownPaymentPercent,
		InstallmentCount:   *r.InstallmentCount,
		InterestRate:       *r.InterestRate,
	}, nil
}

// =============================================================================
// SERVICE
// =============================================================================

type ReservationService struct {
	store     TxStore
	locks     *LockManager
	observer  *StatusObserver
	ledger    *PaymentLedger
	contracts ContractChecker
	log       logrus.FieldLogger
	now       Clock
}

func NewReservationService(opts Options) *ReservationService {
	opts = opts.withDefaults()
	locks := NewLockManager(opts.Logger)
	return &ReservationService{
		store:     opts.Store,
		locks:     locks,
		observer:  NewStatusObserver(locks, opts.Logger),
		ledger:    NewPaymentLedger(opts),
		contracts: opts.Contracts,
		log:       opts.Logger.WithField("component", "reservations"),
		now:       opts.Clock,
	}
}

// Ledger exposes the payment ledger sharing this service's store.
func (s *ReservationService) Ledger() *PaymentLedger {
	return s.ledger
}

// GetReservation returns a reservation by id.
func (s *ReservationService) GetReservation(ctx context.Context, id ReservationID) (*Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// =============================================================================
// CREATE
// =============================================================================

// CreateReservation reserves a unit for a customer. At most one caller
// racing for the same unit succeeds; the others get a *ConflictError.
func (s *ReservationService) CreateReservation(ctx context.Context, req CreateReservationRequest, actor UserID) (_ *Reservation, err error) {
	ctx, span := startSpan(ctx, "ReservationService.CreateReservation",
		attribute.Int64("unit.id", int64(req.UnitID)),
		attribute.Int64("plan.selected", int64(req.PaymentPlanSelected)),
	)
	defer func() { finishSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	if req.ExpiryDate != nil && DateOf(*req.ExpiryDate).Before(DateOf(now)) {
		return nil, &ValidationError{Field: "expiry_date", Message: "must not be in the past"}
	}

	// Advisory pre-check; authoritative check happens under the lock.
	unit, err := s.store.GetUnit(ctx, req.UnitID)
	if err != nil {
		return nil, err
	}
	if !unit.IsAvailable() {
		return nil, &ConflictError{UnitID: unit.ID, Status: unit.Status}
	}

	var created *Reservation
	err = s.store.WithTx(ctx, func(tx Store) error {
		unit, err := s.locks.AcquireExclusive(ctx, tx, req.UnitID)
		if err != nil {
			return err
		}

		tmpl, err := resolvePlan(ctx, tx, unit, req)
		if err != nil {
			return err
		}

		res := &Reservation{
			UnitID:         unit.ID,
			CustomerID:     req.CustomerID,
			SalesRepID:     req.SalesRepID,
			PlanTemplateID: tmpl.ID,
			PlanTotal:      tmpl.Details.Total(),
			DepositAmount:  req.DepositAmount,
			DepositMethod:  req.DepositMethod,
			DepositReceipt: req.DepositReceipt,
			Status:         ReservationActive,
			ReservedAt:     now,
			ExpiryDate:     req.ExpiryDate,
			Notes:          req.Notes,
			CreatedBy:      actor,
		}
		if err := tx.CreateReservation(ctx, res); err != nil {
			return err
		}
		if err := s.observer.ReservationSaved(ctx, tx, res); err != nil {
			return err
		}

		switch d := tmpl.Details.(type) {
		case money.InstallmentDetails:
			if d.Parameterized() {
				firstDue := AddDays(res.ReservedAt, InstallmentSpacingDays)
				if _, err := s.ledger.GenerateInstallmentSchedule(ctx, tx, res, d, firstDue); err != nil {
					return err
				}
			}
		case money.CashDetails:
			if _, err := s.ledger.RecordDeposit(ctx, tx, res); err != nil {
				return err
			}
		}

		created = res
		return nil
	})
	if err != nil {
		s.logFailure(err, logrus.Fields{"unit_id": req.UnitID, "actor_id": actor}, "reservation not created")
		return nil, err
	}

	span.SetAttributes(attribute.Int64("reservation.id", int64(created.ID)))
	s.log.WithFields(logrus.Fields{
		"reservation_id": created.ID,
		"unit_id":        created.UnitID,
		"plan_id":        created.PlanTemplateID,
		"actor_id":       actor,
	}).Info("reservation created")
	return created, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// ConvertToSale moves an active reservation to converted_to_sale and the
// unit to sold.
func (s *ReservationService) ConvertToSale(ctx context.Context, id ReservationID, actor UserID) (_ *Reservation, err error) {
	ctx, span := startSpan(ctx, "ReservationService.ConvertToSale", attribute.Int64("reservation.id", int64(id)))
	defer func() { finishSpan(span, err) }()

	res, err := s.transition(ctx, id, ReservationConverted, func(ctx context.Context, tx Store, res *Reservation) error {
		return nil
	})
	if err != nil {
		s.logFailure(err, logrus.Fields{"reservation_id": id, "actor_id": actor}, "conversion rejected")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"reservation_id": id, "unit_id": res.UnitID, "actor_id": actor}).Info("reservation converted to sale")
	return res, nil
}

// Cancel moves an active reservation to cancelled when no payment is paid
// and no contract is signed.
func (s *ReservationService) Cancel(ctx context.Context, id ReservationID, reason string, actor UserID) (_ *Reservation, err error) {
	ctx, span := startSpan(ctx, "ReservationService.Cancel", attribute.Int64("reservation.id", int64(id)))
	defer func() { finishSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "is required"}
	}

	var voided int64
	res, err := s.transition(ctx, id, ReservationCancelled, func(ctx context.Context, tx Store, res *Reservation) error {
		payments, err := tx.ListPayments(ctx, res.ID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.Status == PaymentPaid {
				return &GuardError{ReservationID: res.ID, UnitID: res.UnitID, Reason: "cannot cancel a reservation with paid payments"}
			}
		}

		signed, err := s.contracts.HasSignedContract(ctx, res.ID)
		if err != nil {
			return fmt.Errorf("check contract for reservation %d: %w", res.ID, err)
		}
		if signed {
			return &GuardError{ReservationID: res.ID, UnitID: res.UnitID, Reason: "cannot cancel a reservation with a signed contract"}
		}

		res.Notes = appendNote(res.Notes, "Cancellation reason: "+reason)
		voided, err = tx.VoidOpenPayments(ctx, res.ID)
		return err
	})
	if err != nil {
		s.logFailure(err, logrus.Fields{"reservation_id": id, "actor_id": actor}, "cancellation rejected")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"reservation_id": id,
		"unit_id":        res.UnitID,
		"actor_id":       actor,
		"voided":         voided,
	}).Info("reservation cancelled")
	return res, nil
}

// transition runs the shared lock / re-read / status check / observer
// sequence. apply runs under the lock before the status is written.
func (s *ReservationService) transition(
	ctx context.Context,
	id ReservationID,
	to ReservationStatus,
	apply func(ctx context.Context, tx Store, res *Reservation) error,
) (*Reservation, error) {
	var out *Reservation
	err := s.store.WithTx(ctx, func(tx Store) error {
		res, err := tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.locks.Lock(ctx, tx, res.UnitID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return &InvariantError{Message: fmt.Sprintf("reservation %d references a missing unit", id), Err: err}
			}
			return err
		}

		// Another caller may have moved the reservation while we waited.
		res, err = tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if res.Status != ReservationActive {
			return &TransitionError{Entity: "reservation", ID: int64(id), From: string(res.Status), To: string(to)}
		}

		if err := apply(ctx, tx, res); err != nil {
			return err
		}
		res.Status = to
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}
		if err := s.observer.ReservationSaved(ctx, tx, res); err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

// logFailure logs expected business failures at warn and everything else
// at error.
func (s *ReservationService) logFailure(err error, fields logrus.Fields, msg string) {
	entry := s.log.WithFields(fields).WithError(err).WithField("kind", Kind(err))
	if IsClientError(err) {
		entry.Warn(msg)
		return
	}
	entry.Error(msg)
}
