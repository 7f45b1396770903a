/*
store.go - Persistence contracts for units, plans, reservations and payments

PURPOSE:
  Defines the interface between the engine and the transactional database.
  The engine never holds in-process locks: every coordination point is a
  row lock or constraint inside the backing store, so several server
  instances can run against one database.

KEY INTERFACES:
  Store:   Reads and writes for the four tables, plus LockUnit
  TxStore: Store + WithTx for all-or-nothing operations

LOCKING CONTRACT:
  LockUnit takes an exclusive, transaction-scoped lock on one unit row and
  returns the row as it is after the lock is granted. Concurrent callers
  locking the same unit block until the holder commits or rolls back.
  Calling LockUnit on a store not bound to a transaction returns
  ErrLockOutsideTx.

NOT FOUND:
  Get* methods return a *NotFoundError (errors.Is ErrNotFound) when the row
  does not exist. Find* methods return (nil, nil).

STORAGE CONSTRAINTS:
  Implementations must also declare, as a second line of defense:
  - unique (project, block, floor, unit_number) on units
  - at most one active reservation per unit (CreateReservation returns
    *ConflictError when violated)
  - non-negative payment amounts

IMPLEMENTATIONS:
  - store/gormstore: SQLite, PostgreSQL and MySQL via gorm
  - store/memory:    In-process, for tests and local runs

SEE ALSO:
  - lock.go: LockManager built on LockUnit
*/
package sales

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// Units

	CreateUnit(ctx context.Context, u *Unit) error
	GetUnit(ctx context.Context, id UnitID) (*Unit, error)
	ListUnits(ctx context.Context, status UnitStatus) ([]Unit, error)
	// LockUnit locks the unit row for the rest of the transaction.
	LockUnit(ctx context.Context, id UnitID) (*Unit, error)
	UpdateUnitStatus(ctx context.Context, id UnitID, status UnitStatus) error

	// Plan templates (insert-only)

	CreatePlanTemplate(ctx context.Context, p *PlanTemplate) error
	GetPlanTemplate(ctx context.Context, id PlanTemplateID) (*PlanTemplate, error)
	ListPlanTemplates(ctx context.Context, unitID UnitID) ([]PlanTemplate, error)

	// Reservations (never deleted)

	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, id ReservationID) (*Reservation, error)
	// UpdateReservation persists Status and Notes.
	UpdateReservation(ctx context.Context, r *Reservation) error
	FindActiveReservation(ctx context.Context, unitID UnitID) (*Reservation, error)
	CountReservations(ctx context.Context, unitID UnitID, statuses ...ReservationStatus) (int64, error)
	// ListExpiredReservations returns active reservations with expiry_date < asOf.
	ListExpiredReservations(ctx context.Context, asOf time.Time) ([]Reservation, error)

	// Payments

	CreatePayments(ctx context.Context, payments []Payment) error
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	ListPayments(ctx context.Context, reservationID ReservationID) ([]Payment, error)
	// UpdatePayment persists Status, PaymentDate, Method and ReceiptRef.
	UpdatePayment(ctx context.Context, p *Payment) error
	// VoidOpenPayments moves every pending/overdue payment of the reservation to void.
	VoidOpenPayments(ctx context.Context, reservationID ReservationID) (int64, error)
	// MarkOverdue moves every pending payment with due_date < asOf to overdue.
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
