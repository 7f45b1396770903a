package gormstore_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reservation-engine/money"
	"github.com/warp/reservation-engine/sales"
	"github.com/warp/reservation-engine/store/gormstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func openStore(t *testing.T, path string) *gormstore.Store {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	store, err := gormstore.Open(gormstore.Config{Driver: gormstore.DriverSQLite, DSN: path, Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newStore(t *testing.T) *gormstore.Store {
	return openStore(t, filepath.Join(t.TempDir(), "store.db"))
}

func seed(t *testing.T, s *gormstore.Store) (*sales.Unit, *sales.PlanTemplate) {
	t.Helper()
	ctx := context.Background()
	u := &sales.Unit{
		Project: "Harbor", Block: "B", Floor: 1, UnitNumber: "12",
		Status: sales.UnitAvailable, CashPrice: decimal.NewFromInt(400000),
	}
	require.NoError(t, s.CreateUnit(ctx, u))
	p := &sales.PlanTemplate{UnitID: u.ID, Name: "Cash", Details: money.CashDetails{CashPrice: u.CashPrice}, Active: true}
	require.NoError(t, s.CreatePlanTemplate(ctx, p))
	return u, p
}

func reservationFor(u *sales.Unit, p *sales.PlanTemplate) *sales.Reservation {
	return &sales.Reservation{
		UnitID:         u.ID,
		CustomerID:     1,
		PlanTemplateID: p.ID,
		PlanTotal:      u.CashPrice,
		DepositAmount:  u.CashPrice,
		DepositMethod:  sales.MethodCash,
		Status:         sales.ReservationActive,
		ReservedAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		CreatedBy:      1,
	}
}

// =============================================================================
// SCHEMA
// =============================================================================

func TestOpen_MigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	first := openStore(t, path)
	u, _ := seed(t, first)
	require.NoError(t, first.Close())

	// WHEN: Opening the same database again
	second := openStore(t, path)

	// THEN: Schema migration is a no-op and data survives
	got, err := second.GetUnit(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Harbor", got.Project)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := gormstore.Open(gormstore.Config{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}

func TestActiveReservationIndex(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u, p := seed(t, s)

	first := reservationFor(u, p)
	require.NoError(t, s.CreateReservation(ctx, first))

	// WHEN: Inserting a second active reservation for the unit, bypassing the lock
	err := s.CreateReservation(ctx, reservationFor(u, p))

	// THEN: Storage rejects it as a conflict
	assert.True(t, errors.Is(err, sales.ErrConflict), "got %v", err)

	// AND: Once the first is cancelled a new active one is accepted
	first.Status = sales.ReservationCancelled
	require.NoError(t, s.UpdateReservation(ctx, first))
	assert.NoError(t, s.CreateReservation(ctx, reservationFor(u, p)))

	n, err := s.CountReservations(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCreateUnit_UniqueLocation(t *testing.T) {
	s := newStore(t)
	u, _ := seed(t, s)

	dup := *u
	dup.ID = 0
	err := s.CreateUnit(context.Background(), &dup)

	assert.True(t, errors.Is(err, sales.ErrValidation), "got %v", err)
}

func TestCreatePlanTemplate_UnknownUnit(t *testing.T) {
	s := newStore(t)

	err := s.CreatePlanTemplate(context.Background(), &sales.PlanTemplate{
		UnitID: 777, Name: "Cash", Details: money.CashDetails{CashPrice: decimal.NewFromInt(1)}, Active: true,
	})

	assert.True(t, sales.IsNotFound(err), "got %v", err)
}

// =============================================================================
// LOCKING & TRANSACTIONS
// =============================================================================

func TestLockUnit_OutsideTransaction(t *testing.T) {
	s := newStore(t)
	u, _ := seed(t, s)

	_, err := s.LockUnit(context.Background(), u.ID)

	assert.ErrorIs(t, err, sales.ErrLockOutsideTx)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u, _ := seed(t, s)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx sales.Store) error {
		locked, err := tx.LockUnit(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, sales.UnitAvailable, locked.Status)
		require.NoError(t, tx.UpdateUnitStatus(ctx, u.ID, sales.UnitReserved))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	got, err := s.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.UnitAvailable, got.Status)
}

func TestGetters_NotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetUnit(ctx, 1)
	assert.True(t, sales.IsNotFound(err))
	_, err = s.GetPlanTemplate(ctx, 1)
	assert.True(t, sales.IsNotFound(err))
	_, err = s.GetReservation(ctx, 1)
	assert.True(t, sales.IsNotFound(err))
	_, err = s.GetPayment(ctx, 1)
	assert.True(t, sales.IsNotFound(err))

	res, err := s.FindActiveReservation(ctx, 1)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestPayments_BulkTransitions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u, p := seed(t, s)
	res := reservationFor(u, p)
	require.NoError(t, s.CreateReservation(ctx, res))

	day := func(d int) time.Time { return time.Date(2026, 4, d, 0, 0, 0, 0, time.UTC) }
	payments := []sales.Payment{
		{ReservationID: res.ID, Type: sales.PaymentInstallment, Amount: decimal.NewFromInt(100), DueDate: day(1), Status: sales.PaymentPending, RecordedBy: 1},
		{ReservationID: res.ID, Type: sales.PaymentInstallment, Amount: decimal.NewFromInt(100), DueDate: day(10), Status: sales.PaymentPending, RecordedBy: 1},
		{ReservationID: res.ID, Type: sales.PaymentInstallment, Amount: decimal.NewFromInt(100), DueDate: day(20), Status: sales.PaymentPending, RecordedBy: 1},
	}
	require.NoError(t, s.CreatePayments(ctx, payments))
	for _, pay := range payments {
		assert.NotZero(t, pay.ID)
	}

	// Overdue strictly before the date
	n, err := s.MarkOverdue(ctx, day(10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Void pending and overdue
	n, err = s.VoidOpenPayments(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	listed, err := s.ListPayments(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "2026-04-01", listed[0].DueDate.Format(time.DateOnly))
	for _, pay := range listed {
		assert.Equal(t, sales.PaymentVoid, pay.Status)
	}
}

func TestListExpiredReservations(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u, p := seed(t, s)

	expiry := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	res := reservationFor(u, p)
	res.ExpiryDate = &expiry
	require.NoError(t, s.CreateReservation(ctx, res))

	none, err := s.ListExpiredReservations(ctx, expiry)
	require.NoError(t, err)
	assert.Empty(t, none)

	due, err := s.ListExpiredReservations(ctx, expiry.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, res.ID, due[0].ID)
}
