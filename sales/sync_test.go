package sales_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reservation-engine/sales"
)

func newObserver() *sales.StatusObserver {
	log := quietLogger()
	return sales.NewStatusObserver(sales.NewLockManager(log), log)
}

func TestStatusObserver_CancelOnSoldUnitKeepsSold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	unit := env.newUnit(t, "1001", "500000", "")
	require.NoError(t, env.store.UpdateUnitStatus(ctx, unit.ID, sales.UnitSold))

	// WHEN: A cancelled reservation is observed for a sold unit
	err := env.store.WithTx(ctx, func(tx sales.Store) error {
		return newObserver().ReservationSaved(ctx, tx, &sales.Reservation{ID: 1, UnitID: unit.ID, Status: sales.ReservationCancelled})
	})

	// THEN: No error and the sale stands
	require.NoError(t, err)
	assert.Equal(t, sales.UnitSold, env.unitStatus(t, unit.ID))
}

func TestStatusObserver_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	unit := env.newUnit(t, "1002", "500000", "")
	res := &sales.Reservation{ID: 1, UnitID: unit.ID, Status: sales.ReservationActive}
	obs := newObserver()

	for i := 0; i < 2; i++ {
		err := env.store.WithTx(ctx, func(tx sales.Store) error {
			return obs.ReservationSaved(ctx, tx, res)
		})
		require.NoError(t, err)
		assert.Equal(t, sales.UnitReserved, env.unitStatus(t, unit.ID))
	}
}

func TestStatusObserver_CancelOnInactiveUnitIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	unit := env.newUnit(t, "1003", "500000", "")
	require.NoError(t, env.store.UpdateUnitStatus(ctx, unit.ID, sales.UnitInactive))

	err := env.store.WithTx(ctx, func(tx sales.Store) error {
		return newObserver().ReservationSaved(ctx, tx, &sales.Reservation{ID: 1, UnitID: unit.ID, Status: sales.ReservationCancelled})
	})

	require.NoError(t, err)
	assert.Equal(t, sales.UnitInactive, env.unitStatus(t, unit.ID))
}

func TestStatusObserver_MissingUnitAbortsTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	unit := env.newUnit(t, "1004", "500000", "")

	// WHEN: In one transaction a unit is edited, then a dangling reservation is observed
	err := env.store.WithTx(ctx, func(tx sales.Store) error {
		if err := tx.UpdateUnitStatus(ctx, unit.ID, sales.UnitInactive); err != nil {
			return err
		}
		return newObserver().ReservationSaved(ctx, tx, &sales.Reservation{ID: 1, UnitID: 999, Status: sales.ReservationActive})
	})

	// THEN: Invariant violation and the whole transaction rolled back
	assert.True(t, errors.Is(err, sales.ErrInvariantViolation))
	assert.Equal(t, "internal", sales.Kind(err))
	assert.Equal(t, sales.UnitAvailable, env.unitStatus(t, unit.ID))
}

// =============================================================================
// LOCK MANAGER
// =============================================================================

func TestLockManager_AcquireExclusive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	locks := sales.NewLockManager(quietLogger())
	free := env.newUnit(t, "1101", "500000", "")
	taken := env.newUnit(t, "1102", "500000", "")
	require.NoError(t, env.store.UpdateUnitStatus(ctx, taken.ID, sales.UnitReserved))

	err := env.store.WithTx(ctx, func(tx sales.Store) error {
		u, err := locks.AcquireExclusive(ctx, tx, free.ID)
		require.NoError(t, err)
		assert.Equal(t, free.ID, u.ID)

		_, err = locks.AcquireExclusive(ctx, tx, taken.ID)
		var conflict *sales.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, sales.UnitReserved, conflict.Status)

		_, err = locks.AcquireExclusive(ctx, tx, 999)
		assert.True(t, sales.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
}

func TestLockManager_RequiresTransaction(t *testing.T) {
	env := newTestEnv(t)
	unit := env.newUnit(t, "1103", "500000", "")

	_, err := sales.NewLockManager(quietLogger()).Lock(context.Background(), env.store, unit.ID)

	assert.ErrorIs(t, err, sales.ErrLockOutsideTx)
}
