package sales_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reservation-engine/sales"
)

func TestExpireReservations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	expiry := bookingDay.AddDate(0, 0, 5)
	later := bookingDay.AddDate(0, 0, 60)

	// GIVEN: An expiring reservation with nothing paid
	u1 := env.newUnit(t, "901", "500000", "600000")
	req := installmentRequest(u1.ID, "5000", "0", 3, "0")
	req.ExpiryDate = &expiry
	lapsed, err := env.res.CreateReservation(ctx, req, agent)
	require.NoError(t, err)

	// AND: An expiring cash reservation (deposit paid, cannot be cancelled)
	u2 := env.newUnit(t, "902", "500000", "")
	cash := cashRequest(u2.ID, "500000")
	cash.ExpiryDate = &expiry
	paid, err := env.res.CreateReservation(ctx, cash, agent)
	require.NoError(t, err)

	// AND: A reservation expiring later
	u3 := env.newUnit(t, "903", "500000", "600000")
	req3 := installmentRequest(u3.ID, "5000", "0", 3, "0")
	req3.ExpiryDate = &later
	live, err := env.res.CreateReservation(ctx, req3, agent)
	require.NoError(t, err)

	// WHEN: Expiring on day 10
	env.clock.Set(bookingDay.AddDate(0, 0, 10))
	result, err := env.res.ExpireReservations(ctx, bookingDay.AddDate(0, 0, 10), agent)
	require.NoError(t, err)

	// THEN: Only the unpaid lapsed reservation is cancelled
	assert.Equal(t, sales.ExpiryResult{Expired: 1, Skipped: 1}, result)

	got, err := env.res.GetReservation(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.ReservationCancelled, got.Status)
	assert.Contains(t, got.Notes, sales.ReasonExpired)
	assert.Equal(t, sales.UnitAvailable, env.unitStatus(t, u1.ID))

	got, err = env.res.GetReservation(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.ReservationActive, got.Status)

	got, err = env.res.GetReservation(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.ReservationActive, got.Status)

	// AND: A second run has nothing left to expire
	result, err = env.res.ExpireReservations(ctx, bookingDay.AddDate(0, 0, 10), agent)
	require.NoError(t, err)
	assert.Equal(t, sales.ExpiryResult{Skipped: 1}, result)
}

func TestExpireReservations_ExpiryDayItselfIsNotExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	expiry := bookingDay.AddDate(0, 0, 5)

	u := env.newUnit(t, "904", "500000", "600000")
	req := installmentRequest(u.ID, "5000", "0", 3, "0")
	req.ExpiryDate = &expiry
	_, err := env.res.CreateReservation(ctx, req, agent)
	require.NoError(t, err)

	// WHEN: Sweeping late on the expiry day
	result, err := env.res.ExpireReservations(ctx, sales.DateOf(expiry).Add(23*time.Hour), agent)
	require.NoError(t, err)

	// THEN: The reservation still holds the unit
	assert.Zero(t, result.Expired)
	assert.Equal(t, sales.UnitReserved, env.unitStatus(t, u.ID))

	// WHEN: Sweeping the next day
	result, err = env.res.ExpireReservations(ctx, sales.DateOf(expiry).AddDate(0, 0, 1), agent)
	require.NoError(t, err)

	// THEN: It is expired and the unit released
	assert.Equal(t, sales.ExpiryResult{Expired: 1}, result)
	assert.Equal(t, sales.UnitAvailable, env.unitStatus(t, u.ID))
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// GIVEN: 20% down, 6 installments; one paid, one overdue
	u := env.newUnit(t, "911", "550000", "600000")
	res, err := env.res.CreateReservation(ctx, installmentRequest(u.ID, "120000", "20", 6, "0"), agent)
	require.NoError(t, err)
	ps := env.payments(t, res.ID)
	_, err = env.ledger.MarkPaid(ctx, ps[1].ID, sales.MarkPaidInput{}, agent)
	require.NoError(t, err)
	_, err = env.ledger.SweepOverdue(ctx, bookingDay.AddDate(0, 0, 61))
	require.NoError(t, err)

	// WHEN: Summarizing
	sum, err := env.res.Summary(ctx, res.ID)
	require.NoError(t, err)

	// THEN
	assert.Equal(t, "600000.00", sum.PlanTotal.StringFixed(2))
	assert.Equal(t, "480000.00", sum.RemainingAmount.StringFixed(2))
	assert.Equal(t, "200000.00", sum.TotalPaid.StringFixed(2))
	assert.Equal(t, "400000.00", sum.TotalOutstanding.StringFixed(2))
	assert.Equal(t, 7, sum.PaymentCount)
	assert.Equal(t, 2, sum.PaidCount)
	assert.Equal(t, 1, sum.OverdueCount)
	assert.False(t, sum.IsExpired)
}

func TestSummarize_Expired(t *testing.T) {
	expiry := bookingDay.AddDate(0, 0, 3)
	res := &sales.Reservation{
		Status:        sales.ReservationActive,
		PlanTotal:     dec("1000"),
		DepositAmount: dec("100"),
		ExpiryDate:    &expiry,
	}

	sum := sales.Summarize(res, nil, bookingDay.AddDate(0, 0, 4))

	assert.True(t, sum.IsExpired)
	assert.Equal(t, "900.00", sum.RemainingAmount.StringFixed(2))
	assert.True(t, sum.TotalPaid.IsZero())
}
