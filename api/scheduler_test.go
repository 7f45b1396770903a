package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	obtained int
	released int
	err      error
}

func (f *fakeLocker) Obtain(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.held || key != SweepLockKey {
		return nil, ErrLockHeld
	}
	f.held = true
	f.obtained++
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.held = false
		f.released++
		return nil
	}, nil
}

func TestSweepScheduler_RunOnce(t *testing.T) {
	env := newAPIEnv(t)
	unit := env.createUnit("C-201", "1000000", "1200000")
	body := installmentBody(unit.ID, "50000", "0", 3)
	body["expiry_date"] = "2026-03-05"
	rec := env.do(http.MethodPost, "/api/reservations", body, agent)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	locker := &fakeLocker{}
	s := NewSweepScheduler(env.res, locker, quietLogger())
	s.Now = func() time.Time { return time.Date(2026, 4, 2, 3, 0, 0, 0, time.UTC) }

	// WHEN: a run happens after the first installment is due and the expiry passed
	run, err := s.RunOnce(context.Background())

	// THEN: the installment is marked overdue, then the reservation expires
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, int64(1), run.OverdueMarked)
	assert.Equal(t, 1, run.Expiry.Expired)
	assert.Equal(t, 1, locker.obtained)
	assert.Equal(t, 1, locker.released)

	rec = env.do(http.MethodGet, "/api/units/"+strconv.FormatInt(unit.ID, 10), nil, 0)
	assert.Equal(t, "available", decode[UnitDTO](t, rec).Status)

	// AND: a second run finds nothing to do
	run, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, run.OverdueMarked)
	assert.Zero(t, run.Expiry.Expired)
}

func TestSweepScheduler_LockHeldSkipsRun(t *testing.T) {
	env := newAPIEnv(t)
	locker := &fakeLocker{held: true}
	s := NewSweepScheduler(env.res, locker, quietLogger())

	run, err := s.RunOnce(context.Background())

	assert.ErrorIs(t, err, ErrLockHeld)
	assert.Nil(t, run)
	assert.Zero(t, locker.obtained)
}

func TestSweepScheduler_LockErrorIsReturned(t *testing.T) {
	env := newAPIEnv(t)
	boom := errors.New("redis down")
	s := NewSweepScheduler(env.res, &fakeLocker{err: boom}, quietLogger())

	_, err := s.RunOnce(context.Background())

	assert.ErrorIs(t, err, boom)
}

func TestSweepScheduler_RunsWithoutLocker(t *testing.T) {
	env := newAPIEnv(t)
	s := NewSweepScheduler(env.res, nil, quietLogger())
	s.Now = func() time.Time { return bookingDay }

	run, err := s.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, bookingDay.Format(dateLayout), run.AsOf.Format(dateLayout))
}

func TestSweepScheduler_StartStop(t *testing.T) {
	env := newAPIEnv(t)
	locker := &fakeLocker{}
	s := NewSweepScheduler(env.res, locker, quietLogger())
	s.CheckInterval = time.Hour

	s.Start()
	s.Stop()

	// Start runs one sweep immediately; Stop waits for it.
	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Equal(t, 1, locker.obtained)
	assert.False(t, locker.held)
}

func TestSweepScheduler_Restart(t *testing.T) {
	env := newAPIEnv(t)
	locker := &fakeLocker{}
	s := NewSweepScheduler(env.res, locker, quietLogger())
	s.CheckInterval = time.Hour

	// GIVEN: A scheduler that was started and stopped once
	s.Start()
	s.Stop()

	// WHEN: Starting and stopping it again
	s.Start()
	s.Stop()

	// THEN: Each start ran its own sweep
	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Equal(t, 2, locker.obtained)
	assert.False(t, locker.held)
}

func TestSweepScheduler_Disabled(t *testing.T) {
	env := newAPIEnv(t)
	locker := &fakeLocker{}
	s := NewSweepScheduler(env.res, locker, quietLogger())
	s.Enabled = false

	s.Start()
	s.Stop()

	assert.Zero(t, locker.obtained)
}
