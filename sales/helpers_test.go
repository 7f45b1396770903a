package sales_test

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/warp/reservation-engine/sales"
	"github.com/warp/reservation-engine/store/gormstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var bookingDay = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

const (
	agent    sales.UserID     = 7
	customer sales.CustomerID = 42
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeContracts struct {
	signed map[sales.ReservationID]bool
}

func (f *fakeContracts) HasSignedContract(_ context.Context, id sales.ReservationID) (bool, error) {
	return f.signed[id], nil
}

type testEnv struct {
	store     *gormstore.Store
	clock     *testClock
	contracts *fakeContracts
	res       *sales.ReservationService
	ledger    *sales.PaymentLedger
	catalog   *sales.CatalogService
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := gormstore.Open(gormstore.Config{
		Driver: gormstore.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "reservations.db"),
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &testClock{now: bookingDay}
	contracts := &fakeContracts{signed: map[sales.ReservationID]bool{}}
	opts := sales.Options{
		Store:     store,
		Logger:    quietLogger(),
		Contracts: contracts,
		Clock:     clock.Now,
	}
	svc := sales.NewReservationService(opts)
	return &testEnv{
		store:     store,
		clock:     clock,
		contracts: contracts,
		res:       svc,
		ledger:    svc.Ledger(),
		catalog:   sales.NewCatalogService(opts),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(n int) *int {
	return &n
}

// newUnit creates an available unit with the given cash and installment prices.
func (e *testEnv) newUnit(t *testing.T, number, cash, installment string) *sales.Unit {
	t.Helper()
	u := &sales.Unit{
		Project:    "Marina Heights",
		Block:      "A",
		Floor:      3,
		UnitNumber: number,
		UnitType:   "2+1",
		CashPrice:  dec(cash),
	}
	if installment != "" {
		u.InstallmentPrice = decimal.NewNullDecimal(dec(installment))
	}
	created, err := e.catalog.CreateUnit(context.Background(), u)
	require.NoError(t, err)
	return created
}

func (e *testEnv) unitStatus(t *testing.T, id sales.UnitID) sales.UnitStatus {
	t.Helper()
	u, err := e.store.GetUnit(context.Background(), id)
	require.NoError(t, err)
	return u.Status
}

func (e *testEnv) payments(t *testing.T, id sales.ReservationID) []sales.Payment {
	t.Helper()
	ps, err := e.store.ListPayments(context.Background(), id)
	require.NoError(t, err)
	return ps
}

// installmentRequest builds a -2 request with the given terms.
func installmentRequest(unitID sales.UnitID, deposit, percent string, count int, rate string) sales.CreateReservationRequest {
	return sales.CreateReservationRequest{
		UnitID:              unitID,
		CustomerID:          customer,
		PaymentPlanSelected: sales.SynthesizeInstallment,
		DepositAmount:       dec(deposit),
		DepositMethod:       sales.MethodBankTransfer,
		DepositReceipt:      "RCPT-001",
		DownPaymentPercent:  decPtr(percent),
		InstallmentCount:    intPtr(count),
		InterestRate:        decPtr(rate),
	}
}

func cashRequest(unitID sales.UnitID, deposit string) sales.CreateReservationRequest {
	return sales.CreateReservationRequest{
		UnitID:              unitID,
		CustomerID:          customer,
		PaymentPlanSelected: sales.SynthesizeCash,
		DepositAmount:       dec(deposit),
		DepositMethod:       sales.MethodCash,
	}
}

func countByStatus(ps []sales.Payment, status sales.PaymentStatus) int {
	n := 0
	for _, p := range ps {
		if p.Status == status {
			n++
		}
	}
	return n
}
