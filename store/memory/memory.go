// Package memory provides an in-memory sales.TxStore for tests and local
// runs without a database.
//
// Transactions are serialized: WithTx holds the store's write lock for the
// whole callback, which makes LockUnit trivially exclusive. Rollback
// restores a snapshot taken when the transaction began.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/reservation-engine/sales"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

type state struct {
	seq          int64
	units        map[sales.UnitID]sales.Unit
	plans        map[sales.PlanTemplateID]sales.PlanTemplate
	reservations map[sales.ReservationID]sales.Reservation
	payments     map[sales.PaymentID]sales.Payment
}

func New() *Memory {
	return &Memory{
		st: &state{
			units:        make(map[sales.UnitID]sales.Unit),
			plans:        make(map[sales.PlanTemplateID]sales.PlanTemplate),
			reservations: make(map[sales.ReservationID]sales.Reservation),
			payments:     make(map[sales.PaymentID]sales.Payment),
		},
		now: time.Now,
	}
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// WithTx executes fn within a transaction.
func (m *Memory) WithTx(ctx context.Context, fn func(sales.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&view{m: m, inTx: true}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *Memory) read() (*view, func()) {
	m.mu.RLock()
	return &view{m: m}, m.mu.RUnlock
}

func (m *Memory) write() (*view, func()) {
	m.mu.Lock()
	return &view{m: m}, m.mu.Unlock
}

func (s *state) clone() *state {
	c := &state{
		seq:          s.seq,
		units:        make(map[sales.UnitID]sales.Unit, len(s.units)),
		plans:        make(map[sales.PlanTemplateID]sales.PlanTemplate, len(s.plans)),
		reservations: make(map[sales.ReservationID]sales.Reservation, len(s.reservations)),
		payments:     make(map[sales.PaymentID]sales.Payment, len(s.payments)),
	}
	for k, v := range s.units {
		c.units[k] = v
	}
	for k, v := range s.plans {
		c.plans[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

func (m *Memory) CreateUnit(ctx context.Context, u *sales.Unit) error {
	v, unlock := m.write()
	defer unlock()
	return v.CreateUnit(ctx, u)
}

func (m *Memory) GetUnit(ctx context.Context, id sales.UnitID) (*sales.Unit, error) {
	v, unlock := m.read()
	defer unlock()
	return v.GetUnit(ctx, id)
}

func (m *Memory) ListUnits(ctx context.Context, status sales.UnitStatus) ([]sales.Unit, error) {
	v, unlock := m.read()
	defer unlock()
	return v.ListUnits(ctx, status)
}

func (m *Memory) LockUnit(ctx context.Context, id sales.UnitID) (*sales.Unit, error) {
	return nil, sales.ErrLockOutsideTx
}

func (m *Memory) UpdateUnitStatus(ctx context.Context, id sales.UnitID, status sales.UnitStatus) error {
	v, unlock := m.write()
	defer unlock()
	return v.UpdateUnitStatus(ctx, id, status)
}

func (m *Memory) CreatePlanTemplate(ctx context.Context, p *sales.PlanTemplate) error {
	v, unlock := m.write()
	defer unlock()
	return v.CreatePlanTemplate(ctx, p)
}

func (m *Memory) GetPlanTemplate(ctx context.Context, id sales.PlanTemplateID) (*sales.PlanTemplate, error) {
	v, unlock := m.read()
	defer unlock()
	return v.GetPlanTemplate(ctx, id)
}

func (m *Memory) ListPlanTemplates(ctx context.Context, unitID sales.UnitID) ([]sales.PlanTemplate, error) {
	v, unlock := m.read()
	defer unlock()
	return v.ListPlanTemplates(ctx, unitID)
}

func (m *Memory) CreateReservation(ctx context.Context, r *sales.Reservation) error {
	v, unlock := m.write()
	defer unlock()
	return v.CreateReservation(ctx, r)
}

func (m *Memory) GetReservation(ctx context.Context, id sales.ReservationID) (*sales.Reservation, error) {
	v, unlock := m.read()
	defer unlock()
	return v.GetReservation(ctx, id)
}

func (m *Memory) UpdateReservation(ctx context.Context, r *sales.Reservation) error {
	v, unlock := m.write()
	defer unlock()
	return v.UpdateReservation(ctx, r)
}

func (m *Memory) FindActiveReservation(ctx context.Context, unitID sales.UnitID) (*sales.Reservation, error) {
	v, unlock := m.read()
	defer unlock()
	return v.FindActiveReservation(ctx, unitID)
}

func (m *Memory) CountReservations(ctx context.Context, unitID sales.UnitID, statuses ...sales.ReservationStatus) (int64, error) {
	v, unlock := m.read()
	defer unlock()
	return v.CountReservations(ctx, unitID, statuses...)
}

func (m *Memory) ListExpiredReservations(ctx context.Context, asOf time.Time) ([]sales.Reservation, error) {
	v, unlock := m.read()
	defer unlock()
	return v.ListExpiredReservations(ctx, asOf)
}

func (m *Memory) CreatePayments(ctx context.Context, payments []sales.Payment) error {
	v, unlock := m.write()
	defer unlock()
	return v.CreatePayments(ctx, payments)
}

func (m *Memory) GetPayment(ctx context.Context, id sales.PaymentID) (*sales.Payment, error) {
	v, unlock := m.read()
	defer unlock()
	return v.GetPayment(ctx, id)
}

func (m *Memory) ListPayments(ctx context.Context, reservationID sales.ReservationID) ([]sales.Payment, error) {
	v, unlock := m.read()
	defer unlock()
	return v.ListPayments(ctx, reservationID)
}

func (m *Memory) UpdatePayment(ctx context.Context, p *sales.Payment) error {
	v, unlock := m.write()
	defer unlock()
	return v.UpdatePayment(ctx, p)
}

func (m *Memory) VoidOpenPayments(ctx context.Context, reservationID sales.ReservationID) (int64, error) {
	v, unlock := m.write()
	defer unlock()
	return v.VoidOpenPayments(ctx, reservationID)
}

func (m *Memory) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	v, unlock := m.write()
	defer unlock()
	return v.MarkOverdue(ctx, asOf)
}

// =============================================================================
// VIEW - Operations on the state; callers hold m.mu
// =============================================================================

type view struct {
	m    *Memory
	inTx bool
}

func (v *view) st() *state { return v.m.st }

func (v *view) CreateUnit(_ context.Context, u *sales.Unit) error {
	st := v.st()
	for _, other := range st.units {
		if other.Project == u.Project && other.Block == u.Block && other.Floor == u.Floor && other.UnitNumber == u.UnitNumber {
			return &sales.ValidationError{Field: "unit_number", Message: "a unit already exists at this project, block, floor and number"}
		}
	}
	now := v.m.now().UTC()
	u.ID = sales.UnitID(st.nextID())
	u.CreatedAt, u.UpdatedAt = now, now
	st.units[u.ID] = *u
	return nil
}

func (v *view) GetUnit(_ context.Context, id sales.UnitID) (*sales.Unit, error) {
	u, ok := v.st().units[id]
	if !ok {
		return nil, &sales.NotFoundError{Kind: "unit", ID: int64(id)}
	}
	return &u, nil
}

func (v *view) ListUnits(_ context.Context, status sales.UnitStatus) ([]sales.Unit, error) {
	var out []sales.Unit
	for _, u := range v.st().units {
		if status == "" || u.Status == status {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.Block != b.Block {
			return a.Block < b.Block
		}
		if a.Floor != b.Floor {
			return a.Floor < b.Floor
		}
		return a.UnitNumber < b.UnitNumber
	})
	return out, nil
}

func (v *view) LockUnit(ctx context.Context, id sales.UnitID) (*sales.Unit, error) {
	if !v.inTx {
		return nil, sales.ErrLockOutsideTx
	}
	return v.GetUnit(ctx, id)
}

func (v *view) UpdateUnitStatus(_ context.Context, id sales.UnitID, status sales.UnitStatus) error {
	st := v.st()
	u, ok := st.units[id]
	if !ok {
		return &sales.NotFoundError{Kind: "unit", ID: int64(id)}
	}
	u.Status = status
	u.UpdatedAt = v.m.now().UTC()
	st.units[id] = u
	return nil
}

func (v *view) CreatePlanTemplate(_ context.Context, p *sales.PlanTemplate) error {
	st := v.st()
	if _, ok := st.units[p.UnitID]; !ok {
		return &sales.NotFoundError{Kind: "unit", ID: int64(p.UnitID)}
	}
	p.ID = sales.PlanTemplateID(st.nextID())
	p.CreatedAt = v.m.now().UTC()
	st.plans[p.ID] = *p
	return nil
}

func (v *view) GetPlanTemplate(_ context.Context, id sales.PlanTemplateID) (*sales.PlanTemplate, error) {
	p, ok := v.st().plans[id]
	if !ok {
		return nil, &sales.NotFoundError{Kind: "plan template", ID: int64(id)}
	}
	return &p, nil
}

func (v *view) ListPlanTemplates(_ context.Context, unitID sales.UnitID) ([]sales.PlanTemplate, error) {
	var out []sales.PlanTemplate
	for _, p := range v.st().plans {
		if p.UnitID == unitID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// activeConflict reports whether another active reservation holds unitID.
func (v *view) activeConflict(unitID sales.UnitID, self sales.ReservationID) bool {
	for _, r := range v.st().reservations {
		if r.UnitID == unitID && r.ID != self && r.Status == sales.ReservationActive {
			return true
		}
	}
	return false
}

func (v *view) CreateReservation(_ context.Context, r *sales.Reservation) error {
	st := v.st()
	if _, ok := st.units[r.UnitID]; !ok {
		return &sales.NotFoundError{Kind: "unit", ID: int64(r.UnitID)}
	}
	if _, ok := st.plans[r.PlanTemplateID]; !ok {
		return &sales.NotFoundError{Kind: "plan template", ID: int64(r.PlanTemplateID)}
	}
	if !r.DepositAmount.IsPositive() {
		return fmt.Errorf("create reservation: deposit_amount must be positive")
	}
	if r.Status == sales.ReservationActive && v.activeConflict(r.UnitID, 0) {
		return &sales.ConflictError{UnitID: r.UnitID}
	}
	now := v.m.now().UTC()
	r.ID = sales.ReservationID(st.nextID())
	r.CreatedAt, r.UpdatedAt = now, now
	st.reservations[r.ID] = *r
	return nil
}

func (v *view) GetReservation(_ context.Context, id sales.ReservationID) (*sales.Reservation, error) {
	r, ok := v.st().reservations[id]
	if !ok {
		return nil, &sales.NotFoundError{Kind: "reservation", ID: int64(id)}
	}
	return &r, nil
}

func (v *view) UpdateReservation(_ context.Context, r *sales.Reservation) error {
	st := v.st()
	stored, ok := st.reservations[r.ID]
	if !ok {
		return &sales.NotFoundError{Kind: "reservation", ID: int64(r.ID)}
	}
	if r.Status == sales.ReservationActive && v.activeConflict(stored.UnitID, r.ID) {
		return &sales.ConflictError{UnitID: stored.UnitID}
	}
	stored.Status = r.Status
	stored.Notes = r.Notes
	stored.UpdatedAt = v.m.now().UTC()
	st.reservations[r.ID] = stored
	r.UpdatedAt = stored.UpdatedAt
	return nil
}

func (v *view) FindActiveReservation(_ context.Context, unitID sales.UnitID) (*sales.Reservation, error) {
	for _, r := range v.st().reservations {
		if r.UnitID == unitID && r.Status == sales.ReservationActive {
			return &r, nil
		}
	}
	return nil, nil
}

func (v *view) CountReservations(_ context.Context, unitID sales.UnitID, statuses ...sales.ReservationStatus) (int64, error) {
	var n int64
	for _, r := range v.st().reservations {
		if r.UnitID == unitID && (len(statuses) == 0 || hasStatus(statuses, r.Status)) {
			n++
		}
	}
	return n, nil
}

func (v *view) ListExpiredReservations(_ context.Context, asOf time.Time) ([]sales.Reservation, error) {
	cutoff := sales.DateOf(asOf)
	var out []sales.Reservation
	for _, r := range v.st().reservations {
		if r.Status == sales.ReservationActive && r.ExpiryDate != nil && sales.DateOf(*r.ExpiryDate).Before(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) CreatePayments(_ context.Context, payments []sales.Payment) error {
	st := v.st()
	for i := range payments {
		if _, ok := st.reservations[payments[i].ReservationID]; !ok {
			return &sales.NotFoundError{Kind: "reservation", ID: int64(payments[i].ReservationID)}
		}
		if payments[i].Amount.IsNegative() {
			return fmt.Errorf("create payments: amount must not be negative")
		}
	}
	now := v.m.now().UTC()
	for i := range payments {
		p := &payments[i]
		p.ID = sales.PaymentID(st.nextID())
		p.DueDate = sales.DateOf(p.DueDate)
		p.CreatedAt, p.UpdatedAt = now, now
		st.payments[p.ID] = *p
	}
	return nil
}

func (v *view) GetPayment(_ context.Context, id sales.PaymentID) (*sales.Payment, error) {
	p, ok := v.st().payments[id]
	if !ok {
		return nil, &sales.NotFoundError{Kind: "payment", ID: int64(id)}
	}
	return &p, nil
}

func (v *view) ListPayments(_ context.Context, reservationID sales.ReservationID) ([]sales.Payment, error) {
	var out []sales.Payment
	for _, p := range v.st().payments {
		if p.ReservationID == reservationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) UpdatePayment(_ context.Context, p *sales.Payment) error {
	st := v.st()
	stored, ok := st.payments[p.ID]
	if !ok {
		return &sales.NotFoundError{Kind: "payment", ID: int64(p.ID)}
	}
	stored.Status = p.Status
	stored.PaymentDate = p.PaymentDate
	stored.Method = p.Method
	stored.ReceiptRef = p.ReceiptRef
	stored.RecordedBy = p.RecordedBy
	stored.UpdatedAt = v.m.now().UTC()
	st.payments[p.ID] = stored
	p.UpdatedAt = stored.UpdatedAt
	return nil
}

func (v *view) VoidOpenPayments(_ context.Context, reservationID sales.ReservationID) (int64, error) {
	return v.transition(func(p sales.Payment) bool {
		return p.ReservationID == reservationID && p.Status.IsOpen()
	}, sales.PaymentVoid), nil
}

func (v *view) MarkOverdue(_ context.Context, asOf time.Time) (int64, error) {
	cutoff := sales.DateOf(asOf)
	return v.transition(func(p sales.Payment) bool {
		return p.Status == sales.PaymentPending && p.DueDate.Before(cutoff)
	}, sales.PaymentOverdue), nil
}

func (v *view) transition(match func(sales.Payment) bool, to sales.PaymentStatus) int64 {
	st := v.st()
	now := v.m.now().UTC()
	var n int64
	for id, p := range st.payments {
		if match(p) {
			p.Status = to
			p.UpdatedAt = now
			st.payments[id] = p
			n++
		}
	}
	return n
}

func hasStatus(statuses []sales.ReservationStatus, s sales.ReservationStatus) bool {
	for _, want := range statuses {
		if want == s {
			return true
		}
	}
	return false
}

var (
	_ sales.TxStore = (*Memory)(nil)
	_ sales.Store   = (*view)(nil)
)
