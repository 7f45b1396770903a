package sales

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ReservationSummary is the payment position of one reservation.
type ReservationSummary struct {
	Reservation     *Reservation
	PlanTotal       decimal.Decimal
	DepositAmount   decimal.Decimal
	RemainingAmount decimal.Decimal
	TotalPaid       decimal.Decimal
	// TotalOutstanding sums pending and overdue payments.
	TotalOutstanding decimal.Decimal
	PaymentCount     int
	PaidCount        int
	OverdueCount     int
	IsExpired        bool
}

// Summarize computes a summary from a reservation and its payments. Void
// payments count toward PaymentCount only.
func Summarize(res *Reservation, payments []Payment, asOf time.Time) ReservationSummary {
	sum := ReservationSummary{
		Reservation:      res,
		PlanTotal:        res.PlanTotal,
		DepositAmount:    res.DepositAmount,
		RemainingAmount:  res.RemainingAmount(),
		TotalPaid:        decimal.Zero,
		TotalOutstanding: decimal.Zero,
		PaymentCount:     len(payments),
		IsExpired:        res.Status == ReservationActive && res.IsExpired(asOf),
	}
	for _, p := range payments {
		switch p.Status {
		case PaymentPaid:
			sum.PaidCount++
			sum.TotalPaid = sum.TotalPaid.Add(p.Amount)
		case PaymentOverdue:
			sum.OverdueCount++
			sum.TotalOutstanding = sum.TotalOutstanding.Add(p.Amount)
		case PaymentPending:
			sum.TotalOutstanding = sum.TotalOutstanding.Add(p.Amount)
		}
	}
	return sum
}

// Summary loads a reservation with its payments and summarizes it.
func (s *ReservationService) Summary(ctx context.Context, id ReservationID) (*ReservationSummary, error) {
	res, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := Summarize(res, payments, s.now())
	return &sum, nil
}
