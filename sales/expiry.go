package sales

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ExpiryResult summarizes one ExpireReservations run.
type ExpiryResult struct {
	Expired int `json:"expired"`
	// Skipped counts reservations a guard kept active (paid payments,
	// signed contract) or that changed state concurrently.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ExpireReservations cancels every active reservation whose expiry date is
// before asOf's date. Each reservation is cancelled in its own transaction
// through Cancel, so a failure on one never rolls back the others.
func (s *ReservationService) ExpireReservations(ctx context.Context, asOf time.Time, actor UserID) (_ ExpiryResult, err error) {
	ctx, span := startSpan(ctx, "ReservationService.ExpireReservations", attribute.String("as_of", DateOf(asOf).Format(time.DateOnly)))
	defer func() { finishSpan(span, err) }()

	expired, err := s.store.ListExpiredReservations(ctx, DateOf(asOf))
	if err != nil {
		return ExpiryResult{}, err
	}

	var result ExpiryResult
	for _, res := range expired {
		_, err := s.Cancel(ctx, res.ID, ReasonExpired, actor)
		switch {
		case err == nil:
			result.Expired++
		case errors.Is(err, ErrGuardViolation), errors.Is(err, ErrInvalidTransition):
			result.Skipped++
		default:
			result.Failed++
			s.log.WithFields(logrus.Fields{"reservation_id": res.ID}).WithError(err).Error("expiry cancellation failed")
		}
	}

	if len(expired) > 0 {
		s.log.WithFields(logrus.Fields{
			"as_of":   DateOf(asOf).Format(time.DateOnly),
			"expired": result.Expired,
			"skipped": result.Skipped,
			"failed":  result.Failed,
		}).Info("expired reservations processed")
	}
	return result, nil
}
