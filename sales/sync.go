/*
sync.go - Status synchronization observer

PURPOSE:
  Derives an inventory unit's status from its reservation's status. Called
  explicitly by the state machine after every reservation status write,
  inside the same transaction, so the unit and reservation never disagree
  once the transaction commits.

MAPPING:
  active            -> unit reserved   (no-op if already reserved)
  converted_to_sale -> unit sold       (no-op if already sold)
  cancelled         -> unit available  only if currently reserved;
                       a sold unit is left sold and a warning is logged

FAILURE MODE:
  A reservation whose unit cannot be found is a data corruption. The
  observer logs at error level and returns an *InvariantError so the
  enclosing transaction aborts.

SEE ALSO:
  - reservation.go: Calls ReservationSaved after each transition
*/
package sales

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

type StatusObserver struct {
	locks *LockManager
	log   logrus.FieldLogger
}

func NewStatusObserver(locks *LockManager, log logrus.FieldLogger) *StatusObserver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StatusObserver{locks: locks, log: log.WithField("component", "status_observer")}
}

// ReservationSaved applies the unit status implied by res.Status. The unit
// lock is taken again; re-locking a row the transaction already holds is
// a no-op.
func (o *StatusObserver) ReservationSaved(ctx context.Context, tx Store, res *Reservation) error {
	entry := o.log.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"unit_id":        res.UnitID,
		"status":         res.Status,
	})

	unit, err := o.locks.Lock(ctx, tx, res.UnitID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			entry.Error("reservation references a missing unit")
			return &InvariantError{Message: "reservation references a missing unit", Err: err}
		}
		return err
	}

	var target UnitStatus
	switch res.Status {
	case ReservationActive:
		target = UnitReserved
	case ReservationConverted:
		target = UnitSold
	case ReservationCancelled:
		switch unit.Status {
		case UnitReserved:
			target = UnitAvailable
		case UnitSold:
			entry.Warn("cancelled reservation for a sold unit, leaving unit sold")
			return nil
		default:
			return nil
		}
	default:
		return &InvariantError{Message: "unknown reservation status " + string(res.Status)}
	}

	if unit.Status == target {
		return nil
	}
	if err := tx.UpdateUnitStatus(ctx, unit.ID, target); err != nil {
		return err
	}
	entry.WithField("unit_status", target).Info("unit status synchronized")
	return nil
}
