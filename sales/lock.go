/*
lock.go - Inventory lock manager

PURPOSE:
  Gives the state machine exclusive, transaction-scoped access to one
  unit's status. The lock is the store's row lock (SELECT ... FOR UPDATE
  on PostgreSQL/MySQL, the database write lock on SQLite) and is released
  when the enclosing transaction commits or rolls back.

RE-VALIDATION:
  The advisory availability check done before the transaction and the
  lock acquisition are not atomic. AcquireExclusive therefore always
  re-reads the unit after the lock is granted and fails with a
  *ConflictError when it is no longer available.

SEE ALSO:
  - store.go: LockUnit contract
  - reservation.go: Creation protocol
*/
package sales

import (
	"context"

	"github.com/sirupsen/logrus"
)

type LockManager struct {
	log logrus.FieldLogger
}

func NewLockManager(log logrus.FieldLogger) *LockManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LockManager{log: log.WithField("component", "lock_manager")}
}

// Lock blocks until the unit row is exclusively held by tx, then returns
// the unit as currently committed.
func (m *LockManager) Lock(ctx context.Context, tx Store, id UnitID) (*Unit, error) {
	unit, err := tx.LockUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{"unit_id": id, "status": unit.Status}).Debug("unit locked")
	return unit, nil
}

// AcquireExclusive locks the unit and requires it to still be available.
func (m *LockManager) AcquireExclusive(ctx context.Context, tx Store, id UnitID) (*Unit, error) {
	unit, err := m.Lock(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !unit.IsAvailable() {
		m.log.WithFields(logrus.Fields{"unit_id": id, "status": unit.Status}).Warn("unit not available after lock")
		return nil, &ConflictError{UnitID: id, Status: unit.Status}
	}
	return unit, nil
}
