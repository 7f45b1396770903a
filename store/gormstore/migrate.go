package gormstore

import (
	"fmt"

	"gorm.io/gorm"
)

const activeReservationIndex = "ux_reservations_active_unit"

// migrate applies the schema idempotently: AutoMigrate for tables, columns,
// tag indexes, CHECKs and foreign keys, then raw DDL for the one-active-
// reservation-per-unit index, which gorm tags cannot express.
func (s *Store) migrate() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&unitRow{},
			&planTemplateRow{},
			&reservationRow{},
			&paymentRow{},
		); err != nil {
			return fmt.Errorf("automigrate failed: %w", err)
		}

		if tx.Migrator().HasIndex(&reservationRow{}, activeReservationIndex) {
			return nil
		}
		stmt := activeReservationIndexDDL(s.driver)
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("index migration failed on: %s - %w", stmt, err)
		}
		return nil
	})
}

// activeReservationIndexDDL returns a unique index over unit_id restricted
// to active reservations. Cancelled and converted rows stay for audit.
func activeReservationIndexDDL(driver string) string {
	if driver == DriverMySQL {
		// MySQL 8 has no partial indexes; NULLs never collide in a unique
		// functional index.
		return `CREATE UNIQUE INDEX ` + activeReservationIndex +
			` ON reservations ((CASE WHEN status = 'active' THEN unit_id END))`
	}
	return `CREATE UNIQUE INDEX ` + activeReservationIndex +
		` ON reservations (unit_id) WHERE status = 'active'`
}
