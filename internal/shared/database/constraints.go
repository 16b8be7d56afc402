package database

import (
	"strings"

	"gorm.io/gorm"
)

// MigrateConstraints adds the database-level backstops for concurrency control.
// Admission control lives in the hold manager; these constraints make the ledger
// itself reject an overlapping confirmed booking if application logic ever slips.
func MigrateConstraints(db *gorm.DB) error {
	// int4range in the exclusion constraint needs btree_gist for the = operators
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS btree_gist;`).Error; err != nil {
		return err
	}

	// No two active (confirmed) booking seats may overlap in time on the same seat.
	// Half-open ranges: [start_minute, end_minute).
	err := db.Exec(`
		ALTER TABLE booking_seats
		ADD CONSTRAINT no_overlapping_confirmed_seats
		EXCLUDE USING gist (
			seat_id WITH =,
			date WITH =,
			int4range(start_minute, end_minute) WITH &&
		) WHERE (active);
	`).Error
	if err != nil && !isDuplicateConstraint(err) {
		return err
	}

	// Index for seat availability overlap queries
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_booking_seats_seat_date
		ON booking_seats (seat_id, date);
	`).Error
	if err != nil {
		return err
	}

	// Index for hold conflict checks scoped to a venue/date
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_hold_seats_seat_date
		ON hold_seats (seat_id, date);
	`).Error
	if err != nil {
		return err
	}

	return nil
}

// isDuplicateConstraint reports whether err is Postgres complaining that the
// exclusion constraint already exists (42710); re-running migrations is normal.
func isDuplicateConstraint(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "42710"))
}
