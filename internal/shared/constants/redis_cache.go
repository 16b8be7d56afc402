package constants

import (
	"fmt"

	"github.com/google/uuid"
)

// Redis key layout for the reservation engine.
// Pattern: seatly:{concern}:{identifier}:{params?}
// Seat lock keys are the exception and stay as seatlock:{venue}:{seat}.

const (
	CachePrefix = "seatly"

	// Availability snapshots, one entry per queried (venue, date, window)
	AvailabilitySnapshotPrefix = CachePrefix + ":availability"

	// Per-venue seat-set locks taken during hold admission
	SeatLockKeyPrefix = "seatlock"
)

// AvailabilitySnapshotKey builds the cache key for a window query result.
// Start and end are minutes from midnight on the given date.
func AvailabilitySnapshotKey(venueID uuid.UUID, date string, start, end int) string {
	return fmt.Sprintf("%s:%s:%s:%d-%d", AvailabilitySnapshotPrefix, venueID, date, start, end)
}

// AvailabilityDayPattern matches every cached snapshot for one venue and
// date. Deltas invalidate at this granularity.
func AvailabilityDayPattern(venueID uuid.UUID, date string) string {
	return fmt.Sprintf("%s:%s:%s:*", AvailabilitySnapshotPrefix, venueID, date)
}

// AvailabilityInvalidatePattern matches every cached snapshot for a venue.
// Used when the catalog changes a seat's base status, since base-status
// edits bypass the delta stream.
func AvailabilityInvalidatePattern(venueID uuid.UUID) string {
	return AvailabilitySnapshotPrefix + ":" + venueID.String() + ":*"
}

// SeatLockKey builds the short-lived lock key for one seat at one venue.
func SeatLockKey(venueID, seatID uuid.UUID) string {
	return SeatLockKeyPrefix + ":" + venueID.String() + ":" + seatID.String()
}
