package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository interface reads the authoritative occupancy out of the ledger
// and hold tables. Used only to (re)build index days.
type Repository interface {
	LoadOccupancy(ctx context.Context, venueID uuid.UUID, date string, now time.Time) ([]Occupancy, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) LoadOccupancy(ctx context.Context, venueID uuid.UUID, date string, now time.Time) ([]Occupancy, error) {
	var out []Occupancy

	// Active, unexpired holds
	err := r.db.WithContext(ctx).
		Table("hold_seats").
		Select(`hold_seats.seat_id, hold_seats.start_minute AS "start", hold_seats.end_minute AS "end"`).
		Joins("JOIN holds ON holds.id = hold_seats.hold_id").
		Where("hold_seats.venue_id = ? AND hold_seats.date = ?", venueID, date).
		Where("holds.status = ? AND holds.expires_at > ?", "ACTIVE", now).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load held seats: %w", err)
	}

	// Confirmed bookings
	var booked []Occupancy
	err = r.db.WithContext(ctx).
		Table("booking_seats").
		Select(`seat_id, start_minute AS "start", end_minute AS "end"`).
		Where("venue_id = ? AND date = ? AND active", venueID, date).
		Scan(&booked).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load booked seats: %w", err)
	}

	return append(out, booked...), nil
}
