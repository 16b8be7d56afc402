package database

import (
	"seatly/internal/bookings"
	"seatly/internal/catalog"
	"seatly/internal/holds"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&catalog.Venue{},
		&catalog.Seat{},
		&holds.Hold{},
		&holds.HoldSeat{},
		&bookings.Booking{},
		&bookings.BookingSeat{},
	)
}
