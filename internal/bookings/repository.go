package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConsumeHoldFunc flips the backing hold to CONSUMED inside the confirmation
// transaction so booking and hold settle together or not at all.
type ConsumeHoldFunc func(tx *gorm.DB, holdToken uuid.UUID, now time.Time) error

// Repository interface defines ledger persistence. Only the orchestrator
// calls the mutating methods.
type Repository interface {
	Create(ctx context.Context, booking *Booking, seats []BookingSeat) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetByRef(ctx context.Context, ref string) (*Booking, error)
	GetByHoldID(ctx context.Context, holdID uuid.UUID) (*Booking, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Booking, error)

	// Confirm settles a pending booking in one transaction: status CONFIRMED,
	// payment ref recorded, seats activated, hold consumed. The activated
	// seats hit the database exclusion constraint, the last line of defense
	// against overlapping confirmed bookings.
	Confirm(ctx context.Context, id uuid.UUID, paymentRef string, now time.Time, consumeHold ConsumeHoldFunc) (*Booking, error)

	// Cancel transitions a booking to CANCELLED and deactivates its seats
	Cancel(ctx context.Context, id uuid.UUID) error

	// MarkCancelledPending cancels a pending draft whose payment never landed
	MarkCancelledPending(ctx context.Context, id uuid.UUID) error

	// FindStalePending lists PENDING bookings created before the cutoff, used
	// by startup recovery to settle checkouts interrupted by a crash.
	FindStalePending(ctx context.Context, cutoff time.Time) ([]Booking, error)

	// FindConfirmedWithUnconsumedHolds lists CONFIRMED bookings whose backing
	// hold is not CONSUMED. Confirmation writes both in one transaction, so a
	// hit means the ledger and hold state diverged and must be reconciled.
	FindConfirmedWithUnconsumedHolds(ctx context.Context) ([]Booking, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, booking *Booking, seats []BookingSeat) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(booking).Error; err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}
		for i := range seats {
			seats[i].BookingID = booking.ID
		}
		if err := tx.Create(&seats).Error; err != nil {
			return fmt.Errorf("failed to create booking seats: %w", err)
		}
		booking.Seats = seats
		return nil
	})
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).
		Preload("Seats").
		First(&booking, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

func (r *repository) GetByRef(ctx context.Context, ref string) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).
		Preload("Seats").
		First(&booking, "booking_ref = ?", ref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking by ref: %w", err)
	}
	return &booking, nil
}

func (r *repository) GetByHoldID(ctx context.Context, holdID uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).
		Preload("Seats").
		First(&booking, "hold_id = ?", holdID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking by hold: %w", err)
	}
	return &booking, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID string) ([]Booking, error) {
	var bookings []Booking
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func (r *repository) Confirm(ctx context.Context, id uuid.UUID, paymentRef string, now time.Time, consumeHold ConsumeHoldFunc) (*Booking, error) {
	var booking Booking

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Seats").First(&booking, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookingNotFound
			}
			return fmt.Errorf("failed to load booking: %w", err)
		}
		if booking.Status != StatusPending {
			return ErrBookingNotPending
		}

		result := tx.Model(&Booking{}).
			Where("id = ? AND status = ?", id, StatusPending).
			Updates(map[string]interface{}{
				"status":      StatusConfirmed,
				"payment_ref": paymentRef,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to confirm booking: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrBookingNotPending
		}

		// Activating the seats arms the exclusion constraint; an overlap with
		// another confirmed booking aborts the whole transaction here.
		err := tx.Model(&BookingSeat{}).
			Where("booking_id = ?", id).
			Update("active", true).Error
		if err != nil {
			return fmt.Errorf("failed to activate booking seats: %w", err)
		}

		if err := consumeHold(tx, booking.HoldID, now); err != nil {
			return err
		}

		booking.Status = StatusConfirmed
		booking.PaymentRef = paymentRef
		for i := range booking.Seats {
			booking.Seats[i].Active = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) Cancel(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Booking{}).
			Where("id = ? AND status = ?", id, StatusConfirmed).
			Update("status", StatusCancelled)
		if result.Error != nil {
			return fmt.Errorf("failed to cancel booking: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrBookingNotConfirmed
		}

		err := tx.Model(&BookingSeat{}).
			Where("booking_id = ?", id).
			Update("active", false).Error
		if err != nil {
			return fmt.Errorf("failed to deactivate booking seats: %w", err)
		}
		return nil
	})
}

func (r *repository) MarkCancelledPending(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&Booking{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("status", StatusCancelled)
	if result.Error != nil {
		return fmt.Errorf("failed to cancel pending booking: %w", result.Error)
	}
	return nil
}

func (r *repository) FindConfirmedWithUnconsumedHolds(ctx context.Context) ([]Booking, error) {
	var diverged []Booking
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Joins("JOIN holds ON holds.id = bookings.hold_id").
		Where("bookings.status = ? AND holds.status <> ?", StatusConfirmed, "CONSUMED").
		Find(&diverged).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find diverged bookings: %w", err)
	}
	return diverged, nil
}

func (r *repository) FindStalePending(ctx context.Context, cutoff time.Time) ([]Booking, error) {
	var stale []Booking
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Where("status = ? AND created_at < ?", StatusPending, cutoff).
		Find(&stale).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stale pending bookings: %w", err)
	}
	return stale, nil
}
