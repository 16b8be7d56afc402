package holds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seatly/internal/shared/timeslot"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository interface defines hold persistence. Holds are ledger state and
// survive restarts; Redis only guards the admission critical section.
type Repository interface {
	// AcquireAtomic runs the whole admission decision in one transaction:
	// inline-expire stale holds on the requested seats, check the seat set
	// against active holds and confirmed bookings, and insert the hold only
	// if every seat is clear. Returns the conflicting seat ids (no write
	// happened) and any holds expired along the way (their seats freed).
	AcquireAtomic(ctx context.Context, hold *Hold, seatIDs []uuid.UUID, window timeslot.Window, now time.Time) (conflicts []uuid.UUID, expired []Hold, err error)

	GetByToken(ctx context.Context, token uuid.UUID) (*Hold, error)
	UpdateExpiry(ctx context.Context, token uuid.UUID, newExpiry time.Time, now time.Time) (int64, error)
	UpdateStatus(ctx context.Context, token uuid.UUID, from, to string) (int64, error)
	ConsumeInTx(tx *gorm.DB, token uuid.UUID, now time.Time) error

	// ListLapsed returns ACTIVE holds whose expiry has passed, seats loaded.
	ListLapsed(ctx context.Context, now time.Time) ([]Hold, error)
	// ExpireHold flips one lapsed ACTIVE hold to EXPIRED. The time guard in
	// the predicate keeps a renewal that landed after the listing alive.
	ExpireHold(ctx context.Context, token uuid.UUID, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) AcquireAtomic(ctx context.Context, hold *Hold, seatIDs []uuid.UUID, window timeslot.Window, now time.Time) ([]uuid.UUID, []Hold, error) {
	var conflicts []uuid.UUID
	var expired []Hold

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Inline expiry first: a lapsed hold must free its seats before this
		// request's conflict check runs, regardless of sweeper timing.
		freshlyExpired, err := expireStaleForSeats(tx, seatIDs, window.Date, now)
		if err != nil {
			return fmt.Errorf("failed to expire stale holds: %w", err)
		}
		expired = freshlyExpired

		conflictSet := make(map[uuid.UUID]struct{})

		// Active holds overlapping the window on any requested seat
		var heldSeatIDs []uuid.UUID
		err = tx.Table("hold_seats").
			Select("DISTINCT hold_seats.seat_id").
			Joins("JOIN holds ON holds.id = hold_seats.hold_id").
			Where("hold_seats.seat_id IN ?", seatIDs).
			Where("hold_seats.date = ?", window.Date).
			Where("holds.status = ? AND holds.expires_at > ?", StatusActive, now).
			Where("hold_seats.start_minute < ? AND ? < hold_seats.end_minute", window.End, window.Start).
			Pluck("hold_seats.seat_id", &heldSeatIDs).Error
		if err != nil {
			return fmt.Errorf("failed to check active holds: %w", err)
		}
		for _, id := range heldSeatIDs {
			conflictSet[id] = struct{}{}
		}

		// Confirmed bookings overlapping the window on any requested seat
		var bookedSeatIDs []uuid.UUID
		err = tx.Table("booking_seats").
			Select("DISTINCT seat_id").
			Where("seat_id IN ?", seatIDs).
			Where("date = ?", window.Date).
			Where("active").
			Where("start_minute < ? AND ? < end_minute", window.End, window.Start).
			Pluck("seat_id", &bookedSeatIDs).Error
		if err != nil {
			return fmt.Errorf("failed to check confirmed bookings: %w", err)
		}
		for _, id := range bookedSeatIDs {
			conflictSet[id] = struct{}{}
		}

		if len(conflictSet) > 0 {
			// All-or-nothing: preserve request order in the reported seats
			for _, id := range seatIDs {
				if _, clash := conflictSet[id]; clash {
					conflicts = append(conflicts, id)
				}
			}
			return nil // commit the expiry updates, write no hold
		}

		if err := tx.Create(hold).Error; err != nil {
			return fmt.Errorf("failed to create hold: %w", err)
		}

		seats := make([]HoldSeat, 0, len(seatIDs))
		for _, seatID := range seatIDs {
			seats = append(seats, HoldSeat{
				HoldID:      hold.ID,
				SeatID:      seatID,
				VenueID:     hold.VenueID,
				Date:        window.Date,
				StartMinute: window.Start,
				EndMinute:   window.End,
			})
		}
		if err := tx.Create(&seats).Error; err != nil {
			return fmt.Errorf("failed to create hold seats: %w", err)
		}
		hold.Seats = seats

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return conflicts, expired, nil
}

func (r *repository) GetByToken(ctx context.Context, token uuid.UUID) (*Hold, error) {
	var hold Hold
	err := r.db.WithContext(ctx).
		Preload("Seats").
		First(&hold, "id = ?", token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHoldNotFound
		}
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}
	return &hold, nil
}

// UpdateExpiry extends an active, unexpired hold; the guard keeps a renewal
// from resurrecting a hold that lapsed between read and write.
func (r *repository) UpdateExpiry(ctx context.Context, token uuid.UUID, newExpiry time.Time, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&Hold{}).
		Where("id = ? AND status = ? AND expires_at > ?", token, StatusActive, now).
		Updates(map[string]interface{}{
			"expires_at":  newExpiry,
			"renew_count": gorm.Expr("renew_count + 1"),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) UpdateStatus(ctx context.Context, token uuid.UUID, from, to string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&Hold{}).
		Where("id = ? AND status = ?", token, from).
		Update("status", to)
	return result.RowsAffected, result.Error
}

// ConsumeInTx flips ACTIVE -> CONSUMED inside the caller's transaction so the
// booking confirmation and the hold consumption commit or fail together.
func (r *repository) ConsumeInTx(tx *gorm.DB, token uuid.UUID, now time.Time) error {
	result := tx.Model(&Hold{}).
		Where("id = ? AND status = ? AND expires_at > ?", token, StatusActive, now).
		Update("status", StatusConsumed)
	if result.Error != nil {
		return fmt.Errorf("failed to consume hold: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrHoldNotActive
	}
	return nil
}

func (r *repository) ListLapsed(ctx context.Context, now time.Time) ([]Hold, error) {
	var lapsed []Hold
	err := r.db.WithContext(ctx).
		Preload("Seats").
		Where("status = ? AND expires_at <= ?", StatusActive, now).
		Find(&lapsed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list lapsed holds: %w", err)
	}
	return lapsed, nil
}

func (r *repository) ExpireHold(ctx context.Context, token uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&Hold{}).
		Where("id = ? AND status = ? AND expires_at <= ?", token, StatusActive, now).
		Update("status", StatusExpired)
	return result.RowsAffected, result.Error
}

// expireStaleForSeats expires lapsed holds touching the given seats on a date
func expireStaleForSeats(tx *gorm.DB, seatIDs []uuid.UUID, date string, now time.Time) ([]Hold, error) {
	return expireStaleHolds(tx, now, seatIDs, date)
}

// expireStaleHolds flips lapsed ACTIVE holds to EXPIRED, optionally scoped to
// holds touching a seat set on one date, and returns them with seats loaded.
func expireStaleHolds(tx *gorm.DB, now time.Time, seatIDs []uuid.UUID, date string) ([]Hold, error) {
	query := tx.
		Preload("Seats").
		Where("status = ? AND expires_at <= ?", StatusActive, now)

	if len(seatIDs) > 0 {
		query = query.Where(
			"id IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).
				Table("hold_seats").
				Select("hold_id").
				Where("seat_id IN ? AND date = ?", seatIDs, date),
		)
	}

	var stale []Hold
	if err := query.Find(&stale).Error; err != nil {
		return nil, fmt.Errorf("failed to find stale holds: %w", err)
	}
	if len(stale) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(stale))
	for i := range stale {
		ids = append(ids, stale[i].ID)
	}

	err := tx.Model(&Hold{}).
		Where("id IN ? AND status = ?", ids, StatusActive).
		Update("status", StatusExpired).Error
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale holds: %w", err)
	}

	for i := range stale {
		stale[i].Status = StatusExpired
	}
	return stale, nil
}
