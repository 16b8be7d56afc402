package holds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seatly/internal/notifier"
	"seatly/internal/shared/clock"
	"seatly/internal/shared/timeslot"
	"seatly/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeatVerifier is the slice of the catalog the hold manager needs.
type SeatVerifier interface {
	VerifySeatsBookable(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID) error
}

// Config carries the hold lifecycle knobs.
type Config struct {
	TTL         time.Duration // per-acquire and per-renew extension
	MaxLifetime time.Duration // hard cap from acquisition, renewals included
	SeatLockTTL time.Duration // Redis admission lock, covers one transaction
}

// Service interface defines hold manager operations
type Service interface {
	Acquire(ctx context.Context, sessionID string, venueID uuid.UUID, seatIDs []uuid.UUID, window timeslot.Window) (*Hold, error)
	Renew(ctx context.Context, sessionID string, token uuid.UUID) (*Hold, error)
	Release(ctx context.Context, sessionID string, token uuid.UUID) error
	Get(ctx context.Context, sessionID string, token uuid.UUID) (*Hold, error)
	// ValidateOwned loads a hold and checks session ownership and liveness,
	// for the checkout path which consumes it in its own transaction.
	ValidateOwned(ctx context.Context, sessionID string, token uuid.UUID) (*Hold, error)
	// ConsumeInTx marks the hold CONSUMED inside the caller's transaction.
	// Only the booking orchestrator calls this, once, after payment success.
	ConsumeInTx(tx *gorm.DB, token uuid.UUID, now time.Time) error
	// ExpireStale flips lapsed holds and publishes released deltas. Sweeper entry point.
	ExpireStale(ctx context.Context) (int, error)
}

type service struct {
	repo      Repository
	seatLock  SeatLocker
	catalog   SeatVerifier
	publisher notifier.Publisher
	clock     clock.Clock
	cfg       Config
	logger    *logger.Logger
}

func NewService(repo Repository, seatLock SeatLocker, catalog SeatVerifier, publisher notifier.Publisher, clk clock.Clock, cfg Config) Service {
	return &service{
		repo:      repo,
		seatLock:  seatLock,
		catalog:   catalog,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
		logger:    logger.GetDefault(),
	}
}

// Acquire grants an exclusive short-lived hold on the whole seat set or fails
// with the conflicting seats. Admission runs under a Redis seat-set lock so
// two requests over intersecting seats cannot both pass the conflict check.
func (s *service) Acquire(ctx context.Context, sessionID string, venueID uuid.UUID, seatIDs []uuid.UUID, window timeslot.Window) (*Hold, error) {
	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("seat set must not be empty")
	}
	if len(seatIDs) > MaxSeatsPerHold {
		return nil, fmt.Errorf("seat set exceeds limit of %d seats", MaxSeatsPerHold)
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if err := s.catalog.VerifySeatsBookable(ctx, venueID, seatIDs); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	hold := &Hold{
		ID:          uuid.New(),
		VenueID:     venueID,
		Date:        window.Date,
		StartMinute: window.Start,
		EndMinute:   window.End,
		SessionID:   sessionID,
		Status:      StatusActive,
		ExpiresAt:   now.Add(s.cfg.TTL),
		CreatedAt:   now,
	}

	var conflicts []uuid.UUID
	err := s.withSeatLock(ctx, venueID, seatIDs, func() error {
		clashes, expired, err := s.repo.AcquireAtomic(ctx, hold, seatIDs, window, now)
		if err != nil {
			return fmt.Errorf("failed to acquire hold: %w", err)
		}
		conflicts = clashes

		// Seats freed by inline expiry become visible even when this acquire conflicts
		s.publishExpired(ctx, expired)

		if len(conflicts) == 0 {
			s.publishStatus(ctx, hold, notifier.SeatStatusHeld)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &ConflictError{SeatIDs: conflicts}
	}

	s.logger.LogHoldAcquired(ctx, hold.ID.String(), venueID.String(), sessionID, len(seatIDs))
	return hold, nil
}

// withSeatLock runs fn while holding the admission lock over the given seat
// set. Every status transition publishes its deltas inside this critical
// section, so per-seat delivery order always matches commit order: a
// competing acquire cannot slip its held delta in between another
// transition's commit and publish.
func (s *service) withSeatLock(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID, fn func() error) error {
	owner, err := s.seatLock.AcquireAll(ctx, venueID, seatIDs, s.cfg.SeatLockTTL)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.seatLock.ReleaseAll(releaseCtx, venueID, seatIDs, owner); err != nil {
			s.logger.WithError(err).Warn("Failed to release seat-set lock")
		}
	}()
	return fn()
}

// Renew extends an active hold by one TTL, bounded by the lifetime cap.
func (s *service) Renew(ctx context.Context, sessionID string, token uuid.UUID) (*Hold, error) {
	hold, err := s.ValidateOwned(ctx, sessionID, token)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	newExpiry := now.Add(s.cfg.TTL)
	if newExpiry.After(hold.CreatedAt.Add(s.cfg.MaxLifetime)) {
		return nil, ErrHoldLifetimeExceeded
	}

	rows, err := s.repo.UpdateExpiry(ctx, token, newExpiry, now)
	if err != nil {
		return nil, fmt.Errorf("failed to renew hold: %w", err)
	}
	if rows == 0 {
		// Lost the race with expiry between read and write
		return nil, ErrHoldExpired
	}

	hold.ExpiresAt = newExpiry
	hold.RenewCount++
	return hold, nil
}

// Release frees the hold's seats immediately. Idempotent: releasing a hold
// that already settled in any terminal state reports success. A consumed
// hold's seats belong to its booking, so there is nothing left to free.
func (s *service) Release(ctx context.Context, sessionID string, token uuid.UUID) error {
	hold, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	if hold.SessionID != sessionID {
		return ErrHoldNotOwned
	}
	if hold.IsTerminal() {
		return nil
	}

	return s.withSeatLock(ctx, hold.VenueID, hold.SeatIDs(), func() error {
		rows, err := s.repo.UpdateStatus(ctx, token, StatusActive, StatusReleased)
		if err != nil {
			return fmt.Errorf("failed to release hold: %w", err)
		}
		if rows == 0 {
			// Another path got there first; the seats are free either way
			return nil
		}

		s.publishStatus(ctx, hold, notifier.SeatStatusReleased)
		return nil
	})
}

func (s *service) Get(ctx context.Context, sessionID string, token uuid.UUID) (*Hold, error) {
	hold, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if hold.SessionID != sessionID {
		return nil, ErrHoldNotOwned
	}
	// Report lapsed holds as expired even before the sweeper catches them
	if hold.Status == StatusActive && !hold.IsActive(s.clock.Now()) {
		hold.Status = StatusExpired
	}
	return hold, nil
}

func (s *service) ValidateOwned(ctx context.Context, sessionID string, token uuid.UUID) (*Hold, error) {
	hold, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if hold.SessionID != sessionID {
		return nil, ErrHoldNotOwned
	}
	if hold.Status != StatusActive {
		return nil, ErrHoldNotActive
	}
	if !hold.IsActive(s.clock.Now()) {
		return nil, ErrHoldExpired
	}
	return hold, nil
}

func (s *service) ConsumeInTx(tx *gorm.DB, token uuid.UUID, now time.Time) error {
	return s.repo.ConsumeInTx(tx, token, now)
}

// ExpireStale flips lapsed holds one at a time, each under its seat-set
// lock. A seat set locked by an in-flight acquire is skipped; that acquire
// either expired the hold inline or the next sweep picks it up.
func (s *service) ExpireStale(ctx context.Context) (int, error) {
	lapsed, err := s.repo.ListLapsed(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list lapsed holds: %w", err)
	}

	count := 0
	for i := range lapsed {
		hold := &lapsed[i]
		err := s.withSeatLock(ctx, hold.VenueID, hold.SeatIDs(), func() error {
			rows, err := s.repo.ExpireHold(ctx, hold.ID, s.clock.Now())
			if err != nil {
				return err
			}
			if rows == 0 {
				// Renewed or settled since the listing; nothing to announce
				return nil
			}
			count++
			s.logger.LogHoldExpired(ctx, hold.ID.String())
			s.publishStatus(ctx, hold, notifier.SeatStatusReleased)
			return nil
		})
		if errors.Is(err, ErrSeatLockBusy) {
			continue
		}
		if err != nil {
			return count, fmt.Errorf("failed to expire stale holds: %w", err)
		}
	}
	return count, nil
}

func (s *service) publishExpired(ctx context.Context, expired []Hold) {
	for i := range expired {
		s.logger.LogHoldExpired(ctx, expired[i].ID.String())
		s.publishStatus(ctx, &expired[i], notifier.SeatStatusReleased)
	}
}

// publishStatus emits one delta per seat; delivery is best effort and never
// fails the operation that triggered it.
func (s *service) publishStatus(ctx context.Context, hold *Hold, status notifier.SeatStatus) {
	if s.publisher == nil {
		return
	}

	window := hold.Window()
	at := s.clock.Now()
	deltas := make([]notifier.Delta, 0, len(hold.Seats))
	for i := range hold.Seats {
		deltas = append(deltas, notifier.Delta{
			VenueID:   hold.VenueID,
			SeatID:    hold.Seats[i].SeatID,
			Window:    window,
			NewStatus: status,
			At:        at,
		})
	}

	if err := s.publisher.Publish(ctx, deltas...); err != nil {
		s.logger.WithError(err).Warn("Failed to publish seat status deltas")
	}
}
