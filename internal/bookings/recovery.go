package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seatly/internal/holds"
	"seatly/internal/notifier"
	"seatly/internal/shared/clock"
	"seatly/pkg/logger"
)

// Recovery reconciles ledger and hold state after a restart. The resolution
// rule is deterministic and errs toward availability: an ambiguous pair is
// treated as a failed checkout, the hold is released and the draft cancelled.
// A charge that may have landed without a confirmed booking is logged as an
// invariant violation for operator review; it is never silently confirmed.
type Recovery struct {
	repo     Repository
	holdRepo holds.Repository
	pub      notifier.Publisher
	clock    clock.Clock
	// StaleAfter is how old a PENDING draft must be before recovery settles
	// it; in-flight checkouts younger than this are left alone.
	StaleAfter time.Duration
	logger     *logger.Logger
}

func NewRecovery(repo Repository, holdRepo holds.Repository, pub notifier.Publisher, clk clock.Clock, staleAfter time.Duration) *Recovery {
	return &Recovery{
		repo:       repo,
		holdRepo:   holdRepo,
		pub:        pub,
		clock:      clk,
		StaleAfter: staleAfter,
		logger:     logger.GetDefault(),
	}
}

// Run executes one full reconciliation pass.
func (r *Recovery) Run(ctx context.Context) error {
	if err := r.settleStaleDrafts(ctx); err != nil {
		return err
	}
	return r.reconcileDiverged(ctx)
}

// settleStaleDrafts cancels PENDING drafts older than StaleAfter and releases
// their holds. Covers a crash anywhere between checkout start and the
// confirmation transaction.
func (r *Recovery) settleStaleDrafts(ctx context.Context) error {
	now := r.clock.Now()
	stale, err := r.repo.FindStalePending(ctx, now.Add(-r.StaleAfter))
	if err != nil {
		return fmt.Errorf("recovery failed to list stale drafts: %w", err)
	}

	for i := range stale {
		booking := &stale[i]

		hold, err := r.holdRepo.GetByToken(ctx, booking.HoldID)
		if err != nil && !errors.Is(err, holds.ErrHoldNotFound) {
			return fmt.Errorf("recovery failed to load hold: %w", err)
		}

		if hold != nil && hold.Status == holds.StatusConsumed {
			// A consumed hold with a still-pending draft means the crash hit
			// after a charge may have landed. Cancel the draft anyway; the
			// charge is surfaced for manual reconciliation, never assumed.
			r.logger.LogInvariantViolation(ctx, booking.ID.String(), booking.HoldID.String(),
				"consumed hold with pending draft, draft cancelled for operator review")
		}

		if err := r.repo.MarkCancelledPending(ctx, booking.ID); err != nil {
			return fmt.Errorf("recovery failed to cancel draft: %w", err)
		}

		if hold != nil && hold.Status == holds.StatusActive {
			if _, err := r.holdRepo.UpdateStatus(ctx, hold.ID, holds.StatusActive, holds.StatusReleased); err != nil {
				return fmt.Errorf("recovery failed to release hold: %w", err)
			}
			r.publishReleased(ctx, hold)
		}

		r.logger.WithFields(map[string]interface{}{
			"booking_id": booking.ID.String(),
			"hold_token": booking.HoldID.String(),
		}).Info("Recovery settled stale checkout draft")
	}
	return nil
}

// reconcileDiverged handles CONFIRMED bookings whose hold never became
// CONSUMED. Both are written in one transaction, so a hit means externally
// corrupted state; the pair is treated as failed.
func (r *Recovery) reconcileDiverged(ctx context.Context) error {
	diverged, err := r.repo.FindConfirmedWithUnconsumedHolds(ctx)
	if err != nil {
		return fmt.Errorf("recovery failed to list diverged bookings: %w", err)
	}

	for i := range diverged {
		booking := &diverged[i]

		r.logger.LogInvariantViolation(ctx, booking.ID.String(), booking.HoldID.String(),
			"confirmed booking without consumed hold, booking cancelled and hold released")

		if err := r.repo.Cancel(ctx, booking.ID); err != nil && !errors.Is(err, ErrBookingNotConfirmed) {
			return fmt.Errorf("recovery failed to cancel diverged booking: %w", err)
		}
		if _, err := r.holdRepo.UpdateStatus(ctx, booking.HoldID, holds.StatusActive, holds.StatusReleased); err != nil {
			return fmt.Errorf("recovery failed to release diverged hold: %w", err)
		}

		r.publishFreed(ctx, booking)
	}
	return nil
}

func (r *Recovery) publishReleased(ctx context.Context, hold *holds.Hold) {
	if r.pub == nil {
		return
	}
	window := hold.Window()
	at := r.clock.Now()
	deltas := make([]notifier.Delta, 0, len(hold.Seats))
	for i := range hold.Seats {
		deltas = append(deltas, notifier.Delta{
			VenueID:   hold.VenueID,
			SeatID:    hold.Seats[i].SeatID,
			Window:    window,
			NewStatus: notifier.SeatStatusReleased,
			At:        at,
		})
	}
	if err := r.pub.Publish(ctx, deltas...); err != nil {
		r.logger.WithError(err).Warn("Recovery failed to publish released deltas")
	}
}

func (r *Recovery) publishFreed(ctx context.Context, booking *Booking) {
	if r.pub == nil {
		return
	}
	window := booking.Window()
	at := r.clock.Now()
	deltas := make([]notifier.Delta, 0, len(booking.Seats))
	for i := range booking.Seats {
		deltas = append(deltas, notifier.Delta{
			VenueID:   booking.VenueID,
			SeatID:    booking.Seats[i].SeatID,
			Window:    window,
			NewStatus: notifier.SeatStatusFreed,
			At:        at,
		})
	}
	if err := r.pub.Publish(ctx, deltas...); err != nil {
		r.logger.WithError(err).Warn("Recovery failed to publish freed deltas")
	}
}
