package bookings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"seatly/internal/holds"
	"seatly/internal/notifier"
	"seatly/internal/payments"
	"seatly/internal/shared/clock"
	"seatly/internal/shared/timeslot"
	"seatly/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HoldManager is the slice of the hold manager the orchestrator drives.
type HoldManager interface {
	Acquire(ctx context.Context, sessionID string, venueID uuid.UUID, seatIDs []uuid.UUID, window timeslot.Window) (*holds.Hold, error)
	ValidateOwned(ctx context.Context, sessionID string, token uuid.UUID) (*holds.Hold, error)
	ConsumeInTx(tx *gorm.DB, token uuid.UUID, now time.Time) error
	Release(ctx context.Context, sessionID string, token uuid.UUID) error
}

// SeatPricer totals seat prices for a checkout.
type SeatPricer interface {
	PriceSeats(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID) (float64, error)
}

// Config carries the orchestrator knobs.
type Config struct {
	// ChargeTimeout bounds one gateway call; on expiry the outcome is failure
	ChargeTimeout time.Duration
}

// Service is the booking orchestrator: the checkout state machine and the
// only component allowed to mutate the ledger.
type Service interface {
	StartCheckout(ctx context.Context, sessionID, customerID string, holdToken uuid.UUID) (*Booking, error)
	// StartCheckoutWithSeats acquires the hold and opens the draft in one
	// call; the returned hold carries the token and expiry for the client.
	StartCheckoutWithSeats(ctx context.Context, sessionID, customerID string, venueID uuid.UUID, seatIDs []uuid.UUID, window timeslot.Window) (*Booking, *holds.Hold, error)
	ConfirmPayment(ctx context.Context, sessionID, customerID string, bookingID uuid.UUID, paymentMethod string) (*Booking, error)
	CancelBooking(ctx context.Context, customerID, bookingRef string) error
	GetBooking(ctx context.Context, customerID, bookingRef string) (*Booking, error)
	ListBookings(ctx context.Context, customerID string) ([]Booking, error)
}

type service struct {
	repo      Repository
	holdMgr   HoldManager
	pricer    SeatPricer
	gateway   payments.Gateway
	publisher notifier.Publisher
	clock     clock.Clock
	cfg       Config
	logger    *logger.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]*confirmGate
}

// confirmGate serializes confirmation attempts on one booking.
type confirmGate struct {
	mu   sync.Mutex
	refs int
}

func NewService(repo Repository, holdMgr HoldManager, pricer SeatPricer, gateway payments.Gateway, publisher notifier.Publisher, clk clock.Clock, cfg Config) Service {
	return &service{
		repo:      repo,
		holdMgr:   holdMgr,
		pricer:    pricer,
		gateway:   gateway,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
		logger:    logger.GetDefault(),
		inflight:  make(map[uuid.UUID]*confirmGate),
	}
}

// lockBooking takes the per-booking gate. A redelivered confirmation queues
// here instead of racing the first one to the gateway; the loser then sees
// the settled status and returns without a second charge.
func (s *service) lockBooking(id uuid.UUID) func() {
	s.mu.Lock()
	gate := s.inflight[id]
	if gate == nil {
		gate = &confirmGate{}
		s.inflight[id] = gate
	}
	gate.refs++
	s.mu.Unlock()

	gate.mu.Lock()
	return func() {
		gate.mu.Unlock()
		s.mu.Lock()
		gate.refs--
		if gate.refs == 0 {
			delete(s.inflight, id)
		}
		s.mu.Unlock()
	}
}

// StartCheckout opens a PENDING draft for a held seat set. One draft per
// hold; calling again with the same token returns the existing draft.
func (s *service) StartCheckout(ctx context.Context, sessionID, customerID string, holdToken uuid.UUID) (*Booking, error) {
	hold, err := s.holdMgr.ValidateOwned(ctx, sessionID, holdToken)
	if err != nil {
		if errors.Is(err, holds.ErrHoldExpired) || errors.Is(err, holds.ErrHoldNotActive) {
			return nil, ErrCheckoutExpired
		}
		return nil, err
	}

	if existing, err := s.repo.GetByHoldID(ctx, holdToken); err == nil {
		if existing.CustomerID != customerID {
			return nil, ErrBookingNotOwned
		}
		return existing, nil
	} else if !errors.Is(err, ErrBookingNotFound) {
		return nil, err
	}

	return s.draftForHold(ctx, customerID, hold)
}

// StartCheckoutWithSeats is the one-call checkout entry: admission and draft
// creation in a single request. Conflicts surface the contended seat ids the
// same way a direct hold request does.
func (s *service) StartCheckoutWithSeats(ctx context.Context, sessionID, customerID string, venueID uuid.UUID, seatIDs []uuid.UUID, window timeslot.Window) (*Booking, *holds.Hold, error) {
	hold, err := s.holdMgr.Acquire(ctx, sessionID, venueID, seatIDs, window)
	if err != nil {
		return nil, nil, err
	}

	booking, err := s.draftForHold(ctx, customerID, hold)
	if err != nil {
		// The hold survives; the client can retry checkout with its token
		return nil, nil, err
	}
	return booking, hold, nil
}

func (s *service) draftForHold(ctx context.Context, customerID string, hold *holds.Hold) (*Booking, error) {
	seatIDs := hold.SeatIDs()
	amount, err := s.pricer.PriceSeats(ctx, hold.VenueID, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to price seats: %w", err)
	}

	window := hold.Window()
	booking := &Booking{
		ID:          uuid.New(),
		BookingRef:  GenerateBookingRef(),
		VenueID:     hold.VenueID,
		CustomerID:  customerID,
		HoldID:      hold.ID,
		Date:        window.Date,
		StartMinute: window.Start,
		EndMinute:   window.End,
		Status:      StatusPending,
		Amount:      amount,
		CreatedAt:   s.clock.Now(),
	}

	seats := make([]BookingSeat, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		seats = append(seats, BookingSeat{
			SeatID:      seatID,
			VenueID:     hold.VenueID,
			Date:        window.Date,
			StartMinute: window.Start,
			EndMinute:   window.End,
			Active:      false,
		})
	}

	if err := s.repo.Create(ctx, booking, seats); err != nil {
		return nil, err
	}
	return booking, nil
}

// ConfirmPayment charges the gateway and settles the draft. Idempotent: a
// second call on an already confirmed booking returns it without a second
// charge or a second ledger write. Concurrent calls for the same booking are
// serialized on a per-booking gate, so a redelivered webhook waits for the
// in-flight attempt instead of racing it to the gateway. Failure and timeout
// both release the hold so the seats free immediately.
func (s *service) ConfirmPayment(ctx context.Context, sessionID, customerID string, bookingID uuid.UUID, paymentMethod string) (*Booking, error) {
	unlock := s.lockBooking(bookingID)
	defer unlock()

	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.CustomerID != customerID {
		return nil, ErrBookingNotOwned
	}
	if booking.Status == StatusConfirmed {
		return booking, nil
	}
	if booking.Status != StatusPending {
		return nil, ErrBookingNotPending
	}

	// The hold must still be live; payment on a lapsed hold cannot settle
	if _, err := s.holdMgr.ValidateOwned(ctx, sessionID, booking.HoldID); err != nil {
		_ = s.repo.MarkCancelledPending(ctx, bookingID)
		return nil, ErrCheckoutExpired
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.cfg.ChargeTimeout)
	defer cancel()
	receipt, err := s.gateway.Charge(chargeCtx, booking.Amount, paymentMethod)
	if err != nil {
		s.settleFailedPayment(ctx, sessionID, booking)
		if errors.Is(err, payments.ErrPaymentTimeout) || errors.Is(chargeCtx.Err(), context.DeadlineExceeded) {
			return nil, payments.ErrPaymentTimeout
		}
		return nil, err
	}

	confirmed, err := s.repo.Confirm(ctx, bookingID, receipt.PaymentRef, s.clock.Now(), s.holdMgr.ConsumeInTx)
	if err != nil {
		if errors.Is(err, ErrBookingNotPending) {
			// A confirmation on another instance won the ledger write
			if settled, getErr := s.repo.GetByID(ctx, bookingID); getErr == nil && settled.Status == StatusConfirmed {
				if settled.PaymentRef != receipt.PaymentRef {
					// Both callers charged; the extra receipt needs a refund
					s.logger.LogInvariantViolation(ctx, bookingID.String(), booking.HoldID.String(),
						"duplicate charge on confirmed booking, orphaned payment ref "+receipt.PaymentRef)
				}
				return settled, nil
			}
		}
		// The customer was charged but the ledger write failed. Resolve
		// toward availability: release everything, flag for operator review.
		s.logger.LogInvariantViolation(ctx, bookingID.String(), booking.HoldID.String(),
			"charge succeeded but confirmation failed, releasing hold, payment ref "+receipt.PaymentRef)
		s.settleFailedPayment(ctx, sessionID, booking)
		return nil, fmt.Errorf("failed to confirm booking: %w", err)
	}

	s.logger.LogBookingConfirmed(ctx, confirmed.BookingRef, confirmed.VenueID.String(), customerID)
	s.publishStatus(ctx, confirmed, notifier.SeatStatusBooked)
	return confirmed, nil
}

// CancelBooking frees a confirmed booking's seats for the whole window.
func (s *service) CancelBooking(ctx context.Context, customerID, bookingRef string) error {
	booking, err := s.repo.GetByRef(ctx, bookingRef)
	if err != nil {
		return err
	}
	if booking.CustomerID != customerID {
		return ErrBookingNotOwned
	}
	if booking.Status == StatusCancelled {
		return nil
	}

	if err := s.repo.Cancel(ctx, booking.ID); err != nil {
		return err
	}

	s.logger.LogBookingCancelled(ctx, booking.BookingRef, booking.VenueID.String())
	s.publishStatus(ctx, booking, notifier.SeatStatusFreed)
	return nil
}

func (s *service) GetBooking(ctx context.Context, customerID, bookingRef string) (*Booking, error) {
	booking, err := s.repo.GetByRef(ctx, bookingRef)
	if err != nil {
		return nil, err
	}
	if booking.CustomerID != customerID {
		return nil, ErrBookingNotOwned
	}
	return booking, nil
}

func (s *service) ListBookings(ctx context.Context, customerID string) ([]Booking, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

// settleFailedPayment tears down a failed checkout: hold released, draft
// cancelled. Hold release publishes the released deltas itself.
func (s *service) settleFailedPayment(ctx context.Context, sessionID string, booking *Booking) {
	if err := s.holdMgr.Release(ctx, sessionID, booking.HoldID); err != nil &&
		!errors.Is(err, holds.ErrHoldNotFound) && !errors.Is(err, holds.ErrHoldNotActive) {
		s.logger.WithError(err).Warn("Failed to release hold after payment failure")
	}
	if err := s.repo.MarkCancelledPending(ctx, booking.ID); err != nil {
		s.logger.WithError(err).Warn("Failed to cancel pending booking after payment failure")
	}
}

func (s *service) publishStatus(ctx context.Context, booking *Booking, status notifier.SeatStatus) {
	if s.publisher == nil {
		return
	}

	window := booking.Window()
	at := s.clock.Now()
	deltas := make([]notifier.Delta, 0, len(booking.Seats))
	for i := range booking.Seats {
		deltas = append(deltas, notifier.Delta{
			VenueID:   booking.VenueID,
			SeatID:    booking.Seats[i].SeatID,
			Window:    window,
			NewStatus: status,
			At:        at,
		})
	}

	if err := s.publisher.Publish(ctx, deltas...); err != nil {
		s.logger.WithError(err).Warn("Failed to publish seat status deltas")
	}
}
