package bookings

import (
	"context"
	"sync"
	"testing"
	"time"

	"seatly/internal/holds"
	"seatly/internal/notifier"
	"seatly/internal/shared/clock"
	"seatly/internal/shared/timeslot"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm.io/gorm"
)

// fakeHoldRepo implements holds.Repository over a map. Recovery only reads
// holds and flips their status, so the admission methods are inert.
type fakeHoldRepo struct {
	mu    sync.Mutex
	holds map[uuid.UUID]*holds.Hold
}

func newFakeHoldRepo() *fakeHoldRepo {
	return &fakeHoldRepo{holds: make(map[uuid.UUID]*holds.Hold)}
}

func (r *fakeHoldRepo) add(hold *holds.Hold) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holds[hold.ID] = hold
}

func (r *fakeHoldRepo) status(token uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holds[token].Status
}

func (r *fakeHoldRepo) AcquireAtomic(ctx context.Context, hold *holds.Hold, seatIDs []uuid.UUID, window timeslot.Window, now time.Time) ([]uuid.UUID, []holds.Hold, error) {
	return nil, nil, nil
}

func (r *fakeHoldRepo) GetByToken(ctx context.Context, token uuid.UUID) (*holds.Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hold, ok := r.holds[token]
	if !ok {
		return nil, holds.ErrHoldNotFound
	}
	copied := *hold
	return &copied, nil
}

func (r *fakeHoldRepo) UpdateExpiry(ctx context.Context, token uuid.UUID, newExpiry time.Time, now time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeHoldRepo) UpdateStatus(ctx context.Context, token uuid.UUID, from, to string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hold, ok := r.holds[token]
	if !ok || hold.Status != from {
		return 0, nil
	}
	hold.Status = to
	return 1, nil
}

func (r *fakeHoldRepo) ConsumeInTx(tx *gorm.DB, token uuid.UUID, now time.Time) error {
	return nil
}

func (r *fakeHoldRepo) ListLapsed(ctx context.Context, now time.Time) ([]holds.Hold, error) {
	return nil, nil
}

func (r *fakeHoldRepo) ExpireHold(ctx context.Context, token uuid.UUID, now time.Time) (int64, error) {
	return 0, nil
}

// divergedLedger injects the result of the diverged-pair scan, which the
// in-memory ledger cannot compute on its own.
type divergedLedger struct {
	*memoryLedger
	diverged []Booking
}

func (l *divergedLedger) FindConfirmedWithUnconsumedHolds(ctx context.Context) ([]Booking, error) {
	return l.diverged, nil
}

func recoveryHold(clk clock.Clock, status string, seats int) *holds.Hold {
	venueID := uuid.New()
	hold := &holds.Hold{
		ID:          uuid.New(),
		VenueID:     venueID,
		Date:        "2026-05-01",
		StartMinute: 18 * 60,
		EndMinute:   20 * 60,
		SessionID:   "sess-1",
		Status:      status,
		ExpiresAt:   clk.Now().Add(5 * time.Minute),
		CreatedAt:   clk.Now(),
	}
	for i := 0; i < seats; i++ {
		hold.Seats = append(hold.Seats, holds.HoldSeat{
			HoldID:      hold.ID,
			SeatID:      uuid.New(),
			VenueID:     venueID,
			Date:        hold.Date,
			StartMinute: hold.StartMinute,
			EndMinute:   hold.EndMinute,
		})
	}
	return hold
}

func draftFor(hold *holds.Hold, status string, createdAt time.Time) *Booking {
	booking := &Booking{
		ID:          uuid.New(),
		BookingRef:  GenerateBookingRef(),
		VenueID:     hold.VenueID,
		CustomerID:  "cust-1",
		HoldID:      hold.ID,
		Date:        hold.Date,
		StartMinute: hold.StartMinute,
		EndMinute:   hold.EndMinute,
		Status:      status,
		CreatedAt:   createdAt,
	}
	for i := range hold.Seats {
		booking.Seats = append(booking.Seats, BookingSeat{
			BookingID:   booking.ID,
			SeatID:      hold.Seats[i].SeatID,
			VenueID:     hold.VenueID,
			Date:        hold.Date,
			StartMinute: hold.StartMinute,
			EndMinute:   hold.EndMinute,
			Active:      status == StatusConfirmed,
		})
	}
	return booking
}

func TestRecoverySettlesStaleDraftWithActiveHold(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	ledger := newMemoryLedger()
	holdRepo := newFakeHoldRepo()
	pub := &capturePublisher{}

	hold := recoveryHold(clk, holds.StatusActive, 2)
	holdRepo.add(hold)
	draft := draftFor(hold, StatusPending, clk.Now().Add(-time.Hour))
	require.NoError(t, ledger.Create(context.Background(), draft, draft.Seats))

	recovery := NewRecovery(ledger, holdRepo, pub, clk, 35*time.Minute)
	require.NoError(t, recovery.Run(context.Background()))

	settled, err := ledger.GetByID(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, settled.Status)
	assert.Equal(t, holds.StatusReleased, holdRepo.status(hold.ID))
	assert.Len(t, pub.byStatus(notifier.SeatStatusReleased), 2)
}

func TestRecoveryLeavesFreshDraftAlone(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	ledger := newMemoryLedger()
	holdRepo := newFakeHoldRepo()

	hold := recoveryHold(clk, holds.StatusActive, 1)
	holdRepo.add(hold)
	draft := draftFor(hold, StatusPending, clk.Now().Add(-time.Minute))
	require.NoError(t, ledger.Create(context.Background(), draft, draft.Seats))

	recovery := NewRecovery(ledger, holdRepo, nil, clk, 35*time.Minute)
	require.NoError(t, recovery.Run(context.Background()))

	fresh, err := ledger.GetByID(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, fresh.Status)
	assert.Equal(t, holds.StatusActive, holdRepo.status(hold.ID))
}

func TestRecoveryNeverConfirmsDraftWithConsumedHold(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	ledger := newMemoryLedger()
	holdRepo := newFakeHoldRepo()
	pub := &capturePublisher{}

	// Crash landed between the charge and the confirmation write. The draft
	// is cancelled for operator review, never silently confirmed.
	hold := recoveryHold(clk, holds.StatusConsumed, 2)
	holdRepo.add(hold)
	draft := draftFor(hold, StatusPending, clk.Now().Add(-time.Hour))
	require.NoError(t, ledger.Create(context.Background(), draft, draft.Seats))

	recovery := NewRecovery(ledger, holdRepo, pub, clk, 35*time.Minute)
	require.NoError(t, recovery.Run(context.Background()))

	settled, err := ledger.GetByID(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, settled.Status)
	assert.Equal(t, holds.StatusConsumed, holdRepo.status(hold.ID))
	assert.Empty(t, pub.byStatus(notifier.SeatStatusReleased))
}

func TestRecoveryReconcilesConfirmedBookingWithoutConsumedHold(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	base := newMemoryLedger()
	holdRepo := newFakeHoldRepo()
	pub := &capturePublisher{}

	hold := recoveryHold(clk, holds.StatusActive, 2)
	holdRepo.add(hold)
	booking := draftFor(hold, StatusConfirmed, clk.Now().Add(-time.Hour))
	require.NoError(t, base.Create(context.Background(), booking, booking.Seats))

	ledger := &divergedLedger{memoryLedger: base, diverged: []Booking{*booking}}
	recovery := NewRecovery(ledger, holdRepo, pub, clk, 35*time.Minute)
	require.NoError(t, recovery.Run(context.Background()))

	reconciled, err := ledger.GetByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, reconciled.Status)
	for _, seat := range reconciled.Seats {
		assert.False(t, seat.Active)
	}
	assert.Equal(t, holds.StatusReleased, holdRepo.status(hold.ID))
	assert.Len(t, pub.byStatus(notifier.SeatStatusFreed), 2)
}
