package bookings

import (
	"context"
	"sync"
	"testing"
	"time"

	"seatly/internal/holds"
	"seatly/internal/notifier"
	"seatly/internal/payments"
	"seatly/internal/shared/clock"
	"seatly/internal/shared/timeslot"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm.io/gorm"
)

// memoryLedger mirrors the Postgres ledger semantics in memory.
type memoryLedger struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*Booking
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{bookings: make(map[uuid.UUID]*Booking)}
}

func (l *memoryLedger) Create(ctx context.Context, booking *Booking, seats []BookingSeat) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range seats {
		seats[i].BookingID = booking.ID
	}
	booking.Seats = seats
	l.bookings[booking.ID] = booking
	return nil
}

func (l *memoryLedger) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	booking, ok := l.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	copied := *booking
	return &copied, nil
}

func (l *memoryLedger) GetByRef(ctx context.Context, ref string) (*Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, booking := range l.bookings {
		if booking.BookingRef == ref {
			copied := *booking
			return &copied, nil
		}
	}
	return nil, ErrBookingNotFound
}

func (l *memoryLedger) GetByHoldID(ctx context.Context, holdID uuid.UUID) (*Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, booking := range l.bookings {
		if booking.HoldID == holdID {
			copied := *booking
			return &copied, nil
		}
	}
	return nil, ErrBookingNotFound
}

func (l *memoryLedger) ListByCustomer(ctx context.Context, customerID string) ([]Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Booking
	for _, booking := range l.bookings {
		if booking.CustomerID == customerID {
			out = append(out, *booking)
		}
	}
	return out, nil
}

func (l *memoryLedger) Confirm(ctx context.Context, id uuid.UUID, paymentRef string, now time.Time, consumeHold ConsumeHoldFunc) (*Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	booking, ok := l.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	if booking.Status != StatusPending {
		return nil, ErrBookingNotPending
	}
	if err := consumeHold(nil, booking.HoldID, now); err != nil {
		return nil, err
	}
	booking.Status = StatusConfirmed
	booking.PaymentRef = paymentRef
	for i := range booking.Seats {
		booking.Seats[i].Active = true
	}
	copied := *booking
	return &copied, nil
}

func (l *memoryLedger) Cancel(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	booking, ok := l.bookings[id]
	if !ok || booking.Status != StatusConfirmed {
		return ErrBookingNotConfirmed
	}
	booking.Status = StatusCancelled
	for i := range booking.Seats {
		booking.Seats[i].Active = false
	}
	return nil
}

func (l *memoryLedger) MarkCancelledPending(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	booking, ok := l.bookings[id]
	if ok && booking.Status == StatusPending {
		booking.Status = StatusCancelled
	}
	return nil
}

func (l *memoryLedger) FindStalePending(ctx context.Context, cutoff time.Time) ([]Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var stale []Booking
	for _, booking := range l.bookings {
		if booking.Status == StatusPending && booking.CreatedAt.Before(cutoff) {
			stale = append(stale, *booking)
		}
	}
	return stale, nil
}

func (l *memoryLedger) FindConfirmedWithUnconsumedHolds(ctx context.Context) ([]Booking, error) {
	return nil, nil
}

// fakeHoldManager tracks one hold per token with plain status transitions.
// Setting conflicts makes every Acquire fail with those seat ids.
type fakeHoldManager struct {
	mu        sync.Mutex
	holds     map[uuid.UUID]*holds.Hold
	conflicts []uuid.UUID
}

func newFakeHoldManager() *fakeHoldManager {
	return &fakeHoldManager{holds: make(map[uuid.UUID]*holds.Hold)}
}

func (m *fakeHoldManager) add(hold *holds.Hold) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holds[hold.ID] = hold
}

func (m *fakeHoldManager) status(token uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holds[token].Status
}

func (m *fakeHoldManager) Acquire(ctx context.Context, sessionID string, venueID uuid.UUID, seatIDs []uuid.UUID, window timeslot.Window) (*holds.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conflicts) > 0 {
		return nil, &holds.ConflictError{SeatIDs: m.conflicts}
	}

	hold := &holds.Hold{
		ID:          uuid.New(),
		VenueID:     venueID,
		Date:        window.Date,
		StartMinute: window.Start,
		EndMinute:   window.End,
		SessionID:   sessionID,
		Status:      holds.StatusActive,
		ExpiresAt:   time.Date(2026, 5, 1, 10, 5, 0, 0, time.UTC),
	}
	for _, seatID := range seatIDs {
		hold.Seats = append(hold.Seats, holds.HoldSeat{
			HoldID:      hold.ID,
			SeatID:      seatID,
			VenueID:     venueID,
			Date:        window.Date,
			StartMinute: window.Start,
			EndMinute:   window.End,
		})
	}
	m.holds[hold.ID] = hold
	return hold, nil
}

func (m *fakeHoldManager) ValidateOwned(ctx context.Context, sessionID string, token uuid.UUID) (*holds.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.holds[token]
	if !ok {
		return nil, holds.ErrHoldNotFound
	}
	if hold.SessionID != sessionID {
		return nil, holds.ErrHoldNotOwned
	}
	if hold.Status != holds.StatusActive {
		return nil, holds.ErrHoldNotActive
	}
	copied := *hold
	return &copied, nil
}

func (m *fakeHoldManager) ConsumeInTx(tx *gorm.DB, token uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.holds[token]
	if !ok || hold.Status != holds.StatusActive {
		return holds.ErrHoldNotActive
	}
	hold.Status = holds.StatusConsumed
	return nil
}

func (m *fakeHoldManager) Release(ctx context.Context, sessionID string, token uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.holds[token]
	if !ok {
		return holds.ErrHoldNotFound
	}
	if hold.Status == holds.StatusActive {
		hold.Status = holds.StatusReleased
	}
	return nil
}

type flatPricer struct{ perSeat float64 }

func (p flatPricer) PriceSeats(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID) (float64, error) {
	return p.perSeat * float64(len(seatIDs)), nil
}

// countingGateway wraps the simulated gateway and counts charges.
type countingGateway struct {
	inner   payments.Gateway
	mu      sync.Mutex
	charges int
}

func (g *countingGateway) Charge(ctx context.Context, amount float64, method string) (*payments.Receipt, error) {
	g.mu.Lock()
	g.charges++
	g.mu.Unlock()
	return g.inner.Charge(ctx, amount, method)
}

func (g *countingGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges
}

type capturePublisher struct {
	mu     sync.Mutex
	deltas []notifier.Delta
}

func (p *capturePublisher) Publish(ctx context.Context, deltas ...notifier.Delta) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deltas = append(p.deltas, deltas...)
	return nil
}

func (p *capturePublisher) byStatus(status notifier.SeatStatus) []notifier.Delta {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notifier.Delta
	for _, d := range p.deltas {
		if d.NewStatus == status {
			out = append(out, d)
		}
	}
	return out
}

type fixture struct {
	svc      Service
	ledger   *memoryLedger
	holdMgr  *fakeHoldManager
	gateway  *countingGateway
	pub      *capturePublisher
	clock    *clock.Fake
	hold     *holds.Hold
	session  string
	customer string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	ledger := newMemoryLedger()
	holdMgr := newFakeHoldManager()
	gateway := &countingGateway{inner: payments.NewSimulatedGateway()}
	pub := &capturePublisher{}

	svc := NewService(ledger, holdMgr, flatPricer{perSeat: 40}, gateway, pub, clk, Config{
		ChargeTimeout: 50 * time.Millisecond,
	})

	venueID := uuid.New()
	hold := &holds.Hold{
		ID:          uuid.New(),
		VenueID:     venueID,
		Date:        "2026-05-01",
		StartMinute: 18 * 60,
		EndMinute:   20 * 60,
		SessionID:   "sess-1",
		Status:      holds.StatusActive,
		ExpiresAt:   clk.Now().Add(5 * time.Minute),
		CreatedAt:   clk.Now(),
	}
	for i := 0; i < 2; i++ {
		hold.Seats = append(hold.Seats, holds.HoldSeat{
			HoldID:      hold.ID,
			SeatID:      uuid.New(),
			VenueID:     venueID,
			Date:        hold.Date,
			StartMinute: hold.StartMinute,
			EndMinute:   hold.EndMinute,
		})
	}
	holdMgr.add(hold)

	return &fixture{
		svc:      svc,
		ledger:   ledger,
		holdMgr:  holdMgr,
		gateway:  gateway,
		pub:      pub,
		clock:    clk,
		hold:     hold,
		session:  "sess-1",
		customer: "cust-1",
	}
}

func TestStartCheckoutCreatesPendingDraft(t *testing.T) {
	f := newFixture(t)

	draft, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, draft.Status)
	assert.Equal(t, 80.0, draft.Amount)
	assert.Len(t, draft.Seats, 2)
	assert.Contains(t, draft.BookingRef, "BK-")
	for _, seat := range draft.Seats {
		assert.False(t, seat.Active)
	}
}

func TestStartCheckoutReturnsExistingDraftForSameHold(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	require.NoError(t, err)

	second, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestStartCheckoutRejectsDeadHold(t *testing.T) {
	f := newFixture(t)
	f.hold.Status = holds.StatusExpired

	_, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	assert.ErrorIs(t, err, ErrCheckoutExpired)
}

func TestStartCheckoutWithSeatsAcquiresHoldAndDraft(t *testing.T) {
	f := newFixture(t)
	venueID := uuid.New()
	seatIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	w, err := timeslot.New("2026-05-02", "18:00", "20:00")
	require.NoError(t, err)

	draft, hold, err := f.svc.StartCheckoutWithSeats(context.Background(), f.session, f.customer, venueID, seatIDs, w)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, draft.Status)
	assert.Equal(t, hold.ID, draft.HoldID)
	assert.Equal(t, holds.StatusActive, f.holdMgr.status(hold.ID))
	assert.InDelta(t, 120.0, draft.Amount, 0.001)
	assert.Len(t, draft.Seats, 3)

	// The draft settles through the normal confirm path
	booking, err := f.svc.ConfirmPayment(context.Background(), f.session, f.customer, draft.ID, "card-visa")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, booking.Status)
	assert.Equal(t, holds.StatusConsumed, f.holdMgr.status(hold.ID))
}

func TestStartCheckoutWithSeatsSurfacesConflict(t *testing.T) {
	f := newFixture(t)
	contended := []uuid.UUID{uuid.New()}
	f.holdMgr.conflicts = contended
	w, err := timeslot.New("2026-05-02", "18:00", "20:00")
	require.NoError(t, err)

	_, _, err = f.svc.StartCheckoutWithSeats(context.Background(), f.session, f.customer, uuid.New(), contended, w)
	conflict, ok := holds.AsConflict(err)
	require.True(t, ok, "expected a conflict error, got %v", err)
	assert.Equal(t, contended, conflict.SeatIDs)

	// Nothing was written to the ledger
	list, err := f.svc.ListBookings(context.Background(), f.customer)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConfirmPaymentSettlesBookingAndConsumesHold(t *testing.T) {
	f := newFixture(t)

	draft, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	require.NoError(t, err)

	booking, err := f.svc.ConfirmPayment(context.Background(), f.session, f.customer, draft.ID, "card-visa")
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, booking.Status)
	assert.NotEmpty(t, booking.PaymentRef)
	assert.Equal(t, holds.StatusConsumed, f.holdMgr.status(f.hold.ID))
	assert.Len(t, f.pub.byStatus(notifier.SeatStatusBooked), 2)
	for _, seat := range booking.Seats {
		assert.True(t, seat.Active)
	}
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)

	draft, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	require.NoError(t, err)

	first, err := f.svc.ConfirmPayment(context.Background(), f.session, f.customer, draft.ID, "card-visa")
	require.NoError(t, err)

	// Webhook redelivery: same outcome, same booking, no second charge
	second, err := f.svc.ConfirmPayment(context.Background(), f.session, f.customer, draft.ID, "card-visa")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.PaymentRef, second.PaymentRef)
	assert.Equal(t, 1, f.gateway.count())
}

func TestConcurrentConfirmPaymentChargesOnce(t *testing.T) {
	f := newFixture(t)
	// Latency keeps the first charge in flight while the redelivery arrives
	f.gateway.inner = &payments.SimulatedGateway{Latency: 20 * time.Millisecond}

	draft, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Booking, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = f.svc.ConfirmPayment(context.Background(), f.session, f.customer, draft.ID, "card-visa")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, StatusConfirmed, results[i].Status)
	}
	assert.Equal(t, results[0].PaymentRef, results[1].PaymentRef)
	assert.Equal(t, 1, f.gateway.count())
	assert.Equal(t, holds.StatusConsumed, f.holdMgr.status(f.hold.ID))
}

func TestConfirmPaymentDeclinedReleasesHold(t *testing.T) {
	f := newFixture(t)

	draft, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(context.Background(), f.session, f.customer, draft.ID, "declined-card")
	assert.ErrorIs(t, err, payments.ErrPaymentDeclined)

	assert.Equal(t, holds.StatusReleased, f.holdMgr.status(f.hold.ID))
	settled, err := f.ledger.GetByID(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, settled.Status)
}

func TestConfirmPaymentTimeoutReleasesHold(t *testing.T) {
	f := newFixture(t)

	draft, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(context.Background(), f.session, f.customer, draft.ID, "slow-card")
	assert.ErrorIs(t, err, payments.ErrPaymentTimeout)
	assert.Equal(t, holds.StatusReleased, f.holdMgr.status(f.hold.ID))
}

func TestConfirmPaymentOnLapsedHoldCancelsDraft(t *testing.T) {
	f := newFixture(t)

	draft, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	require.NoError(t, err)

	f.hold.Status = holds.StatusExpired
	_, err = f.svc.ConfirmPayment(context.Background(), f.session, f.customer, draft.ID, "card-visa")
	assert.ErrorIs(t, err, ErrCheckoutExpired)
	assert.Zero(t, f.gateway.count())

	settled, err := f.ledger.GetByID(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, settled.Status)
}

func TestConfirmPaymentRejectsForeignCustomer(t *testing.T) {
	f := newFixture(t)

	draft, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(context.Background(), f.session, "cust-2", draft.ID, "card-visa")
	assert.ErrorIs(t, err, ErrBookingNotOwned)
	assert.Zero(t, f.gateway.count())
}

func TestCancelBookingFreesSeats(t *testing.T) {
	f := newFixture(t)

	draft, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	require.NoError(t, err)
	booking, err := f.svc.ConfirmPayment(context.Background(), f.session, f.customer, draft.ID, "card-visa")
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelBooking(context.Background(), f.customer, booking.BookingRef))
	assert.Len(t, f.pub.byStatus(notifier.SeatStatusFreed), 2)

	settled, err := f.ledger.GetByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, settled.Status)
	for _, seat := range settled.Seats {
		assert.False(t, seat.Active)
	}

	// Cancelling again is a no-op
	require.NoError(t, f.svc.CancelBooking(context.Background(), f.customer, booking.BookingRef))
	assert.Len(t, f.pub.byStatus(notifier.SeatStatusFreed), 2)
}

func TestCancelBookingRejectsPendingDraft(t *testing.T) {
	f := newFixture(t)

	draft, err := f.svc.StartCheckout(context.Background(), f.session, f.customer, f.hold.ID)
	require.NoError(t, err)

	err = f.svc.CancelBooking(context.Background(), f.customer, draft.BookingRef)
	assert.ErrorIs(t, err, ErrBookingNotConfirmed)
}

func TestGenerateBookingRefShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		ref := GenerateBookingRef()
		assert.Len(t, ref, 11)
		assert.Equal(t, "BK-", ref[:3])
		seen[ref] = struct{}{}
	}
	assert.Len(t, seen, 100)
}
