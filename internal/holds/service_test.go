package holds

import (
	"context"
	"sync"
	"testing"
	"time"

	"seatly/internal/notifier"
	"seatly/internal/shared/clock"
	"seatly/internal/shared/timeslot"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm.io/gorm"
)

// bookedSeat stands in for an active booking_seats row.
type bookedSeat struct {
	seatID uuid.UUID
	window timeslot.Window
	active bool
}

// memoryRepository mirrors the Postgres admission semantics in memory so the
// service can be tested without a database.
type memoryRepository struct {
	mu     sync.Mutex
	holds  map[uuid.UUID]*Hold
	booked []*bookedSeat
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{holds: make(map[uuid.UUID]*Hold)}
}

// confirmBooking marks the hold consumed and pins its seats the way the
// ledger's confirmation transaction does.
func (r *memoryRepository) confirmBooking(token uuid.UUID) []*bookedSeat {
	r.mu.Lock()
	defer r.mu.Unlock()
	hold := r.holds[token]
	hold.Status = StatusConsumed
	var pinned []*bookedSeat
	for _, seat := range hold.Seats {
		row := &bookedSeat{seatID: seat.SeatID, window: hold.Window(), active: true}
		r.booked = append(r.booked, row)
		pinned = append(pinned, row)
	}
	return pinned
}

func (r *memoryRepository) AcquireAtomic(ctx context.Context, hold *Hold, seatIDs []uuid.UUID, window timeslot.Window, now time.Time) ([]uuid.UUID, []Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []Hold
	for _, existing := range r.holds {
		if existing.Status == StatusActive && !now.Before(existing.ExpiresAt) {
			existing.Status = StatusExpired
			expired = append(expired, *existing)
		}
	}

	conflictSet := make(map[uuid.UUID]struct{})
	for _, existing := range r.holds {
		if existing.Status != StatusActive || !now.Before(existing.ExpiresAt) {
			continue
		}
		if !existing.Window().Overlaps(window) {
			continue
		}
		for _, held := range existing.SeatIDs() {
			conflictSet[held] = struct{}{}
		}
	}

	for _, row := range r.booked {
		if row.active && row.window.Overlaps(window) {
			conflictSet[row.seatID] = struct{}{}
		}
	}

	var conflicts []uuid.UUID
	for _, id := range seatIDs {
		if _, clash := conflictSet[id]; clash {
			conflicts = append(conflicts, id)
		}
	}
	if len(conflicts) > 0 {
		return conflicts, expired, nil
	}

	for _, seatID := range seatIDs {
		hold.Seats = append(hold.Seats, HoldSeat{
			HoldID:      hold.ID,
			SeatID:      seatID,
			VenueID:     hold.VenueID,
			Date:        window.Date,
			StartMinute: window.Start,
			EndMinute:   window.End,
		})
	}
	r.holds[hold.ID] = hold
	return nil, expired, nil
}

func (r *memoryRepository) GetByToken(ctx context.Context, token uuid.UUID) (*Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hold, ok := r.holds[token]
	if !ok {
		return nil, ErrHoldNotFound
	}
	copied := *hold
	return &copied, nil
}

func (r *memoryRepository) UpdateExpiry(ctx context.Context, token uuid.UUID, newExpiry time.Time, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hold, ok := r.holds[token]
	if !ok || hold.Status != StatusActive || !now.Before(hold.ExpiresAt) {
		return 0, nil
	}
	hold.ExpiresAt = newExpiry
	hold.RenewCount++
	return 1, nil
}

func (r *memoryRepository) UpdateStatus(ctx context.Context, token uuid.UUID, from, to string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hold, ok := r.holds[token]
	if !ok || hold.Status != from {
		return 0, nil
	}
	hold.Status = to
	return 1, nil
}

func (r *memoryRepository) ConsumeInTx(tx *gorm.DB, token uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	hold, ok := r.holds[token]
	if !ok || hold.Status != StatusActive || !now.Before(hold.ExpiresAt) {
		return ErrHoldNotActive
	}
	hold.Status = StatusConsumed
	return nil
}

func (r *memoryRepository) ListLapsed(ctx context.Context, now time.Time) ([]Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lapsed []Hold
	for _, hold := range r.holds {
		if hold.Status == StatusActive && !now.Before(hold.ExpiresAt) {
			lapsed = append(lapsed, *hold)
		}
	}
	return lapsed, nil
}

func (r *memoryRepository) ExpireHold(ctx context.Context, token uuid.UUID, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hold, ok := r.holds[token]
	if !ok || hold.Status != StatusActive || now.Before(hold.ExpiresAt) {
		return 0, nil
	}
	hold.Status = StatusExpired
	return 1, nil
}

// memorySeatLock mirrors the all-or-nothing Redis seat-set lock in memory.
type memorySeatLock struct {
	mu     sync.Mutex
	locked map[string]string
}

func newMemorySeatLock() *memorySeatLock {
	return &memorySeatLock{locked: make(map[string]string)}
}

func (l *memorySeatLock) AcquireAll(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := lockKeys(venueID, seatIDs)
	for _, key := range keys {
		if _, busy := l.locked[key]; busy {
			return "", ErrSeatLockBusy
		}
	}
	owner := uuid.NewString()
	for _, key := range keys {
		l.locked[key] = owner
	}
	return owner, nil
}

func (l *memorySeatLock) ReleaseAll(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range lockKeys(venueID, seatIDs) {
		if l.locked[key] == owner {
			delete(l.locked, key)
		}
	}
	return nil
}

type allowAllVerifier struct{}

func (allowAllVerifier) VerifySeatsBookable(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID) error {
	return nil
}

// capturePublisher records published deltas for assertions.
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

func (p *capturePublisher) statuses() []notifier.SeatStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notifier.SeatStatus, 0, len(p.deltas))
	for _, d := range p.deltas {
		out = append(out, d.NewStatus)
	}
	return out
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

func newTestService(t *testing.T) (Service, *clock.Fake, *capturePublisher) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	pub := &capturePublisher{}
	svc := NewService(newMemoryRepository(), newMemorySeatLock(), allowAllVerifier{}, pub, clk, Config{
		TTL:         5 * time.Minute,
		MaxLifetime: 30 * time.Minute,
		SeatLockTTL: 5 * time.Second,
	})
	return svc, clk, pub
}

func window(t *testing.T, date, start, end string) timeslot.Window {
	t.Helper()
	w, err := timeslot.New(date, start, end)
	require.NoError(t, err)
	return w
}

func seatSet(n int) []uuid.UUID {
	seats := make([]uuid.UUID, n)
	for i := range seats {
		seats[i] = uuid.New()
	}
	return seats
}

func TestAcquireGrantsWholeSeatSet(t *testing.T) {
	svc, _, pub := newTestService(t)
	venueID := uuid.New()
	seats := seatSet(3)

	hold, err := svc.Acquire(context.Background(), "sess-1", venueID, seats, window(t, "2026-05-01", "18:00", "20:00"))
	require.NoError(t, err)

	assert.Equal(t, StatusActive, hold.Status)
	assert.Len(t, hold.Seats, 3)
	assert.ElementsMatch(t, seats, hold.SeatIDs())
	assert.Len(t, pub.byStatus(notifier.SeatStatusHeld), 3)
}

func TestAcquireAllOrNothingOnPartialConflict(t *testing.T) {
	svc, _, _ := newTestService(t)
	venueID := uuid.New()
	seats := seatSet(3)

	_, err := svc.Acquire(context.Background(), "sess-1", venueID, seats[:1], window(t, "2026-05-01", "18:00", "20:00"))
	require.NoError(t, err)

	// Overlapping window, superset of seats: the free seats must not be taken
	_, err = svc.Acquire(context.Background(), "sess-2", venueID, seats, window(t, "2026-05-01", "19:00", "21:00"))
	conflict, ok := AsConflict(err)
	require.True(t, ok, "expected a conflict error, got %v", err)
	assert.Equal(t, []uuid.UUID{seats[0]}, conflict.SeatIDs)

	// The untouched seats stay grantable to a third session
	_, err = svc.Acquire(context.Background(), "sess-3", venueID, seats[1:], window(t, "2026-05-01", "19:00", "21:00"))
	assert.NoError(t, err)
}

func TestAcquireDisjointWindowsShareSeat(t *testing.T) {
	svc, _, _ := newTestService(t)
	venueID := uuid.New()
	seats := seatSet(1)

	_, err := svc.Acquire(context.Background(), "sess-1", venueID, seats, window(t, "2026-05-01", "18:00", "20:00"))
	require.NoError(t, err)

	// Adjacent window: [18:00,20:00) and [20:00,22:00) do not overlap
	_, err = svc.Acquire(context.Background(), "sess-2", venueID, seats, window(t, "2026-05-01", "20:00", "22:00"))
	assert.NoError(t, err)

	// Same clock window on a different date is also free
	_, err = svc.Acquire(context.Background(), "sess-3", venueID, seats, window(t, "2026-05-02", "18:00", "20:00"))
	assert.NoError(t, err)
}

func TestAcquireAfterExpiryFreesSeats(t *testing.T) {
	svc, clk, pub := newTestService(t)
	venueID := uuid.New()
	seats := seatSet(2)

	_, err := svc.Acquire(context.Background(), "sess-1", venueID, seats, window(t, "2026-05-01", "18:00", "20:00"))
	require.NoError(t, err)

	// Still within TTL: conflict
	clk.Advance(4 * time.Minute)
	_, err = svc.Acquire(context.Background(), "sess-2", venueID, seats, window(t, "2026-05-01", "18:00", "20:00"))
	_, ok := AsConflict(err)
	require.True(t, ok)

	// Past TTL: the lapsed hold frees its seats inline, no sweeper involved
	clk.Advance(2 * time.Minute)
	hold, err := svc.Acquire(context.Background(), "sess-2", venueID, seats, window(t, "2026-05-01", "18:00", "20:00"))
	require.NoError(t, err)
	assert.Equal(t, "sess-2", hold.SessionID)
	assert.NotEmpty(t, pub.byStatus(notifier.SeatStatusReleased))
}

func TestRenewExtendsUntilLifetimeCap(t *testing.T) {
	svc, clk, _ := newTestService(t)
	venueID := uuid.New()
	seats := seatSet(1)

	hold, err := svc.Acquire(context.Background(), "sess-1", venueID, seats, window(t, "2026-05-01", "18:00", "20:00"))
	require.NoError(t, err)

	// Renew every 4 minutes; expiry keeps moving out until the 30m cap bites
	var lastExpiry time.Time
	renews := 0
	for {
		clk.Advance(4 * time.Minute)
		renewed, err := svc.Renew(context.Background(), "sess-1", hold.ID)
		if err != nil {
			assert.ErrorIs(t, err, ErrHoldLifetimeExceeded)
			break
		}
		assert.True(t, renewed.ExpiresAt.After(lastExpiry))
		lastExpiry = renewed.ExpiresAt
		renews++
	}
	// cap 30m, TTL 5m: the renew at t=28m would expire at t=33m, past the cap
	assert.Equal(t, 6, renews)
}

func TestRenewRejectsExpiredAndForeignHolds(t *testing.T) {
	svc, clk, _ := newTestService(t)
	venueID := uuid.New()

	hold, err := svc.Acquire(context.Background(), "sess-1", venueID, seatSet(1), window(t, "2026-05-01", "18:00", "20:00"))
	require.NoError(t, err)

	_, err = svc.Renew(context.Background(), "sess-2", hold.ID)
	assert.ErrorIs(t, err, ErrHoldNotOwned)

	clk.Advance(6 * time.Minute)
	_, err = svc.Renew(context.Background(), "sess-1", hold.ID)
	assert.ErrorIs(t, err, ErrHoldExpired)

	_, err = svc.Renew(context.Background(), "sess-1", uuid.New())
	assert.ErrorIs(t, err, ErrHoldNotFound)
}

func TestReleaseIsIdempotent(t *testing.T) {
	svc, _, pub := newTestService(t)
	venueID := uuid.New()
	seats := seatSet(2)

	hold, err := svc.Acquire(context.Background(), "sess-1", venueID, seats, window(t, "2026-05-01", "18:00", "20:00"))
	require.NoError(t, err)

	require.NoError(t, svc.Release(context.Background(), "sess-1", hold.ID))
	assert.Len(t, pub.byStatus(notifier.SeatStatusReleased), 2)

	// Second release succeeds without a second delta
	require.NoError(t, svc.Release(context.Background(), "sess-1", hold.ID))
	assert.Len(t, pub.byStatus(notifier.SeatStatusReleased), 2)

	// Seats are free for another session
	_, err = svc.Acquire(context.Background(), "sess-2", venueID, seats, window(t, "2026-05-01", "18:00", "20:00"))
	assert.NoError(t, err)
}

func TestReleaseRejectsForeignSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	venueID := uuid.New()

	hold, err := svc.Acquire(context.Background(), "sess-1", venueID, seatSet(1), window(t, "2026-05-01", "18:00", "20:00"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Release(context.Background(), "sess-2", hold.ID), ErrHoldNotOwned)
}

func TestGetReportsLapsedHoldAsExpired(t *testing.T) {
	svc, clk, _ := newTestService(t)
	venueID := uuid.New()

	hold, err := svc.Acquire(context.Background(), "sess-1", venueID, seatSet(1), window(t, "2026-05-01", "18:00", "20:00"))
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	got, err := svc.Get(context.Background(), "sess-1", hold.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestConcurrentAcquiresGrantOneWinner(t *testing.T) {
	svc, _, _ := newTestService(t)
	venueID := uuid.New()
	seats := seatSet(4)
	w := window(t, "2026-05-01", "18:00", "20:00")

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// every goroutine wants seat 0 plus one rotating extra seat
			set := []uuid.UUID{seats[0], seats[1+n%3]}
			_, err := svc.Acquire(context.Background(), uuid.NewString(), venueID, set, w)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	granted := 0
	for err := range results {
		if err == nil {
			granted++
			continue
		}
		_, isConflict := AsConflict(err)
		if !isConflict {
			assert.ErrorIs(t, err, ErrSeatLockBusy)
		}
	}
	// Seat 0 is in every request, so at most one acquire can win
	assert.LessOrEqual(t, granted, 1)
}

func TestSweeperExpiresStaleHolds(t *testing.T) {
	svc, clk, pub := newTestService(t)
	venueID := uuid.New()

	_, err := svc.Acquire(context.Background(), "sess-1", venueID, seatSet(2), window(t, "2026-05-01", "18:00", "20:00"))
	require.NoError(t, err)

	count, err := svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	clk.Advance(6 * time.Minute)
	count, err = svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, pub.byStatus(notifier.SeatStatusReleased), 2)

	// Already terminal; a second sweep finds nothing
	count, err = svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestConfirmedBookingBlocksUntilCancelled(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	repo := newMemoryRepository()
	svc := NewService(repo, newMemorySeatLock(), allowAllVerifier{}, nil, clk, Config{
		TTL:         5 * time.Minute,
		MaxLifetime: 30 * time.Minute,
		SeatLockTTL: 5 * time.Second,
	})
	venueID := uuid.New()
	seats := seatSet(1)
	evening := window(t, "2026-05-01", "18:00", "20:00")
	overlapping := window(t, "2026-05-01", "19:00", "21:00")

	// X holds the seat; Y conflicts
	xHold, err := svc.Acquire(context.Background(), "sess-x", venueID, seats, evening)
	require.NoError(t, err)
	_, err = svc.Acquire(context.Background(), "sess-y", venueID, seats, overlapping)
	_, ok := AsConflict(err)
	require.True(t, ok)

	// X confirms: the hold is consumed and the seat pinned by the booking.
	// Consumed holds no longer block, the booking does.
	pinned := repo.confirmBooking(xHold.ID)
	_, err = svc.Acquire(context.Background(), "sess-y", venueID, seats, overlapping)
	_, ok = AsConflict(err)
	require.True(t, ok)

	// A non-overlapping window on the booked seat is still grantable
	_, err = svc.Acquire(context.Background(), "sess-y", venueID, seats, window(t, "2026-05-01", "21:00", "22:00"))
	assert.NoError(t, err)

	// X cancels; the overlapping window frees immediately
	for _, row := range pinned {
		row.active = false
	}
	_, err = svc.Acquire(context.Background(), "sess-y", venueID, seats, overlapping)
	assert.NoError(t, err)
}

// hookPublisher runs a callback on the first delta carrying the trigger
// status, before forwarding everything to the embedded capture.
type hookPublisher struct {
	capturePublisher
	trigger notifier.SeatStatus
	once    sync.Once
	onFirst func()
}

func (p *hookPublisher) Publish(ctx context.Context, deltas ...notifier.Delta) error {
	for _, d := range deltas {
		if d.NewStatus == p.trigger && p.onFirst != nil {
			p.once.Do(p.onFirst)
		}
	}
	return p.capturePublisher.Publish(ctx, deltas...)
}

func newHookedService(t *testing.T) (Service, *clock.Fake, *hookPublisher) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	pub := &hookPublisher{trigger: notifier.SeatStatusReleased}
	svc := NewService(newMemoryRepository(), newMemorySeatLock(), allowAllVerifier{}, pub, clk, Config{
		TTL:         5 * time.Minute,
		MaxLifetime: 30 * time.Minute,
		SeatLockTTL: 5 * time.Second,
	})
	return svc, clk, pub
}

func TestReleaseBlocksCompetingAcquireUntilDeltasLand(t *testing.T) {
	svc, _, pub := newHookedService(t)
	venueID := uuid.New()
	seats := seatSet(1)
	w := window(t, "2026-05-01", "18:00", "20:00")

	hold, err := svc.Acquire(context.Background(), "sess-1", venueID, seats, w)
	require.NoError(t, err)

	// An acquire racing the release between its commit and its delta
	// publication must hit the seat-set lock; a held delta slipping in
	// before the released delta would wipe the new occupancy downstream.
	var racedErr error
	pub.onFirst = func() {
		_, racedErr = svc.Acquire(context.Background(), "sess-2", venueID, seats, w)
	}

	require.NoError(t, svc.Release(context.Background(), "sess-1", hold.ID))
	assert.ErrorIs(t, racedErr, ErrSeatLockBusy)

	// With the release fully published the seats grant cleanly
	_, err = svc.Acquire(context.Background(), "sess-2", venueID, seats, w)
	require.NoError(t, err)

	wantOrder := []notifier.SeatStatus{
		notifier.SeatStatusHeld,
		notifier.SeatStatusReleased,
		notifier.SeatStatusHeld,
	}
	assert.Equal(t, wantOrder, pub.statuses())
}

func TestSweepBlocksCompetingAcquireUntilDeltasLand(t *testing.T) {
	svc, clk, pub := newHookedService(t)
	venueID := uuid.New()
	seats := seatSet(1)
	w := window(t, "2026-05-01", "18:00", "20:00")

	_, err := svc.Acquire(context.Background(), "sess-1", venueID, seats, w)
	require.NoError(t, err)
	clk.Advance(6 * time.Minute)

	var racedErr error
	pub.onFirst = func() {
		_, racedErr = svc.Acquire(context.Background(), "sess-2", venueID, seats, w)
	}

	count, err := svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.ErrorIs(t, racedErr, ErrSeatLockBusy)

	_, err = svc.Acquire(context.Background(), "sess-2", venueID, seats, w)
	require.NoError(t, err)

	wantOrder := []notifier.SeatStatus{
		notifier.SeatStatusHeld,
		notifier.SeatStatusReleased,
		notifier.SeatStatusHeld,
	}
	assert.Equal(t, wantOrder, pub.statuses())
}

func TestReleaseAfterConsumeIsNoOp(t *testing.T) {
	svc, clk, pub := newTestService(t)
	venueID := uuid.New()

	hold, err := svc.Acquire(context.Background(), "sess-1", venueID, seatSet(2), window(t, "2026-05-01", "18:00", "20:00"))
	require.NoError(t, err)
	require.NoError(t, svc.ConsumeInTx(nil, hold.ID, clk.Now()))

	// The booking owns the seats now; there is nothing left to free
	require.NoError(t, svc.Release(context.Background(), "sess-1", hold.ID))
	assert.Empty(t, pub.byStatus(notifier.SeatStatusReleased))

	got, err := svc.Get(context.Background(), "sess-1", hold.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConsumed, got.Status)
}
