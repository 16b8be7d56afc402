package availability

import (
	"context"
	"sync"
	"time"

	"seatly/internal/notifier"
	"seatly/internal/shared/timeslot"

	"github.com/google/uuid"
)

// Occupancy is one (seat, window) pair currently covered by an active hold or
// a confirmed booking.
type Occupancy struct {
	SeatID uuid.UUID
	Start  int
	End    int
}

// Loader fetches the authoritative occupancy for a (venue, date) pair.
type Loader func(ctx context.Context, venueID uuid.UUID, date string) ([]Occupancy, error)

// Index is the in-memory read model of occupied (seat, window) pairs, one day
// per (venue, date). Days are loaded from the ledger on first use and kept
// current by deltas; a rebuild blocks readers of that day only. The index is
// never authoritative: admission decisions go to the hold manager and ledger.
type Index struct {
	mu     sync.Mutex
	days   map[string]*day
	loader Loader

	// MaxAge forces a reload of days not refreshed within the bound, a
	// backstop against missed deltas.
	MaxAge time.Duration
	nowFn  func() time.Time

	// OnDayChange, when set, runs once per (venue, date) named by a Publish
	// batch, after the deltas are applied. The availability service hooks
	// snapshot cache invalidation here. Set before the index starts
	// receiving deltas.
	OnDayChange func(venueID uuid.UUID, date string)
}

type day struct {
	mu       sync.RWMutex
	occupied map[uuid.UUID][]Occupancy
	loadedAt time.Time
	loaded   bool
}

func NewIndex(loader Loader, maxAge time.Duration) *Index {
	return &Index{
		days:   make(map[string]*day),
		loader: loader,
		MaxAge: maxAge,
		nowFn:  time.Now,
	}
}

// OccupiedSeats returns the seats with an occupancy overlapping the window.
func (idx *Index) OccupiedSeats(ctx context.Context, venueID uuid.UUID, window timeslot.Window) (map[uuid.UUID]struct{}, error) {
	d, err := idx.dayFor(ctx, venueID, window.Date)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[uuid.UUID]struct{})
	for seatID, entries := range d.occupied {
		for _, occ := range entries {
			if occ.Start < window.End && window.Start < occ.End {
				out[seatID] = struct{}{}
				break
			}
		}
	}
	return out, nil
}

// SeatOccupied reports whether one seat has an occupancy overlapping the window.
func (idx *Index) SeatOccupied(ctx context.Context, venueID, seatID uuid.UUID, window timeslot.Window) (bool, error) {
	d, err := idx.dayFor(ctx, venueID, window.Date)
	if err != nil {
		return false, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, occ := range d.occupied[seatID] {
		if occ.Start < window.End && window.Start < occ.End {
			return true, nil
		}
	}
	return false, nil
}

// Publish applies deltas to the affected days. Implements notifier.Publisher
// so the index can sit in the same fanout as the hub and receive every local
// and relayed transition. Days never loaded are skipped; they will load fresh
// state on first read.
func (idx *Index) Publish(ctx context.Context, deltas ...notifier.Delta) error {
	type venueDate struct {
		venueID uuid.UUID
		date    string
	}
	touched := make(map[venueDate]struct{}, 1)

	for _, delta := range deltas {
		touched[venueDate{delta.VenueID, delta.Window.Date}] = struct{}{}

		d := idx.peekDay(notifier.TopicKey(delta.VenueID, delta.Window.Date))
		if d == nil {
			continue
		}

		d.mu.Lock()
		if !d.loaded {
			d.mu.Unlock()
			continue
		}
		switch delta.NewStatus {
		case notifier.SeatStatusHeld, notifier.SeatStatusBooked:
			d.add(delta.SeatID, Occupancy{SeatID: delta.SeatID, Start: delta.Window.Start, End: delta.Window.End})
		case notifier.SeatStatusReleased, notifier.SeatStatusFreed:
			d.remove(delta.SeatID, delta.Window.Start, delta.Window.End)
		}
		d.mu.Unlock()
	}

	if idx.OnDayChange != nil {
		for vd := range touched {
			idx.OnDayChange(vd.venueID, vd.date)
		}
	}
	return nil
}

// Invalidate drops a day so the next read rebuilds it from the ledger.
func (idx *Index) Invalidate(venueID uuid.UUID, date string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.days, notifier.TopicKey(venueID, date))
}

func (idx *Index) dayFor(ctx context.Context, venueID uuid.UUID, date string) (*day, error) {
	key := notifier.TopicKey(venueID, date)

	idx.mu.Lock()
	d, ok := idx.days[key]
	if !ok {
		d = &day{occupied: make(map[uuid.UUID][]Occupancy)}
		idx.days[key] = d
	}
	idx.mu.Unlock()

	now := idx.nowFn()

	d.mu.RLock()
	fresh := d.loaded && (idx.MaxAge <= 0 || now.Sub(d.loadedAt) < idx.MaxAge)
	d.mu.RUnlock()
	if fresh {
		return d, nil
	}

	// Rebuild under the write lock; readers of this day wait rather than see
	// stale or partial state.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded && (idx.MaxAge <= 0 || now.Sub(d.loadedAt) < idx.MaxAge) {
		return d, nil
	}

	entries, err := idx.loader(ctx, venueID, date)
	if err != nil {
		return nil, err
	}

	d.occupied = make(map[uuid.UUID][]Occupancy, len(entries))
	for _, occ := range entries {
		d.occupied[occ.SeatID] = append(d.occupied[occ.SeatID], occ)
	}
	d.loadedAt = now
	d.loaded = true
	return d, nil
}

func (idx *Index) peekDay(key string) *day {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.days[key]
}

func (d *day) add(seatID uuid.UUID, occ Occupancy) {
	for _, existing := range d.occupied[seatID] {
		if existing.Start == occ.Start && existing.End == occ.End {
			return
		}
	}
	d.occupied[seatID] = append(d.occupied[seatID], occ)
}

func (d *day) remove(seatID uuid.UUID, start, end int) {
	entries := d.occupied[seatID]
	for i, occ := range entries {
		if occ.Start == start && occ.End == end {
			d.occupied[seatID] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(d.occupied[seatID]) == 0 {
		delete(d.occupied, seatID)
	}
}
