package notifier

import (
	"context"
	"sync"
	"time"

	"seatly/pkg/logger"

	"github.com/google/uuid"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind is dropped instead of blocking publishers; delivery
// is best-effort and clients reconcile with a fresh availability query.
const subscriberBuffer = 64

// Hub fans seat-status deltas out to in-process subscribers of a (venue, date)
// pair. Publishing is serialized per topic, which preserves per-seat ordering.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]*topic
	log    *logger.Logger
}

type topic struct {
	mu      sync.Mutex
	subs    map[int]chan Delta
	nextSub int
	seatSeq map[uuid.UUID]uint64
}

// NewHub creates an empty hub
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Hub{
		topics: make(map[string]*topic),
		log:    log,
	}
}

// Subscribe registers an observer for a (venue, date) pair. The returned
// cancel function must be called when the observer goes away; the channel is
// closed by the hub on cancel or when the subscriber is dropped for lagging.
func (h *Hub) Subscribe(venueID uuid.UUID, date string) (<-chan Delta, func()) {
	key := TopicKey(venueID, date)

	h.mu.Lock()
	t, ok := h.topics[key]
	if !ok {
		t = &topic{
			subs:    make(map[int]chan Delta),
			seatSeq: make(map[uuid.UUID]uint64),
		}
		h.topics[key] = t
	}
	h.mu.Unlock()

	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	ch := make(chan Delta, subscriberBuffer)
	t.subs[id] = ch
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		if sub, still := t.subs[id]; still {
			delete(t.subs, id)
			close(sub)
		}
		t.mu.Unlock()
	}

	return ch, cancel
}

// Publish delivers deltas to every subscriber of the affected (venue, date)
// pairs, stamping per-seat sequence numbers. It never blocks on a slow
// subscriber: a full channel gets the subscriber dropped.
func (h *Hub) Publish(ctx context.Context, deltas ...Delta) error {
	for i := range deltas {
		d := deltas[i]
		if d.At.IsZero() {
			d.At = time.Now().UTC()
		}

		h.mu.RLock()
		t, ok := h.topics[d.TopicKey()]
		h.mu.RUnlock()
		if !ok {
			continue // nobody watching
		}

		t.mu.Lock()
		t.seatSeq[d.SeatID]++
		d.Seq = t.seatSeq[d.SeatID]

		for id, ch := range t.subs {
			select {
			case ch <- d:
			default:
				// lagging subscriber: drop it rather than stall the transition
				delete(t.subs, id)
				close(ch)
				h.log.InfoWithContext(ctx, "dropped lagging feed subscriber", map[string]interface{}{
					"venue_id": d.VenueID.String(),
					"date":     d.Window.Date,
				})
			}
		}
		t.mu.Unlock()
	}
	return nil
}

// SubscriberCount reports active subscribers for a (venue, date) pair
func (h *Hub) SubscriberCount(venueID uuid.UUID, date string) int {
	h.mu.RLock()
	t, ok := h.topics[TopicKey(venueID, date)]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Fanout publishes to several publishers in order; the hub should come first
// so local subscribers observe the transition before the broker does.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, deltas ...Delta) error {
	var firstErr error
	for _, p := range f {
		if err := p.Publish(ctx, deltas...); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
