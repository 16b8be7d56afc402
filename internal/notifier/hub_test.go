package notifier

import (
	"context"
	"testing"
	"time"

	"seatly/internal/shared/timeslot"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delta(venueID, seatID uuid.UUID, status SeatStatus) Delta {
	return Delta{
		VenueID:   venueID,
		SeatID:    seatID,
		Window:    timeslot.Window{Date: "2026-05-01", Start: 18 * 60, End: 20 * 60},
		NewStatus: status,
	}
}

func TestHubDeliversPerSeatDeltasInOrder(t *testing.T) {
	hub := NewHub(nil)
	venueID := uuid.New()
	seatID := uuid.New()

	ch, cancel := hub.Subscribe(venueID, "2026-05-01")
	defer cancel()

	statuses := []SeatStatus{SeatStatusHeld, SeatStatusReleased, SeatStatusHeld, SeatStatusBooked}
	for _, status := range statuses {
		require.NoError(t, hub.Publish(context.Background(), delta(venueID, seatID, status)))
	}

	for i, want := range statuses {
		select {
		case got := <-ch:
			assert.Equal(t, want, got.NewStatus)
			assert.Equal(t, uint64(i+1), got.Seq)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delta")
		}
	}
}

func TestHubIsolatesTopicsByDate(t *testing.T) {
	hub := NewHub(nil)
	venueID := uuid.New()

	ch, cancel := hub.Subscribe(venueID, "2026-05-01")
	defer cancel()

	other := delta(venueID, uuid.New(), SeatStatusHeld)
	other.Window.Date = "2026-05-02"
	require.NoError(t, hub.Publish(context.Background(), other))

	select {
	case d := <-ch:
		t.Fatalf("received delta for another date: %+v", d)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubDropsLaggingSubscriber(t *testing.T) {
	hub := NewHub(nil)
	venueID := uuid.New()
	seatID := uuid.New()

	ch, cancel := hub.Subscribe(venueID, "2026-05-01")
	defer cancel()

	// Never read: once the buffer is full the subscriber must be dropped
	// without Publish ever blocking.
	for i := 0; i < subscriberBuffer+1; i++ {
		require.NoError(t, hub.Publish(context.Background(), delta(venueID, seatID, SeatStatusHeld)))
	}

	assert.Equal(t, 0, hub.SubscriberCount(venueID, "2026-05-01"))

	// Drain: the channel was closed after the buffered deltas
	received := 0
	for range ch {
		received++
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestHubCancelUnsubscribes(t *testing.T) {
	hub := NewHub(nil)
	venueID := uuid.New()

	ch, cancel := hub.Subscribe(venueID, "2026-05-01")
	assert.Equal(t, 1, hub.SubscriberCount(venueID, "2026-05-01"))

	cancel()
	assert.Equal(t, 0, hub.SubscriberCount(venueID, "2026-05-01"))

	_, open := <-ch
	assert.False(t, open)

	// Cancelling twice is safe
	cancel()
}

func TestFanoutPublishesToAllSinks(t *testing.T) {
	hub := NewHub(nil)
	venueID := uuid.New()

	ch, cancel := hub.Subscribe(venueID, "2026-05-01")
	defer cancel()

	var second []Delta
	fanout := Fanout{hub, publisherFunc(func(ctx context.Context, deltas ...Delta) error {
		second = append(second, deltas...)
		return nil
	})}

	require.NoError(t, fanout.Publish(context.Background(), delta(venueID, uuid.New(), SeatStatusBooked)))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("hub subscriber did not receive delta")
	}
	assert.Len(t, second, 1)
}

type publisherFunc func(ctx context.Context, deltas ...Delta) error

func (f publisherFunc) Publish(ctx context.Context, deltas ...Delta) error {
	return f(ctx, deltas...)
}
