package notifier

import (
	"context"
	"encoding/json"
	"time"

	"seatly/internal/shared/timeslot"

	"github.com/google/uuid"
)

// SeatStatus is the availability-facing state carried by a delta
type SeatStatus string

const (
	SeatStatusHeld     SeatStatus = "held"
	SeatStatusReleased SeatStatus = "released"
	SeatStatusBooked   SeatStatus = "booked"
	SeatStatusFreed    SeatStatus = "freed"
)

// Delta describes one seat-availability transition for a (venue, date) pair.
// Seq is assigned per seat by the hub; deltas for a single seat reach every
// subscriber in transition order. Cross-seat ordering is not guaranteed.
type Delta struct {
	VenueID   uuid.UUID       `json:"venue_id"`
	SeatID    uuid.UUID       `json:"seat_id"`
	Window    timeslot.Window `json:"window"`
	NewStatus SeatStatus      `json:"new_status"`
	Seq       uint64          `json:"seq"`
	At        time.Time       `json:"at"`

	// Origin identifies the engine instance that emitted the delta, so the
	// broker relay can skip messages this instance already fanned out locally.
	Origin string `json:"origin,omitempty"`
}

// Date returns the calendar date the delta applies to
func (d Delta) Date() string {
	return d.Window.Date
}

// TopicKey groups deltas by the (venue, date) pair subscribers watch
func (d Delta) TopicKey() string {
	return TopicKey(d.VenueID, d.Window.Date)
}

// PartitionKey keeps a single seat's timeline on one Kafka partition
func (d Delta) PartitionKey() string {
	return d.VenueID.String() + ":" + d.SeatID.String()
}

// ToJSON serializes the delta for the wire
func (d Delta) ToJSON() ([]byte, error) {
	return json.Marshal(d)
}

// DeltaFromJSON deserializes a delta from the wire
func DeltaFromJSON(data []byte) (Delta, error) {
	var d Delta
	err := json.Unmarshal(data, &d)
	return d, err
}

// TopicKey builds the subscription key for a (venue, date) pair
func TopicKey(venueID uuid.UUID, date string) string {
	return venueID.String() + "|" + date
}

// Publisher is the outbound side of the change notifier. Hold manager, booking
// orchestrator and catalog publish synchronously after each state transition
// that changes seat availability.
type Publisher interface {
	Publish(ctx context.Context, deltas ...Delta) error
}

// NopPublisher discards deltas; used in tests that do not observe the feed.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, deltas ...Delta) error { return nil }
