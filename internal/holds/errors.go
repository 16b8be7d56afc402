package holds

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrHoldNotFound means the token matches no hold
	ErrHoldNotFound = errors.New("hold not found")
	// ErrHoldExpired means the hold's TTL passed before confirmation
	ErrHoldExpired = errors.New("hold expired")
	// ErrHoldNotOwned means the caller's session did not create the hold
	ErrHoldNotOwned = errors.New("hold not owned by session")
	// ErrHoldNotActive means a terminal hold was used where an active one is required
	ErrHoldNotActive = errors.New("hold is not active")
	// ErrHoldLifetimeExceeded means renewals would pin seats past the lifetime cap
	ErrHoldLifetimeExceeded = errors.New("hold lifetime cap reached")
	// ErrSeatLockBusy means another acquire is mid-flight on an overlapping seat set
	ErrSeatLockBusy = errors.New("seat set is being locked by another request")
)

// ConflictError reports exactly which seats were already held or booked for an
// overlapping window. Expected and frequent; the client reselects, never retries.
type ConflictError struct {
	SeatIDs []uuid.UUID
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.SeatIDs))
	for _, id := range e.SeatIDs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("seats unavailable for requested window: %s", strings.Join(ids, ", "))
}

// SeatIDStrings returns the conflicting seats as strings for API responses
func (e *ConflictError) SeatIDStrings() []string {
	ids := make([]string, 0, len(e.SeatIDs))
	for _, id := range e.SeatIDs {
		ids = append(ids, id.String())
	}
	return ids
}

// AsConflict unwraps a ConflictError if err carries one
func AsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
