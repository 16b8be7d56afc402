package bookings

import "errors"

var (
	// ErrBookingNotFound means the id or reference matches no booking
	ErrBookingNotFound = errors.New("booking not found")
	// ErrBookingNotOwned means the caller is not the booking's customer
	ErrBookingNotOwned = errors.New("booking not owned by customer")
	// ErrBookingNotPending means confirmation was attempted on a settled booking
	ErrBookingNotPending = errors.New("booking is not pending")
	// ErrBookingNotConfirmed means cancellation was attempted on a non-confirmed booking
	ErrBookingNotConfirmed = errors.New("booking is not confirmed")
	// ErrCheckoutExpired means the backing hold lapsed before payment completed
	ErrCheckoutExpired = errors.New("checkout expired, hold is no longer active")
)
