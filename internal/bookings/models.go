package bookings

import (
	"crypto/rand"
	"time"

	"seatly/internal/shared/timeslot"

	"github.com/google/uuid"
)

// Booking lifecycle statuses
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
)

// Booking is one ledger entry. Created PENDING at checkout start; CONFIRMED
// only after the gateway reports payment success, atomically with consuming
// the backing hold. CONFIRMED rows with active seats are the ground truth all
// conflict decisions defer to.
type Booking struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BookingRef  string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"booking_ref"`
	VenueID     uuid.UUID `gorm:"type:uuid;index;not null" json:"venue_id"`
	CustomerID  string    `gorm:"type:varchar(128);index;not null" json:"customer_id"`
	HoldID      uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"hold_id"`
	Date        string    `gorm:"type:varchar(10);not null" json:"date"`
	StartMinute int       `gorm:"not null" json:"start_minute"`
	EndMinute   int       `gorm:"not null" json:"end_minute"`
	Status      string    `gorm:"type:varchar(20);check:status IN ('PENDING', 'CONFIRMED', 'CANCELLED');default:'PENDING'" json:"status"`
	Amount      float64   `gorm:"not null" json:"amount"`
	PaymentRef  string    `gorm:"type:varchar(64)" json:"payment_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relationships
	Seats []BookingSeat `json:"seats,omitempty" gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE;"`
}

// BookingSeat pins one seat under a booking. Active rows participate in the
// database exclusion constraint guarding against overlapping confirmed
// bookings; cancellation flips Active off and the window frees instantly.
type BookingSeat struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BookingID   uuid.UUID `gorm:"type:uuid;index;not null" json:"booking_id"`
	SeatID      uuid.UUID `gorm:"type:uuid;index;not null" json:"seat_id"`
	VenueID     uuid.UUID `gorm:"type:uuid;not null" json:"venue_id"`
	Date        string    `gorm:"type:varchar(10);not null" json:"date"`
	StartMinute int       `gorm:"not null" json:"start_minute"`
	EndMinute   int       `gorm:"not null" json:"end_minute"`
	Active      bool      `gorm:"not null;default:false" json:"active"`
	CreatedAt   time.Time `json:"created_at"`

	// Relationships
	Booking *Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE;"`
}

// TableName sets the table name for Booking
func (Booking) TableName() string {
	return "bookings"
}

// TableName sets the table name for BookingSeat
func (BookingSeat) TableName() string {
	return "booking_seats"
}

// Window returns the booking's time window
func (b *Booking) Window() timeslot.Window {
	return timeslot.Window{Date: b.Date, Start: b.StartMinute, End: b.EndMinute}
}

// SeatIDs lists the seats covered by this booking
func (b *Booking) SeatIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(b.Seats))
	for i := range b.Seats {
		ids = append(ids, b.Seats[i].SeatID)
	}
	return ids
}

const refAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateBookingRef produces a shareable reference like BK-7XK2M9QF.
// The alphabet skips lookalike characters.
func GenerateBookingRef() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable; fall back to a uuid fragment
		return "BK-" + uuid.NewString()[:8]
	}
	for i := range buf {
		buf[i] = refAlphabet[int(buf[i])%len(refAlphabet)]
	}
	return "BK-" + string(buf)
}

// StartCheckoutRequest opens the checkout state machine. Either resume with
// a previously acquired hold token, or name the seats and window directly
// and let checkout drive the admission itself.
type StartCheckoutRequest struct {
	HoldToken string `json:"hold_token" binding:"omitempty,uuid"`

	VenueID string   `json:"venue_id" binding:"omitempty,uuid"`
	SeatIDs []string `json:"seat_ids" binding:"omitempty,min=1,max=10,dive,uuid"`
	Date    string   `json:"date" binding:"omitempty,slotdate"`
	Start   string   `json:"start" binding:"omitempty,slottime"`
	End     string   `json:"end" binding:"omitempty,slottime"`
}

// ConfirmPaymentRequest reports the customer's payment attempt for a draft
type ConfirmPaymentRequest struct {
	PaymentMethod string `json:"payment_method" binding:"required"`
}

// CheckoutResponse pairs the fresh draft with the hold backing it, so a
// one-call checkout hands the client everything it needs to confirm or renew.
type CheckoutResponse struct {
	Booking       BookingResponse `json:"booking"`
	HoldToken     string          `json:"hold_token"`
	HoldExpiresAt time.Time       `json:"hold_expires_at"`
}

// BookingResponse is the API shape of a booking
type BookingResponse struct {
	ID         string    `json:"id"`
	BookingRef string    `json:"booking_ref"`
	HoldToken  string    `json:"hold_token"`
	VenueID    string    `json:"venue_id"`
	CustomerID string    `json:"customer_id"`
	SeatIDs    []string  `json:"seat_ids"`
	Date       string    `json:"date"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Status     string    `json:"status"`
	Amount     float64   `json:"amount"`
	PaymentRef string    `json:"payment_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToResponse converts a Booking to its API shape
func (b *Booking) ToResponse() BookingResponse {
	w := b.Window()
	seatIDs := make([]string, 0, len(b.Seats))
	for i := range b.Seats {
		seatIDs = append(seatIDs, b.Seats[i].SeatID.String())
	}
	return BookingResponse{
		ID:         b.ID.String(),
		BookingRef: b.BookingRef,
		HoldToken:  b.HoldID.String(),
		VenueID:    b.VenueID.String(),
		CustomerID: b.CustomerID,
		SeatIDs:    seatIDs,
		Date:       b.Date,
		Start:      w.StartClock(),
		End:        w.EndClock(),
		Status:     b.Status,
		Amount:     b.Amount,
		PaymentRef: b.PaymentRef,
		CreatedAt:  b.CreatedAt,
	}
}
