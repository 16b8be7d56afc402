package holds

import (
	"time"

	"seatly/internal/shared/timeslot"

	"github.com/google/uuid"
)

// Hold lifecycle statuses
const (
	StatusActive   = "ACTIVE"
	StatusConsumed = "CONSUMED"
	StatusExpired  = "EXPIRED"
	StatusReleased = "RELEASED"
)

// MaxSeatsPerHold bounds one checkout's seat set
const MaxSeatsPerHold = 10

// Hold is a short-lived exclusive lock on a seat set for a time window.
// The row id doubles as the hold token handed to the owning session.
type Hold struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VenueID     uuid.UUID `gorm:"type:uuid;index;not null" json:"venue_id"`
	Date        string    `gorm:"type:varchar(10);index;not null" json:"date"`
	StartMinute int       `gorm:"not null" json:"start_minute"`
	EndMinute   int       `gorm:"not null" json:"end_minute"`
	SessionID   string    `gorm:"type:varchar(128);index;not null" json:"session_id"`
	Status      string    `gorm:"type:varchar(20);check:status IN ('ACTIVE', 'CONSUMED', 'EXPIRED', 'RELEASED');default:'ACTIVE'" json:"status"`
	RenewCount  int       `gorm:"default:0" json:"renew_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ExpiresAt   time.Time `gorm:"index;not null" json:"expires_at"`

	// Relationships
	Seats []HoldSeat `json:"seats,omitempty" gorm:"foreignKey:HoldID;constraint:OnDelete:CASCADE;"`
}

// HoldSeat pins one seat under a hold. Venue, date and window are denormalized
// onto the row so conflict checks hit one indexed table.
type HoldSeat struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	HoldID      uuid.UUID `gorm:"type:uuid;index;not null" json:"hold_id"`
	SeatID      uuid.UUID `gorm:"type:uuid;index;not null" json:"seat_id"`
	VenueID     uuid.UUID `gorm:"type:uuid;not null" json:"venue_id"`
	Date        string    `gorm:"type:varchar(10);not null" json:"date"`
	StartMinute int       `gorm:"not null" json:"start_minute"`
	EndMinute   int       `gorm:"not null" json:"end_minute"`
	CreatedAt   time.Time `json:"created_at"`

	// Relationships
	Hold *Hold `json:"hold,omitempty" gorm:"foreignKey:HoldID;constraint:OnDelete:CASCADE;"`
}

// TableName sets the table name for Hold
func (Hold) TableName() string {
	return "holds"
}

// TableName sets the table name for HoldSeat
func (HoldSeat) TableName() string {
	return "hold_seats"
}

// Window returns the hold's time window
func (h *Hold) Window() timeslot.Window {
	return timeslot.Window{Date: h.Date, Start: h.StartMinute, End: h.EndMinute}
}

// IsActive reports whether the hold still excludes other sessions at instant now.
// Expiry is always evaluated inline; the sweeper only tidies rows up afterwards.
func (h *Hold) IsActive(now time.Time) bool {
	return h.Status == StatusActive && now.Before(h.ExpiresAt)
}

// IsTerminal reports whether the hold can never become active again
func (h *Hold) IsTerminal() bool {
	return h.Status == StatusConsumed || h.Status == StatusExpired || h.Status == StatusReleased
}

// SeatIDs lists the seats pinned by this hold
func (h *Hold) SeatIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(h.Seats))
	for i := range h.Seats {
		ids = append(ids, h.Seats[i].SeatID)
	}
	return ids
}

// AcquireHoldRequest is the client request for a new hold
type AcquireHoldRequest struct {
	VenueID string   `json:"venue_id" binding:"required,uuid"`
	SeatIDs []string `json:"seat_ids" binding:"required,min=1,max=10,dive,uuid"`
	Date    string   `json:"date" binding:"required,slotdate"`
	Start   string   `json:"start" binding:"required,slottime"`
	End     string   `json:"end" binding:"required,slottime"`
}

// HoldResponse is the API shape of a hold
type HoldResponse struct {
	HoldToken string    `json:"hold_token"`
	VenueID   string    `json:"venue_id"`
	SeatIDs   []string  `json:"seat_ids"`
	Date      string    `json:"date"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ToResponse converts a Hold to its API shape
func (h *Hold) ToResponse() HoldResponse {
	w := h.Window()
	seatIDs := make([]string, 0, len(h.Seats))
	for i := range h.Seats {
		seatIDs = append(seatIDs, h.Seats[i].SeatID.String())
	}
	return HoldResponse{
		HoldToken: h.ID.String(),
		VenueID:   h.VenueID.String(),
		SeatIDs:   seatIDs,
		Date:      h.Date,
		Start:     w.StartClock(),
		End:       w.EndClock(),
		Status:    h.Status,
		ExpiresAt: h.ExpiresAt,
	}
}
