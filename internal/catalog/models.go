package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Seat base statuses controlled by the venue operator, independent of bookings
const (
	BaseStatusAvailable   = "AVAILABLE"
	BaseStatusMaintenance = "MAINTENANCE"
	BaseStatusDisabled    = "DISABLED"
)

// Venue defines a bookable venue
type Venue struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Timezone  string    `gorm:"type:varchar(64);default:'UTC'" json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Seats []Seat `json:"seats,omitempty" gorm:"foreignKey:VenueID;constraint:OnDelete:CASCADE;"`
}

// Seat defines an individually numbered seat inside a venue
type Seat struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VenueID    uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:idx_venue_seat" json:"venue_id"`
	Row        string    `gorm:"not null;uniqueIndex:idx_venue_seat" json:"row"`
	Column     int       `gorm:"not null;uniqueIndex:idx_venue_seat" json:"column"`
	SeatType   string    `gorm:"type:varchar(20);default:'STANDARD'" json:"seat_type"`
	Price      float64   `gorm:"not null;default:0" json:"price"`
	BaseStatus string    `gorm:"type:varchar(20);check:base_status IN ('AVAILABLE', 'MAINTENANCE', 'DISABLED');default:'AVAILABLE'" json:"base_status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Relationships
	Venue *Venue `json:"venue,omitempty" gorm:"foreignKey:VenueID;constraint:OnDelete:CASCADE;"`
}

// TableName sets the table name for Venue
func (Venue) TableName() string {
	return "venues"
}

// TableName sets the table name for Seat
func (Seat) TableName() string {
	return "seats"
}

// IsActive reports whether the seat participates in availability at all
func (s *Seat) IsActive() bool {
	return s.BaseStatus == BaseStatusAvailable
}

// SeatResponse for API responses
type SeatResponse struct {
	ID         string  `json:"id"`
	VenueID    string  `json:"venue_id"`
	Row        string  `json:"row"`
	Column     int     `json:"column"`
	SeatType   string  `json:"seat_type"`
	Price      float64 `json:"price"`
	BaseStatus string  `json:"base_status"`
}

// ToResponse converts a Seat to its API shape
func (s *Seat) ToResponse() SeatResponse {
	return SeatResponse{
		ID:         s.ID.String(),
		VenueID:    s.VenueID.String(),
		Row:        s.Row,
		Column:     s.Column,
		SeatType:   s.SeatType,
		Price:      s.Price,
		BaseStatus: s.BaseStatus,
	}
}

// UpdateBaseStatusRequest is the operator request to take a seat in or out of service
type UpdateBaseStatusRequest struct {
	BaseStatus string `json:"base_status" binding:"required,oneof=AVAILABLE MAINTENANCE DISABLED"`
}
