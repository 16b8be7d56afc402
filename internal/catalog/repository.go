package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository interface defines catalog data access
type Repository interface {
	GetVenueByID(ctx context.Context, venueID uuid.UUID) (*Venue, error)
	GetSeatsByVenueID(ctx context.Context, venueID uuid.UUID) ([]Seat, error)
	GetSeatByID(ctx context.Context, seatID uuid.UUID) (*Seat, error)
	GetSeatsByIDs(ctx context.Context, seatIDs []uuid.UUID) ([]Seat, error)
	GetActiveSeatIDs(ctx context.Context, venueID uuid.UUID) ([]uuid.UUID, error)
	UpdateSeatBaseStatus(ctx context.Context, seatID uuid.UUID, baseStatus string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetVenueByID(ctx context.Context, venueID uuid.UUID) (*Venue, error) {
	var venue Venue
	if err := r.db.WithContext(ctx).First(&venue, "id = ?", venueID).Error; err != nil {
		return nil, err
	}
	return &venue, nil
}

func (r *repository) GetSeatsByVenueID(ctx context.Context, venueID uuid.UUID) ([]Seat, error) {
	var seats []Seat
	err := r.db.WithContext(ctx).
		Where("venue_id = ?", venueID).
		Order("row ASC, \"column\" ASC").
		Find(&seats).Error
	return seats, err
}

func (r *repository) GetSeatByID(ctx context.Context, seatID uuid.UUID) (*Seat, error) {
	var seat Seat
	if err := r.db.WithContext(ctx).First(&seat, "id = ?", seatID).Error; err != nil {
		return nil, err
	}
	return &seat, nil
}

func (r *repository) GetSeatsByIDs(ctx context.Context, seatIDs []uuid.UUID) ([]Seat, error) {
	var seats []Seat
	err := r.db.WithContext(ctx).
		Where("id IN ?", seatIDs).
		Find(&seats).Error
	return seats, err
}

func (r *repository) GetActiveSeatIDs(ctx context.Context, venueID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&Seat{}).
		Where("venue_id = ? AND base_status = ?", venueID, BaseStatusAvailable).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) UpdateSeatBaseStatus(ctx context.Context, seatID uuid.UUID, baseStatus string) error {
	return r.db.WithContext(ctx).
		Model(&Seat{}).
		Where("id = ?", seatID).
		Update("base_status", baseStatus).Error
}
