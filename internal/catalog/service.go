package catalog

import (
	"context"
	"errors"
	"fmt"

	"seatly/internal/shared/constants"
	"seatly/pkg/cache"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrVenueUnknown is returned for queries against a venue the catalog has no record of
var ErrVenueUnknown = errors.New("venue unknown")

// ErrSeatUnknown is returned for queries against a seat the catalog has no record of
var ErrSeatUnknown = errors.New("seat unknown")

// Service is the read surface the reservation engine consumes, plus the one
// operator write the engine is allowed to observe: the seat base status.
type Service interface {
	GetVenue(ctx context.Context, venueID string) (*Venue, error)
	GetSeats(ctx context.Context, venueID string) ([]Seat, error)
	GetSeat(ctx context.Context, venueID, seatID string) (*Seat, error)
	ActiveSeatIDs(ctx context.Context, venueID uuid.UUID) ([]uuid.UUID, error)
	VerifySeatsBookable(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID) error
	PriceSeats(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID) (float64, error)
	UpdateSeatBaseStatus(ctx context.Context, venueID, seatID string, req UpdateBaseStatusRequest) (*Seat, error)

	// SetCacheService attaches the snapshot cache used for invalidation on
	// base-status changes; the service works without one.
	SetCacheService(cacheService cache.Service)
}

type service struct {
	repo         Repository
	cacheService cache.Service
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) SetCacheService(cacheService cache.Service) {
	s.cacheService = cacheService
}

func (s *service) GetVenue(ctx context.Context, venueID string) (*Venue, error) {
	id, err := uuid.Parse(venueID)
	if err != nil {
		return nil, fmt.Errorf("invalid venue ID: %w", err)
	}

	venue, err := s.repo.GetVenueByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVenueUnknown
		}
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}
	return venue, nil
}

func (s *service) GetSeats(ctx context.Context, venueID string) ([]Seat, error) {
	venue, err := s.GetVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetSeatsByVenueID(ctx, venue.ID)
}

func (s *service) GetSeat(ctx context.Context, venueID, seatID string) (*Seat, error) {
	vid, err := uuid.Parse(venueID)
	if err != nil {
		return nil, fmt.Errorf("invalid venue ID: %w", err)
	}
	sid, err := uuid.Parse(seatID)
	if err != nil {
		return nil, fmt.Errorf("invalid seat ID: %w", err)
	}

	seat, err := s.repo.GetSeatByID(ctx, sid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSeatUnknown
		}
		return nil, fmt.Errorf("failed to get seat: %w", err)
	}
	if seat.VenueID != vid {
		return nil, ErrSeatUnknown
	}
	return seat, nil
}

func (s *service) ActiveSeatIDs(ctx context.Context, venueID uuid.UUID) ([]uuid.UUID, error) {
	if _, err := s.repo.GetVenueByID(ctx, venueID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVenueUnknown
		}
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}
	return s.repo.GetActiveSeatIDs(ctx, venueID)
}

// VerifySeatsBookable checks that every seat exists, belongs to the venue and
// is in base status AVAILABLE. Used by admission before any lock is taken.
func (s *service) VerifySeatsBookable(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID) error {
	seats, err := s.repo.GetSeatsByIDs(ctx, seatIDs)
	if err != nil {
		return fmt.Errorf("failed to load seats: %w", err)
	}

	found := make(map[uuid.UUID]*Seat, len(seats))
	for i := range seats {
		found[seats[i].ID] = &seats[i]
	}

	for _, id := range seatIDs {
		seat, ok := found[id]
		if !ok || seat.VenueID != venueID {
			return fmt.Errorf("%w: %s", ErrSeatUnknown, id)
		}
		if !seat.IsActive() {
			return fmt.Errorf("seat %s is out of service (%s)", id, seat.BaseStatus)
		}
	}
	return nil
}

// PriceSeats totals the listed seats' prices for checkout.
func (s *service) PriceSeats(ctx context.Context, venueID uuid.UUID, seatIDs []uuid.UUID) (float64, error) {
	seats, err := s.repo.GetSeatsByIDs(ctx, seatIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load seats: %w", err)
	}

	found := make(map[uuid.UUID]*Seat, len(seats))
	for i := range seats {
		found[seats[i].ID] = &seats[i]
	}

	var total float64
	for _, id := range seatIDs {
		seat, ok := found[id]
		if !ok || seat.VenueID != venueID {
			return 0, fmt.Errorf("%w: %s", ErrSeatUnknown, id)
		}
		total += seat.Price
	}
	return total, nil
}

func (s *service) UpdateSeatBaseStatus(ctx context.Context, venueID, seatID string, req UpdateBaseStatusRequest) (*Seat, error) {
	seat, err := s.GetSeat(ctx, venueID, seatID)
	if err != nil {
		return nil, err
	}

	if seat.BaseStatus != req.BaseStatus {
		if err := s.repo.UpdateSeatBaseStatus(ctx, seat.ID, req.BaseStatus); err != nil {
			return nil, fmt.Errorf("failed to update seat base status: %w", err)
		}
		seat.BaseStatus = req.BaseStatus

		// Drop cached availability snapshots; the next query recomputes with
		// the seat in or out of the active set.
		if s.cacheService != nil {
			_ = s.cacheService.DeletePattern(ctx, constants.AvailabilityInvalidatePattern(seat.VenueID))
		}
	}

	return seat, nil
}
