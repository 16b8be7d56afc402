package availability

import (
	"context"
	"time"

	"seatly/internal/shared/clock"
	"seatly/internal/shared/constants"
	"seatly/internal/shared/timeslot"
	"seatly/pkg/cache"
	"seatly/pkg/logger"

	"github.com/google/uuid"
)

// ActiveSeatSource is the slice of the catalog the index subtracts from.
type ActiveSeatSource interface {
	ActiveSeatIDs(ctx context.Context, venueID uuid.UUID) ([]uuid.UUID, error)
}

// Config carries the read-surface knobs.
type Config struct {
	// SnapshotTTL bounds how stale a cached availability answer may be
	SnapshotTTL time.Duration
}

// Service answers availability queries: catalog active seats minus seats
// covered by a confirmed booking or active hold overlapping the window.
type Service interface {
	QueryAvailable(ctx context.Context, venueID uuid.UUID, window timeslot.Window) ([]uuid.UUID, error)
	IsFree(ctx context.Context, venueID, seatID uuid.UUID, window timeslot.Window) (bool, error)
}

type service struct {
	index        *Index
	catalog      ActiveSeatSource
	cacheService cache.Service
	clock        clock.Clock
	cfg          Config
	logger       *logger.Logger
}

func NewService(index *Index, catalog ActiveSeatSource, cacheService cache.Service, clk clock.Clock, cfg Config) Service {
	s := &service{
		index:        index,
		catalog:      catalog,
		cacheService: cacheService,
		clock:        clk,
		cfg:          cfg,
		logger:       logger.GetDefault(),
	}

	// Every delta drops the cached snapshots for its day; the TTL is only
	// the staleness bound for transitions this instance never saw.
	if cacheService != nil {
		index.OnDayChange = func(venueID uuid.UUID, date string) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := cacheService.DeletePattern(ctx, constants.AvailabilityDayPattern(venueID, date)); err != nil {
				s.logger.WithError(err).Warn("Failed to invalidate availability snapshots")
			}
		}
	}
	return s
}

func (s *service) QueryAvailable(ctx context.Context, venueID uuid.UUID, window timeslot.Window) ([]uuid.UUID, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	cacheKey := snapshotKey(venueID, window)
	if s.cacheService != nil {
		var cached []uuid.UUID
		if err := s.cacheService.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	free, err := s.compute(ctx, venueID, window)
	if err != nil {
		return nil, err
	}

	if s.cacheService != nil {
		if err := s.cacheService.Set(ctx, cacheKey, free, s.cfg.SnapshotTTL); err != nil {
			s.logger.WithError(err).Warn("Failed to cache availability snapshot")
		}
	}
	return free, nil
}

func (s *service) IsFree(ctx context.Context, venueID, seatID uuid.UUID, window timeslot.Window) (bool, error) {
	if err := window.Validate(); err != nil {
		return false, err
	}

	// Point queries skip the snapshot cache and read the index directly
	occupied, err := s.index.SeatOccupied(ctx, venueID, seatID, window)
	if err != nil {
		return false, err
	}
	if occupied {
		return false, nil
	}

	active, err := s.catalog.ActiveSeatIDs(ctx, venueID)
	if err != nil {
		return false, err
	}
	for _, id := range active {
		if id == seatID {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) compute(ctx context.Context, venueID uuid.UUID, window timeslot.Window) ([]uuid.UUID, error) {
	active, err := s.catalog.ActiveSeatIDs(ctx, venueID)
	if err != nil {
		return nil, err
	}

	occupied, err := s.index.OccupiedSeats(ctx, venueID, window)
	if err != nil {
		return nil, err
	}

	free := make([]uuid.UUID, 0, len(active))
	for _, id := range active {
		if _, taken := occupied[id]; !taken {
			free = append(free, id)
		}
	}
	return free, nil
}

func snapshotKey(venueID uuid.UUID, window timeslot.Window) string {
	return constants.AvailabilitySnapshotKey(venueID, window.Date, window.Start, window.End)
}
