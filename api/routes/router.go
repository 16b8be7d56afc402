// api/routes/router.go
package routes

import (
	"context"
	"net/http"
	"time"

	"seatly/internal/availability"
	"seatly/internal/bookings"
	"seatly/internal/catalog"
	"seatly/internal/holds"
	"seatly/internal/notifier"
	"seatly/internal/payments"
	"seatly/internal/sessions"
	"seatly/internal/shared/clock"
	"seatly/internal/shared/config"
	"seatly/internal/shared/database"
	"seatly/pkg/cache"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Router holds all route dependencies
type Router struct {
	config    *config.Config
	db        *database.DB
	hub       *notifier.Hub
	publisher notifier.Publisher
	clock     clock.Clock
	gateway   payments.Gateway

	// Built during SetupRoutes; main needs them for the sweeper and recovery
	holdService holds.Service
	holdRepo    holds.Repository
	bookingRepo bookings.Repository
	index       *availability.Index
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, hub *notifier.Hub, clk clock.Clock, gateway payments.Gateway) *Router {
	return &Router{
		config:  cfg,
		db:      db,
		hub:     hub,
		clock:   clk,
		gateway: gateway,
	}
}

// SetPublisher attaches the delta fanout (hub + availability index +
// optional Kafka outbox). Must be called before SetupRoutes.
func (r *Router) SetPublisher(publisher notifier.Publisher) {
	r.publisher = publisher
}

// BuildIndex constructs the availability read model backed by the ledger.
// Called by main before SetupRoutes so the index can join the delta fanout.
func (r *Router) BuildIndex() *availability.Index {
	repo := availability.NewRepository(r.db.GetPostgreSQL())
	loader := func(ctx context.Context, venueID uuid.UUID, date string) ([]availability.Occupancy, error) {
		return repo.LoadOccupancy(ctx, venueID, date, r.clock.Now())
	}
	r.index = availability.NewIndex(loader, r.config.Availability.IndexMaxAge)
	return r.index
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check and basic info endpoints
	r.setupHealthRoutes(engine)

	// API routes
	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupSessionRoutes(api)
		catalogService := r.setupCatalogRoutes(api)
		r.setupAvailabilityRoutes(api, catalogService)
		r.setupHoldRoutes(api, catalogService)
		r.setupBookingRoutes(api, catalogService)
		r.setupFeedRoutes(api)
	}
}

// HoldService exposes the hold manager for the background sweeper
func (r *Router) HoldService() holds.Service {
	return r.holdService
}

// RecoveryDeps exposes the repositories startup reconciliation runs against
func (r *Router) RecoveryDeps() (bookings.Repository, holds.Repository) {
	return r.bookingRepo, r.holdRepo
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "seatly",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "seatly",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})
}

// setupSessionRoutes configures the development session issuer
func (r *Router) setupSessionRoutes(rg *gin.RouterGroup) {
	sessionService := sessions.NewService(r.config, r.clock)
	sessionController := sessions.NewController(sessionService)

	sessions.SetupSessionRoutes(rg, sessionController)
}

// setupCatalogRoutes configures the seat catalog surface
func (r *Router) setupCatalogRoutes(rg *gin.RouterGroup) catalog.Service {
	catalogRepo := catalog.NewRepository(r.db.GetPostgreSQL())
	catalogService := catalog.NewService(catalogRepo)
	if cache.IsInitialized() {
		catalogService.SetCacheService(cache.NewService(cache.Client()))
	}
	catalogController := catalog.NewController(catalogService)

	catalog.SetupCatalogRoutes(rg, r.config, catalogController)
	return catalogService
}

// setupAvailabilityRoutes configures the availability read surface
func (r *Router) setupAvailabilityRoutes(rg *gin.RouterGroup, catalogService catalog.Service) {
	var cacheService cache.Service
	if cache.IsInitialized() {
		cacheService = cache.NewService(cache.Client())
	}

	availabilityService := availability.NewService(r.index, catalogService, cacheService, r.clock, availability.Config{
		SnapshotTTL: r.config.Availability.SnapshotTTL,
	})
	availabilityController := availability.NewController(availabilityService)

	availability.SetupAvailabilityRoutes(rg, availabilityController)
}

// setupHoldRoutes configures the hold manager surface
func (r *Router) setupHoldRoutes(rg *gin.RouterGroup, catalogService catalog.Service) {
	r.holdRepo = holds.NewRepository(r.db.GetPostgreSQL())
	seatLock := holds.NewRedisSeatLock(r.db.GetRedis())

	r.holdService = holds.NewService(r.holdRepo, seatLock, catalogService, r.publisher, r.clock, holds.Config{
		TTL:         r.config.Hold.TTL,
		MaxLifetime: r.config.Hold.MaxLifetime,
		SeatLockTTL: r.config.Redis.SeatLockTTL,
	})
	holdController := holds.NewController(r.holdService)

	holds.SetupHoldRoutes(rg, r.config, holdController)
}

// setupBookingRoutes configures the checkout and ledger surface
func (r *Router) setupBookingRoutes(rg *gin.RouterGroup, catalogService catalog.Service) {
	r.bookingRepo = bookings.NewRepository(r.db.GetPostgreSQL())

	bookingService := bookings.NewService(r.bookingRepo, r.holdService, catalogService, r.gateway, r.publisher, r.clock, bookings.Config{
		ChargeTimeout: r.config.Payment.ChargeTimeout,
	})
	bookingController := bookings.NewController(bookingService)

	bookings.SetupBookingRoutes(rg, r.config, bookingController)
}

// setupFeedRoutes configures the real-time seat-status feed
func (r *Router) setupFeedRoutes(rg *gin.RouterGroup) {
	feedController := notifier.NewController(r.hub)
	notifier.SetupFeedRoutes(rg, feedController)
}
