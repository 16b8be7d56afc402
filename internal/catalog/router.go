package catalog

import (
	"seatly/internal/shared/config"
	"seatly/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupCatalogRoutes(rg *gin.RouterGroup, cfg *config.Config, controller *Controller) {

	// PUBLIC READ SURFACE

	venues := rg.Group("/venues")
	{
		venues.GET("/:venueId", controller.GetVenue)              // GET /api/v1/venues/:venueId
		venues.GET("/:venueId/seats", controller.GetSeats)        // GET /api/v1/venues/:venueId/seats
		venues.GET("/:venueId/seats/:seatId", controller.GetSeat) // GET /api/v1/venues/:venueId/seats/:seatId
	}

	// OPERATOR SEAT OPERATIONS

	operator := rg.Group("/venues")
	operator.Use(middleware.SessionAuth(cfg), middleware.RequireOperator())
	{
		operator.PATCH("/:venueId/seats/:seatId/base-status", controller.UpdateSeatBaseStatus)
	}
}
