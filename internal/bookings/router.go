package bookings

import (
	"seatly/internal/shared/config"
	"seatly/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupBookingRoutes(rg *gin.RouterGroup, cfg *config.Config, controller *Controller) {

	// CHECKOUT STATE MACHINE

	checkout := rg.Group("/checkout")
	checkout.Use(middleware.SessionAuth(cfg))
	{
		checkout.POST("", controller.StartCheckout)                    // POST /api/v1/checkout
		checkout.POST("/:bookingId/confirm", controller.ConfirmPayment) // POST /api/v1/checkout/:bookingId/confirm
	}

	// SETTLED BOOKINGS

	bookings := rg.Group("/bookings")
	bookings.Use(middleware.SessionAuth(cfg))
	{
		bookings.GET("", controller.ListBookings)                  // GET    /api/v1/bookings
		bookings.GET("/:bookingRef", controller.GetBooking)        // GET    /api/v1/bookings/:bookingRef
		bookings.DELETE("/:bookingRef", controller.CancelBooking)  // DELETE /api/v1/bookings/:bookingRef
	}
}
