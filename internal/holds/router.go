package holds

import (
	"seatly/internal/shared/config"
	"seatly/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupHoldRoutes(rg *gin.RouterGroup, cfg *config.Config, controller *Controller) {

	// SESSION-OWNED HOLD LIFECYCLE

	holds := rg.Group("/holds")
	holds.Use(middleware.SessionAuth(cfg))
	{
		holds.POST("", controller.AcquireHold)                 // POST   /api/v1/holds
		holds.GET("/:holdToken", controller.GetHold)           // GET    /api/v1/holds/:holdToken
		holds.POST("/:holdToken/renew", controller.RenewHold)  // POST   /api/v1/holds/:holdToken/renew
		holds.DELETE("/:holdToken", controller.ReleaseHold)    // DELETE /api/v1/holds/:holdToken
	}
}
