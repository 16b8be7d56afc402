package availability

import (
	"github.com/gin-gonic/gin"
)

func SetupAvailabilityRoutes(rg *gin.RouterGroup, controller *Controller) {

	// PUBLIC READ SURFACE

	rg.GET("/availability", controller.QueryAvailable) // GET /api/v1/availability?venueId&date&start&end
}
