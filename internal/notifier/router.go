package notifier

import (
	"github.com/gin-gonic/gin"
)

func SetupFeedRoutes(rg *gin.RouterGroup, controller *Controller) {
	venues := rg.Group("/venues")
	{
		venues.GET("/:venueId/feed", controller.StreamFeed) // GET /api/v1/venues/:venueId/feed?date=YYYY-MM-DD
	}
}
