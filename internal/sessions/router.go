package sessions

import (
	"github.com/gin-gonic/gin"
)

func SetupSessionRoutes(rg *gin.RouterGroup, controller *Controller) {
	rg.POST("/sessions", controller.IssueSession) // POST /api/v1/sessions
}
