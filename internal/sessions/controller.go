package sessions

import (
	"net/http"

	"seatly/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

// IssueSessionRequest asks for a throwaway session token
type IssueSessionRequest struct {
	CustomerID string `json:"customer_id"`
	Role       string `json:"role" binding:"omitempty,oneof=customer operator"`
}

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

func (c *Controller) IssueSession(ctx *gin.Context) {
	var req IssueSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	session, err := c.service.Issue(req.CustomerID, req.Role)
	if err != nil {
		response.Error(ctx, http.StatusInternalServerError, "Failed to issue session", err.Error())
		return
	}
	response.Success(ctx, http.StatusCreated, "Session issued successfully", session)
}
