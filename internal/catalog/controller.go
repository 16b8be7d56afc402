package catalog

import (
	"errors"
	"net/http"

	"seatly/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

func (c *Controller) GetVenue(ctx *gin.Context) {
	venue, err := c.service.GetVenue(ctx.Request.Context(), ctx.Param("venueId"))
	if err != nil {
		response.Error(ctx, statusFor(err), "Failed to get venue", err.Error())
		return
	}
	response.Success(ctx, http.StatusOK, "Venue retrieved successfully", venue)
}

func (c *Controller) GetSeats(ctx *gin.Context) {
	seats, err := c.service.GetSeats(ctx.Request.Context(), ctx.Param("venueId"))
	if err != nil {
		response.Error(ctx, statusFor(err), "Failed to get seats", err.Error())
		return
	}

	out := make([]SeatResponse, 0, len(seats))
	for i := range seats {
		out = append(out, seats[i].ToResponse())
	}
	response.Success(ctx, http.StatusOK, "Seats retrieved successfully", out)
}

func (c *Controller) GetSeat(ctx *gin.Context) {
	seat, err := c.service.GetSeat(ctx.Request.Context(), ctx.Param("venueId"), ctx.Param("seatId"))
	if err != nil {
		response.Error(ctx, statusFor(err), "Failed to get seat", err.Error())
		return
	}
	response.Success(ctx, http.StatusOK, "Seat retrieved successfully", seat.ToResponse())
}

func (c *Controller) UpdateSeatBaseStatus(ctx *gin.Context) {
	var req UpdateBaseStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	seat, err := c.service.UpdateSeatBaseStatus(ctx.Request.Context(), ctx.Param("venueId"), ctx.Param("seatId"), req)
	if err != nil {
		response.Error(ctx, statusFor(err), "Failed to update seat base status", err.Error())
		return
	}
	response.Success(ctx, http.StatusOK, "Seat base status updated successfully", seat.ToResponse())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrVenueUnknown), errors.Is(err, ErrSeatUnknown):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
