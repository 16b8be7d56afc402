package availability

import (
	"errors"
	"net/http"

	"seatly/internal/catalog"
	"seatly/internal/shared/timeslot"
	"seatly/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// QueryAvailable handles GET /availability?venueId&date&start&end
func (c *Controller) QueryAvailable(ctx *gin.Context) {
	venueID, err := uuid.Parse(ctx.Query("venueId"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid venue id", err.Error())
		return
	}

	window, err := timeslot.New(ctx.Query("date"), ctx.Query("start"), ctx.Query("end"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid time window", err.Error())
		return
	}

	free, err := c.service.QueryAvailable(ctx.Request.Context(), venueID, window)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, catalog.ErrVenueUnknown) {
			status = http.StatusNotFound
		}
		response.Error(ctx, status, "Failed to query availability", err.Error())
		return
	}

	seatIDs := make([]string, 0, len(free))
	for _, id := range free {
		seatIDs = append(seatIDs, id.String())
	}
	response.Success(ctx, http.StatusOK, "Availability retrieved successfully", gin.H{
		"venue_id": venueID.String(),
		"date":     window.Date,
		"start":    window.StartClock(),
		"end":      window.EndClock(),
		"seat_ids": seatIDs,
	})
}
