package holds

import (
	"errors"
	"net/http"

	"seatly/internal/shared/middleware"
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

func (c *Controller) AcquireHold(ctx *gin.Context) {
	var req AcquireHoldRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	venueID, err := uuid.Parse(req.VenueID)
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid venue id", err.Error())
		return
	}

	seatIDs := make([]uuid.UUID, 0, len(req.SeatIDs))
	for _, raw := range req.SeatIDs {
		seatID, err := uuid.Parse(raw)
		if err != nil {
			response.Error(ctx, http.StatusBadRequest, "Invalid seat id", err.Error())
			return
		}
		seatIDs = append(seatIDs, seatID)
	}

	window, err := timeslot.New(req.Date, req.Start, req.End)
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid time window", err.Error())
		return
	}

	hold, err := c.service.Acquire(ctx.Request.Context(), middleware.SessionID(ctx), venueID, seatIDs, window)
	if err != nil {
		if conflict, ok := AsConflict(err); ok {
			response.Conflict(ctx, "Some seats are unavailable for the requested window", conflict.SeatIDStrings())
			return
		}
		response.Error(ctx, statusFor(err), "Failed to acquire hold", err.Error())
		return
	}
	response.Success(ctx, http.StatusCreated, "Hold acquired successfully", hold.ToResponse())
}

func (c *Controller) RenewHold(ctx *gin.Context) {
	token, err := uuid.Parse(ctx.Param("holdToken"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid hold token", err.Error())
		return
	}

	hold, err := c.service.Renew(ctx.Request.Context(), middleware.SessionID(ctx), token)
	if err != nil {
		response.Error(ctx, statusFor(err), "Failed to renew hold", err.Error())
		return
	}
	response.Success(ctx, http.StatusOK, "Hold renewed successfully", hold.ToResponse())
}

func (c *Controller) ReleaseHold(ctx *gin.Context) {
	token, err := uuid.Parse(ctx.Param("holdToken"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid hold token", err.Error())
		return
	}

	if err := c.service.Release(ctx.Request.Context(), middleware.SessionID(ctx), token); err != nil {
		response.Error(ctx, statusFor(err), "Failed to release hold", err.Error())
		return
	}
	response.Success(ctx, http.StatusOK, "Hold released successfully", nil)
}

func (c *Controller) GetHold(ctx *gin.Context) {
	token, err := uuid.Parse(ctx.Param("holdToken"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid hold token", err.Error())
		return
	}

	hold, err := c.service.Get(ctx.Request.Context(), middleware.SessionID(ctx), token)
	if err != nil {
		response.Error(ctx, statusFor(err), "Failed to get hold", err.Error())
		return
	}
	response.Success(ctx, http.StatusOK, "Hold retrieved successfully", hold.ToResponse())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrHoldNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrHoldNotOwned):
		return http.StatusForbidden
	case errors.Is(err, ErrHoldExpired), errors.Is(err, ErrHoldNotActive), errors.Is(err, ErrHoldLifetimeExceeded):
		return http.StatusConflict
	case errors.Is(err, ErrSeatLockBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
