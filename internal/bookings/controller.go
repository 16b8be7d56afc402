package bookings

import (
	"errors"
	"net/http"

	"seatly/internal/holds"
	"seatly/internal/payments"
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

func (c *Controller) StartCheckout(ctx *gin.Context) {
	var req StartCheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	if req.HoldToken != "" {
		c.resumeCheckout(ctx, req)
		return
	}
	c.checkoutWithSeats(ctx, req)
}

// resumeCheckout continues a checkout for a hold the client already acquired.
func (c *Controller) resumeCheckout(ctx *gin.Context, req StartCheckoutRequest) {
	holdToken, err := uuid.Parse(req.HoldToken)
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid hold token", err.Error())
		return
	}

	booking, err := c.service.StartCheckout(ctx.Request.Context(), middleware.SessionID(ctx), middleware.CustomerID(ctx), holdToken)
	if err != nil {
		response.Error(ctx, statusFor(err), "Failed to start checkout", err.Error())
		return
	}
	response.Success(ctx, http.StatusCreated, "Checkout started successfully", booking.ToResponse())
}

// checkoutWithSeats admits the seat set and opens the draft in one request.
func (c *Controller) checkoutWithSeats(ctx *gin.Context, req StartCheckoutRequest) {
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

	booking, hold, err := c.service.StartCheckoutWithSeats(ctx.Request.Context(), middleware.SessionID(ctx), middleware.CustomerID(ctx), venueID, seatIDs, window)
	if err != nil {
		if conflict, ok := holds.AsConflict(err); ok {
			response.Conflict(ctx, "Some seats are unavailable for the requested window", conflict.SeatIDStrings())
			return
		}
		response.Error(ctx, statusFor(err), "Failed to start checkout", err.Error())
		return
	}
	response.Success(ctx, http.StatusCreated, "Checkout started successfully", CheckoutResponse{
		Booking:       booking.ToResponse(),
		HoldToken:     hold.ID.String(),
		HoldExpiresAt: hold.ExpiresAt,
	})
}

func (c *Controller) ConfirmPayment(ctx *gin.Context) {
	bookingID, err := uuid.Parse(ctx.Param("bookingId"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid booking id", err.Error())
		return
	}

	var req ConfirmPaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	booking, err := c.service.ConfirmPayment(ctx.Request.Context(), middleware.SessionID(ctx), middleware.CustomerID(ctx), bookingID, req.PaymentMethod)
	if err != nil {
		response.Error(ctx, statusFor(err), "Failed to confirm payment", err.Error())
		return
	}
	response.Success(ctx, http.StatusOK, "Booking confirmed successfully", booking.ToResponse())
}

func (c *Controller) CancelBooking(ctx *gin.Context) {
	if err := c.service.CancelBooking(ctx.Request.Context(), middleware.CustomerID(ctx), ctx.Param("bookingRef")); err != nil {
		response.Error(ctx, statusFor(err), "Failed to cancel booking", err.Error())
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *Controller) GetBooking(ctx *gin.Context) {
	booking, err := c.service.GetBooking(ctx.Request.Context(), middleware.CustomerID(ctx), ctx.Param("bookingRef"))
	if err != nil {
		response.Error(ctx, statusFor(err), "Failed to get booking", err.Error())
		return
	}
	response.Success(ctx, http.StatusOK, "Booking retrieved successfully", booking.ToResponse())
}

func (c *Controller) ListBookings(ctx *gin.Context) {
	list, err := c.service.ListBookings(ctx.Request.Context(), middleware.CustomerID(ctx))
	if err != nil {
		response.Error(ctx, statusFor(err), "Failed to list bookings", err.Error())
		return
	}

	out := make([]BookingResponse, 0, len(list))
	for i := range list {
		out = append(out, list[i].ToResponse())
	}
	response.Success(ctx, http.StatusOK, "Bookings retrieved successfully", out)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBookingNotFound), errors.Is(err, holds.ErrHoldNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBookingNotOwned), errors.Is(err, holds.ErrHoldNotOwned):
		return http.StatusForbidden
	case errors.Is(err, ErrBookingNotPending), errors.Is(err, ErrBookingNotConfirmed),
		errors.Is(err, ErrCheckoutExpired):
		return http.StatusConflict
	case errors.Is(err, payments.ErrPaymentDeclined), errors.Is(err, payments.ErrPaymentTimeout):
		return http.StatusPaymentRequired
	case errors.Is(err, holds.ErrSeatLockBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
