package notifier

import (
	"io"
	"net/http"
	"time"

	"seatly/internal/shared/timeslot"
	"seatly/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	hub *Hub
}

func NewController(hub *Hub) *Controller {
	return &Controller{hub: hub}
}

// keepAliveInterval keeps intermediaries from closing an idle feed
const keepAliveInterval = 25 * time.Second

// StreamFeed streams seat-status deltas for a (venue, date) pair as
// server-sent events. A client that disconnects and reconnects must issue a
// fresh availability query first; missed deltas are not replayed.
func (c *Controller) StreamFeed(ctx *gin.Context) {
	venueID, err := uuid.Parse(ctx.Param("venueId"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid venue ID", err.Error())
		return
	}

	date := ctx.Query("date")
	if _, err := time.Parse(timeslot.DateLayout, date); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid or missing date (want YYYY-MM-DD)", err.Error())
		return
	}

	deltas, cancel := c.hub.Subscribe(venueID, date)
	defer cancel()

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")
	ctx.Writer.Header().Set("X-Accel-Buffering", "no")
	ctx.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	ctx.Stream(func(w io.Writer) bool {
		select {
		case delta, ok := <-deltas:
			if !ok {
				// dropped for lagging; the client reconnects and reconciles
				return false
			}
			ctx.SSEvent("delta", delta)
			return true
		case <-keepAlive.C:
			ctx.SSEvent("keep-alive", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-ctx.Request.Context().Done():
			return false
		}
	})
}
