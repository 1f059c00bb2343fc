package controller

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/starkville/storefront/internal/broadcast"
)

// EventsController streams transaction updates as server-sent events.
type EventsController struct {
	hub       *broadcast.Hub
	heartbeat time.Duration
	logger    zerolog.Logger
}

func NewEventsController(hub *broadcast.Hub, heartbeat time.Duration, logger zerolog.Logger) *EventsController {
	return &EventsController{hub: hub, heartbeat: heartbeat, logger: logger}
}

// Stream handles GET /events. Every transaction update is written as a
// "data: <json>" frame until the client disconnects or the hub closes.
func (h *EventsController) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The stream outlives server.write_timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error().Err(err).Msg("event stream cannot flush")
		return
	}

	var heartbeat <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case frame := <-sub.Events():
			_, err = fmt.Fprintf(w, "data: %s\n\n", frame)
		case <-heartbeat:
			_, err = io.WriteString(w, ": keep-alive\n\n")
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			h.logger.Debug().Err(err).Str("subscriber_id", sub.ID).Msg("event stream closed")
			return
		}
	}
}
