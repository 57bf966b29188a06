package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dusk-indust/reportgen/internal/logger"
	"github.com/dusk-indust/reportgen/internal/orchestrator"
)

// Subscriber is the part of orchestrator.Events the stream needs.
type Subscriber interface {
	Subscribe(buffer int) (<-chan orchestrator.Event, func())
}

// Compile-time check.
var _ Subscriber = (*orchestrator.Events)(nil)

// EventsHandler streams controller events as server-sent events.
type EventsHandler struct {
	events    Subscriber
	heartbeat time.Duration
	log       *logger.Logger
}

// NewEventsHandler creates a stream handler. A heartbeat comment is written
// every heartbeat so idle proxies keep the connection open.
func NewEventsHandler(events Subscriber, heartbeat time.Duration, log *logger.Logger) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &EventsHandler{
		events:    events,
		heartbeat: heartbeat,
		log:       logger.OrNop(log).With("component", "sse"),
	}
}

// Stream handles GET /v1/events. The optional subject and variant query
// parameters restrict the stream to one subject or one job.
func (h *EventsHandler) Stream(c *gin.Context) {
	subject := c.Query("subject")
	variant := c.Query("variant")

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ch, unsubscribe := h.events.Subscribe(128)
	defer unsubscribe()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			w.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if subject != "" && ev.SubjectID != subject {
				continue
			}
			if variant != "" && ev.Variant != variant {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn("encode event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return
			}
			w.Flush()
		}
	}
}
