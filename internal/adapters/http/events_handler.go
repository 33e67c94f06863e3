package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/taskflow/internal/application/services"
	"github.com/taskmaster/taskflow/internal/domain/entities"
	"github.com/taskmaster/taskflow/internal/infrastructure/logger"
)

const (
	eventBuffer       = 32
	keepAliveInterval = 15 * time.Second
)

// EventsHandler streams store change events to rendering clients over SSE
type EventsHandler struct {
	taskService *services.TaskService
	logger      *logger.Logger
	keepAlive   time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(taskService *services.TaskService, logger *logger.Logger) *EventsHandler {
	return &EventsHandler{
		taskService: taskService,
		logger:      logger,
		keepAlive:   keepAliveInterval,
	}
}

// Stream writes one SSE message per change until the client disconnects.
// Slow clients drop events rather than blocking the store.
func (h *EventsHandler) Stream(c echo.Context) error {
	events := make(chan entities.ChangeEvent, eventBuffer)
	unsubscribe := h.taskService.Subscribe(func(ev entities.ChangeEvent) {
		select {
		case events <- ev:
		default:
			h.logger.Warnw("Dropping change event for slow client", "kind", ev.Kind, "remote_ip", c.RealIP())
		}
	})
	defer unsubscribe()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(res, ": connected\n\n"); err != nil {
		return nil
	}
	res.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Errorw("Encode change event failed", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
