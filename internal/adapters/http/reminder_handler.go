package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/taskflow/internal/adapters/notify"
	"github.com/taskmaster/taskflow/internal/application/services"
	"github.com/taskmaster/taskflow/internal/domain/entities"
	"github.com/taskmaster/taskflow/internal/ports"
)

// ReminderHandler exposes scheduler state and the in-app banner
type ReminderHandler struct {
	reminders *services.ReminderService
	banner    *notify.Banner
}

// NewReminderHandler creates a reminder handler. reminders is nil when the
// scheduler is disabled.
func NewReminderHandler(reminders *services.ReminderService, banner *notify.Banner) *ReminderHandler {
	return &ReminderHandler{reminders: reminders, banner: banner}
}

// ListReminders returns the armed reminder keys
func (h *ReminderHandler) ListReminders(c echo.Context) error {
	var keys []entities.ReminderKey
	if h.reminders != nil {
		keys = h.reminders.Pending()
	}
	return c.JSON(http.StatusOK, newList(keys))
}

// GetBanner returns the visible banner, or 204 when there is none
func (h *ReminderHandler) GetBanner(c echo.Context) error {
	n, ok := h.banner.Current()
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, ports.BannerResponse{
		Message:   n.Message,
		Icon:      n.Icon,
		ShownAt:   entities.NewTimestamp(n.ShownAt).String(),
		ExpiresAt: entities.NewTimestamp(n.ExpiresAt).String(),
	})
}

// DismissBanner closes the visible banner
func (h *ReminderHandler) DismissBanner(c echo.Context) error {
	h.banner.Dismiss()
	return c.NoContent(http.StatusNoContent)
}
