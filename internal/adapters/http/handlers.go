package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/taskflow/internal/application/services"
	"github.com/taskmaster/taskflow/internal/domain/entities"
	"github.com/taskmaster/taskflow/internal/infrastructure/logger"
	"github.com/taskmaster/taskflow/internal/ports"
)

// TaskHandler handles task-related requests
type TaskHandler struct {
	taskService *services.TaskService
	logger      *logger.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService *services.TaskService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		logger:      logger,
	}
}

// ListTasks returns tasks in display order, or insertion order with ?view=raw
func (h *TaskHandler) ListTasks(c echo.Context) error {
	if c.QueryParam("view") == "raw" {
		return c.JSON(http.StatusOK, newList(h.taskService.List()))
	}
	return c.JSON(http.StatusOK, newList(h.taskService.Sorted()))
}

// CreateTask handles task creation
func (h *TaskHandler) CreateTask(c echo.Context) error {
	var req ports.CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	task, err := h.taskService.Add(c.Request().Context(), req)
	if err != nil {
		if entities.IsValidationError(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logger.Errorw("Create task failed", "error", err)
		return err
	}

	return c.JSON(http.StatusCreated, task)
}

// GetTask handles getting a task by ID
func (h *TaskHandler) GetTask(c echo.Context) error {
	task, ok := h.taskService.Get(c.Param("id"))
	if !ok {
		return taskNotFound()
	}
	return c.JSON(http.StatusOK, task)
}

// UpdateTask applies a partial update
func (h *TaskHandler) UpdateTask(c echo.Context) error {
	var req ports.UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if req.Empty() {
		return echo.NewHTTPError(http.StatusBadRequest, "No fields to update")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id := c.Param("id")
	task, found, err := h.taskService.Update(c.Request().Context(), id, req)
	if !found {
		return taskNotFound()
	}
	if err != nil {
		if entities.IsValidationError(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logger.Errorw("Update task failed", "error", err, "task_id", id)
		return err
	}

	return c.JSON(http.StatusOK, task)
}

// DeleteTask handles task deletion
func (h *TaskHandler) DeleteTask(c echo.Context) error {
	if !h.taskService.Delete(c.Request().Context(), c.Param("id")) {
		return taskNotFound()
	}
	return c.NoContent(http.StatusNoContent)
}

// ToggleComplete flips a task's completed flag
func (h *TaskHandler) ToggleComplete(c echo.Context) error {
	task, ok := h.taskService.ToggleComplete(c.Request().Context(), c.Param("id"))
	if !ok {
		return taskNotFound()
	}
	return c.JSON(http.StatusOK, task)
}

// TogglePriority flips a task between normal and important
func (h *TaskHandler) TogglePriority(c echo.Context) error {
	task, ok := h.taskService.TogglePriority(c.Request().Context(), c.Param("id"))
	if !ok {
		return taskNotFound()
	}
	return c.JSON(http.StatusOK, task)
}

// ClearCompleted removes all completed tasks. Nothing to clear is not an error.
func (h *TaskHandler) ClearCompleted(c echo.Context) error {
	n := h.taskService.ClearCompleted(c.Request().Context())
	return c.JSON(http.StatusOK, ports.ClearCompletedResponse{
		Cleared: n,
		Message: services.ClearedMessage(n),
	})
}

// ReplaceTasks swaps the whole collection for the request body. Nothing
// changes unless every task is valid and ids are unique.
func (h *TaskHandler) ReplaceTasks(c echo.Context) error {
	var tasks []entities.Task
	if err := c.Bind(&tasks); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if _, err := h.taskService.Replace(c.Request().Context(), tasks); err != nil {
		if entities.IsValidationError(err) || errors.Is(err, entities.ErrDuplicateTask) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logger.Errorw("Replace tasks failed", "error", err)
		return err
	}

	return c.JSON(http.StatusOK, newList(h.taskService.List()))
}

// GetStats returns summary statistics
func (h *TaskHandler) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.taskService.Stats())
}

// DueSoon lists incomplete tasks due within the reminder window
func (h *TaskHandler) DueSoon(c echo.Context) error {
	return c.JSON(http.StatusOK, newList(h.taskService.DueSoon(h.taskService.Now())))
}

// StartingSoon lists incomplete tasks starting within the reminder window
func (h *TaskHandler) StartingSoon(c echo.Context) error {
	return c.JSON(http.StatusOK, newList(h.taskService.StartingSoon(h.taskService.Now())))
}

// Overdue lists incomplete tasks past their due time
func (h *TaskHandler) Overdue(c echo.Context) error {
	return c.JSON(http.StatusOK, newList(h.taskService.Overdue(h.taskService.Now())))
}

// GetTip returns a random productivity tip
func (h *TaskHandler) GetTip(c echo.Context) error {
	return c.JSON(http.StatusOK, TipResponse{Tip: services.RandomTip()})
}

func taskNotFound() error {
	return echo.NewHTTPError(http.StatusNotFound, entities.ErrTaskNotFound.Error())
}

// Request/Response types

type MessageResponse struct {
	Message string `json:"message"`
}

type TipResponse struct {
	Tip string `json:"tip"`
}

// ListResponse always encodes Data as an array, never null
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

func newList[T any](data []T) ListResponse[T] {
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{Data: data, Total: len(data)}
}
