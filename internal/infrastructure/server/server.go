package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpHandlers "github.com/taskmaster/taskflow/internal/adapters/http"
	"github.com/taskmaster/taskflow/internal/adapters/notify"
	"github.com/taskmaster/taskflow/internal/application/services"
	"github.com/taskmaster/taskflow/internal/domain/entities"
	"github.com/taskmaster/taskflow/internal/infrastructure/config"
	"github.com/taskmaster/taskflow/internal/infrastructure/logger"
	"github.com/taskmaster/taskflow/internal/infrastructure/metrics"
)

// Server represents the HTTP server
type Server struct {
	echo      *echo.Echo
	config    *config.Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
	tasks     *services.TaskService
	reminders *services.ReminderService
}

// CustomValidator wraps the validator
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates structs
func (cv *CustomValidator) Validate(i interface{}) error {
	return services.TranslateValidation(cv.validator.Struct(i))
}

// New creates a new server instance. reminders is nil when the scheduler is
// disabled; m is nil when metrics are disabled.
func New(cfg *config.Config, tasks *services.TaskService, reminders *services.ReminderService, banner *notify.Banner, m *metrics.Metrics, appLogger *logger.Logger) *Server {
	e := echo.New()

	// Set custom validator
	e.Validator = &CustomValidator{validator: validator.New()}

	// Configure Echo
	e.HideBanner = true
	e.HidePort = true

	appLogger = appLogger.WithComponent("http")

	// Custom error handler
	e.HTTPErrorHandler = customErrorHandler(appLogger)

	// Initialize handlers
	taskHandler := httpHandlers.NewTaskHandler(tasks, appLogger)
	reminderHandler := httpHandlers.NewReminderHandler(reminders, banner)
	eventsHandler := httpHandlers.NewEventsHandler(tasks, appLogger)

	server := &Server{
		echo:      e,
		config:    cfg,
		logger:    appLogger,
		metrics:   m,
		tasks:     tasks,
		reminders: reminders,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup metrics
	if cfg.Metrics.Enabled && m != nil {
		server.setupMetrics()
	}

	// Setup routes
	server.setupRoutes(taskHandler, reminderHandler, eventsHandler)

	return server
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(taskHandler *httpHandlers.TaskHandler, reminderHandler *httpHandlers.ReminderHandler, eventsHandler *httpHandlers.EventsHandler) {
	// Health check routes
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/health/detailed", s.detailedHealthCheck)
	s.echo.GET("/ready", s.readinessCheck)

	// API v1 routes
	v1 := s.echo.Group("/api/v1")

	taskGroup := v1.Group("/tasks")
	taskGroup.GET("", taskHandler.ListTasks)
	taskGroup.POST("", taskHandler.CreateTask)
	taskGroup.PUT("", taskHandler.ReplaceTasks)
	taskGroup.POST("/clear-completed", taskHandler.ClearCompleted)
	taskGroup.GET("/due-soon", taskHandler.DueSoon)
	taskGroup.GET("/starting-soon", taskHandler.StartingSoon)
	taskGroup.GET("/overdue", taskHandler.Overdue)
	taskGroup.GET("/:id", taskHandler.GetTask)
	taskGroup.PATCH("/:id", taskHandler.UpdateTask)
	taskGroup.DELETE("/:id", taskHandler.DeleteTask)
	taskGroup.POST("/:id/toggle-complete", taskHandler.ToggleComplete)
	taskGroup.POST("/:id/toggle-priority", taskHandler.TogglePriority)

	v1.GET("/stats", taskHandler.GetStats)
	v1.GET("/tip", taskHandler.GetTip)
	v1.GET("/events", eventsHandler.Stream)

	v1.GET("/reminders", reminderHandler.ListReminders)
	v1.GET("/banner", reminderHandler.GetBanner)
	v1.DELETE("/banner", reminderHandler.DismissBanner)
}

// setupMetrics exposes the registry and records request metrics
func (s *Server) setupMetrics() {
	s.echo.Use(s.metricsMiddleware())

	metricsHandler := promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})
	s.echo.GET("/metrics", echo.WrapHandler(metricsHandler))
}

// Health check handlers
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) detailedHealthCheck(c echo.Context) error {
	status := "ok"
	checks := make(map[string]interface{})

	// Storage health check
	storage := map[string]interface{}{
		"status": "ok",
		"driver": s.config.Storage.Driver,
	}
	if err := s.tasks.Ping(c.Request().Context()); err != nil {
		status = "error"
		storage["status"] = "error"
		storage["error"] = err.Error()
	}
	if err := s.tasks.LastPersistenceError(); err != nil {
		// the store keeps working in memory
		storage["last_write_error"] = err.Error()
		if status == "ok" {
			status = "degraded"
		}
	}
	checks["storage"] = storage

	reminders := map[string]interface{}{"enabled": s.reminders != nil}
	if s.reminders != nil {
		reminders["pending"] = len(s.reminders.Pending())
	}
	checks["reminders"] = reminders

	response := map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"checks": checks,
		"version": map[string]string{
			"app": s.config.App.Version,
			"go":  runtime.Version(),
		},
	}

	if status == "error" {
		return c.JSON(http.StatusServiceUnavailable, response)
	}
	return c.JSON(http.StatusOK, response)
}

func (s *Server) readinessCheck(c echo.Context) error {
	if err := s.tasks.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "storage_not_ready",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ServeHTTP lets the server be driven directly, as in tests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Listen binds address without serving, so the caller learns the real
// address before Start. A port of 0 picks a free port.
func (s *Server) Listen(address string) (net.Addr, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	s.echo.Listener = ln
	return ln.Addr(), nil
}

// Start starts the HTTP server and blocks until it stops. It serves on the
// listener from Listen when there is one.
func (s *Server) Start(address string) error {
	if s.echo.Listener != nil {
		address = s.echo.Listener.Addr().String()
	}
	s.logger.Infow("Starting server", "address", address)

	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.IdleTimeout = s.config.Server.IdleTimeout

	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("Shutting down server")
	return s.echo.Shutdown(ctx)
}

// customErrorHandler handles HTTP errors
func customErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var (
			code = http.StatusInternalServerError
			msg  interface{}
		)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = he.Message
			if he.Internal != nil {
				err = fmt.Errorf("%v, %v", err, he.Internal)
			}
		} else if entities.IsValidationError(err) {
			code = http.StatusBadRequest
			msg = err.Error()
		} else {
			msg = http.StatusText(code)
		}

		if s, ok := msg.(string); ok {
			msg = httpHandlers.MessageResponse{Message: s}
		}

		if code == http.StatusInternalServerError {
			logger.Errorw("Internal server error", "error", err, "path", c.Request().URL.Path)
		}

		// Send response
		if !c.Response().Committed {
			if c.Request().Method == http.MethodHead {
				err = c.NoContent(code)
			} else {
				err = c.JSON(code, msg)
			}
			if err != nil {
				logger.Errorw("Error sending response", "error", err)
			}
		}
	}
}

// skipStreaming excludes long-lived responses from per-request limits
func skipStreaming(c echo.Context) bool {
	return c.Path() == "/api/v1/events"
}
