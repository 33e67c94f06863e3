package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskmaster/taskflow/internal/adapters/apiclient"
	"github.com/taskmaster/taskflow/internal/adapters/repository"
	"github.com/taskmaster/taskflow/internal/application/services"
	"github.com/taskmaster/taskflow/internal/infrastructure/config"
	"github.com/taskmaster/taskflow/internal/infrastructure/logger"
	"github.com/taskmaster/taskflow/internal/infrastructure/metrics"
	"github.com/taskmaster/taskflow/internal/ports"
)

// Build information, set with -ldflags at release time.
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "development"
)

// NewRootCommand builds the taskflow command tree. Each call gets its own
// viper instance so flags never leak between invocations.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "taskflow",
		Short: "Personal task tracker with reminders",
		Long: `TaskFlow keeps a personal task list on this machine, flags important work,
and reminds you shortly before tasks start or fall due.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("data-dir", "", "directory holding the task data")
	flags.String("storage", "", "storage driver (file, sqlite, postgres, redis)")
	flags.String("dsn", "", "database connection string for sql storage")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	_ = v.BindPFlag("storage.path", flags.Lookup("data-dir"))
	_ = v.BindPFlag("storage.driver", flags.Lookup("storage"))
	_ = v.BindPFlag("storage.dsn", flags.Lookup("dsn"))
	_ = v.BindPFlag("logger.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(
		NewServeCommand(v),
		NewAddCommand(v),
		NewListCommand(v),
		NewDoneCommand(v),
		NewPriorityCommand(v),
		NewEditCommand(v),
		NewDeleteCommand(v),
		NewClearCompletedCommand(v),
		NewStatsCommand(v),
		NewDueCommand(v),
		NewTipCommand(),
		NewExportCommand(v),
		NewImportCommand(v),
		NewMigrateCommand(v),
		NewVersionCommand(),
	)

	return rootCmd
}

// app holds the collaborators one command invocation needs. When a server
// is running, remote is set and storage and service are nil.
type app struct {
	cfg     *config.Config
	logger  *logger.Logger
	storage ports.KeyValueStore
	metrics *metrics.Metrics
	service *services.TaskService
	remote  *apiclient.Client
	tasks   taskStore
}

// newApp loads configuration and either finds a running server or opens
// storage and loads the task store. Only the server may own the store while
// it runs. Short-lived commands log at warn unless configured otherwise, so
// their output stays readable.
func newApp(ctx context.Context, v *viper.Viper, longRunning bool) (*app, error) {
	var adjust []func(*viper.Viper)
	if !longRunning {
		adjust = append(adjust, func(v *viper.Viper) {
			v.SetDefault("logger.level", "warn")
		})
	}

	cfg, err := config.LoadWith(v, adjust...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if !longRunning {
		if client := apiclient.Discover(ctx, cfg.Storage.Path); client != nil {
			appLogger.Debugw("Using running server", "url", client.URL())
			return &app{cfg: cfg, logger: appLogger, remote: client, tasks: client}, nil
		}
	}

	storage, err := repository.Open(cfg.Storage)
	if err != nil {
		_ = appLogger.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	var m *metrics.Metrics
	if longRunning && cfg.Metrics.Enabled {
		m = metrics.New()
	}

	svc := services.NewTaskService(ctx, storage, appLogger,
		services.WithMetrics(m),
		services.WithReminderWindow(cfg.Reminders.Window),
	)

	return &app{
		cfg:     cfg,
		logger:  appLogger,
		storage: storage,
		metrics: m,
		service: svc,
		tasks:   localStore{svc: svc},
	}, nil
}

func (a *app) Close() {
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warnw("Failed to close storage", "error", err)
		}
	}
	_ = a.logger.Close()
}

func (a *app) now() time.Time {
	if a.service != nil {
		return a.service.Now()
	}
	return time.Now()
}

// persistenceError reports the last failed local write. A server reports
// its own write failures.
func (a *app) persistenceError() error {
	if a.service == nil {
		return nil
	}
	return a.service.LastPersistenceError()
}

// resolve turns a full id or unique prefix into a task id
func (a *app) resolve(ctx context.Context, ref string) (string, error) {
	tasks, err := a.tasks.List(ctx)
	if err != nil {
		return "", err
	}
	return resolveID(tasks, ref)
}

// runWithApp wraps a command body with app setup and teardown.
func runWithApp(v *viper.Viper, fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), v, false)
		if err != nil {
			return err
		}
		defer a.Close()

		return fn(cmd, args, a)
	}
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print TaskFlow version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "TaskFlow %s\n", Version)
			fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
			fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
		},
	}
}
