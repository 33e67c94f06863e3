package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskmaster/taskflow/internal/adapters/apiclient"
	"github.com/taskmaster/taskflow/internal/adapters/notify"
	"github.com/taskmaster/taskflow/internal/application/services"
	"github.com/taskmaster/taskflow/internal/infrastructure/clock"
	"github.com/taskmaster/taskflow/internal/infrastructure/server"
	"github.com/taskmaster/taskflow/internal/ports"
)

// NewServeCommand creates the serve command
func NewServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the reminder scheduler and HTTP API",
		Long: `Start the long-running TaskFlow process. It owns the task store, fires
reminders as tasks approach their start or due time, and serves the JSON/SSE
API that front ends use to read and change tasks. While it runs, other
taskflow commands send their changes through it instead of opening storage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, v)
		},
	}

	cmd.Flags().Int("port", 0, "port to listen on")
	cmd.Flags().String("host", "", "address to bind")
	cmd.Flags().Bool("no-reminders", false, "disable the reminder scheduler")
	_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServer(cmd *cobra.Command, v *viper.Viper) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, v, true)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	banner := notify.NewBanner(cmd.ErrOrStderr(), clock.Real{}, cfg.Reminders.BannerDuration)

	var reminders *services.ReminderService
	noReminders, _ := cmd.Flags().GetBool("no-reminders")
	if cfg.Reminders.Enabled && !noReminders {
		reminders = services.NewReminderService(a.service, newNotifier(cfg.Reminders.Notifier, a), banner, a.logger,
			services.WithPollInterval(cfg.Reminders.PollInterval),
			services.WithNotifyTimeout(cfg.Reminders.NotifyTimeout),
			services.WithReminderMetrics(a.metrics),
		)
		reminders.Start(ctx)
		defer reminders.Stop()
	}

	srv := server.New(cfg, a.service, reminders, banner, a.metrics, a.logger)

	addr, err := srv.Listen(cfg.Server.Address())
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	url := apiclient.EndpointURL(addr)
	if err := apiclient.WriteEndpoint(cfg.Storage.Path, url); err != nil {
		a.logger.Warnw("Failed to advertise server; other commands will write storage directly", "error", err)
	}
	defer func() {
		if err := apiclient.RemoveEndpoint(cfg.Storage.Path, url); err != nil {
			a.logger.Warnw("Failed to remove server endpoint", "error", err)
		}
	}()

	a.logger.Infow("Starting TaskFlow",
		"address", addr.String(),
		"storage", cfg.Storage.Driver,
		"environment", cfg.App.Environment,
		"reminders", reminders != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Address())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Infow("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}

func newNotifier(kind string, a *app) ports.Notifier {
	if kind == "desktop" {
		return notify.NewDesktop(true, a.logger)
	}
	return notify.Nop{}
}
