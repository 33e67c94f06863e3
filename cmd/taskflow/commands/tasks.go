package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskmaster/taskflow/internal/application/services"
	"github.com/taskmaster/taskflow/internal/domain/entities"
	"github.com/taskmaster/taskflow/internal/ports"
)

// NewAddCommand creates the add command
func NewAddCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <description>",
		Short: "Add a task",
		Example: `  taskflow add Buy milk
  taskflow add "Quarterly report" --important --end "2024-03-01 17:00"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runWithApp(v, func(cmd *cobra.Command, args []string, a *app) error {
			req := ports.CreateTaskRequest{
				Description: strings.Join(args, " "),
				Priority:    entities.PriorityNormal,
			}
			if important, _ := cmd.Flags().GetBool("important"); important {
				req.Priority = entities.PriorityImportant
			}

			var err error
			if req.StartDateTime, err = timeFlag(cmd, "start"); err != nil {
				return err
			}
			if req.EndDateTime, err = timeFlag(cmd, "end"); err != nil {
				return err
			}

			task, err := a.tasks.Add(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added %s: %s\n", shortID(task.ID), task.Description)
			warnIfUnsaved(cmd, a)
			return nil
		}),
	}

	cmd.Flags().Bool("important", false, "flag the task as important")
	cmd.Flags().String("start", "", "scheduled start time, e.g. 2024-03-01T09:00")
	cmd.Flags().String("end", "", "due time, e.g. 2024-03-01T17:00")

	return cmd
}

// NewListCommand creates the list command
func NewListCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Long:    "List tasks: open before completed, important first, then by due time, falling back to start time and then creation time.",
		Args:    cobra.NoArgs,
		RunE: runWithApp(v, func(cmd *cobra.Command, args []string, a *app) error {
			view, _ := cmd.Flags().GetString("view")
			asJSON, _ := cmd.Flags().GetBool("json")

			var (
				tasks []entities.Task
				err   error
			)
			switch view {
			case "sorted":
				tasks, err = a.tasks.Sorted(cmd.Context())
			case "raw":
				tasks, err = a.tasks.List(cmd.Context())
			default:
				return fmt.Errorf("unknown view %q (want sorted or raw)", view)
			}
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, tasks)
			}
			renderTasks(cmd.OutOrStdout(), "", tasks, a.now())
			return nil
		}),
	}

	cmd.Flags().String("view", "sorted", "ordering: sorted or raw (insertion order)")
	cmd.Flags().Bool("json", false, "print tasks as JSON")

	return cmd
}

// NewDoneCommand creates the done command
func NewDoneCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a task between completed and open",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(v, func(cmd *cobra.Command, args []string, a *app) error {
			id, err := a.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			task, ok, err := a.tasks.ToggleComplete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", entities.ErrTaskNotFound, args[0])
			}

			verb := "Reopened"
			if task.Completed {
				verb = "Completed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", verb, shortID(task.ID), task.Description)
			warnIfUnsaved(cmd, a)
			return nil
		}),
	}
}

// NewPriorityCommand creates the priority command
func NewPriorityCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "priority <id>",
		Short: "Toggle a task between normal and important",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(v, func(cmd *cobra.Command, args []string, a *app) error {
			id, err := a.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			task, ok, err := a.tasks.TogglePriority(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", entities.ErrTaskNotFound, args[0])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as %s: %s\n", shortID(task.ID), task.Priority, task.Description)
			warnIfUnsaved(cmd, a)
			return nil
		}),
	}
}

// NewEditCommand creates the edit command
func NewEditCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task's description, priority or schedule",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(v, func(cmd *cobra.Command, args []string, a *app) error {
			id, err := a.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			req, err := updateRequest(cmd)
			if err != nil {
				return err
			}
			if req.Empty() {
				return fmt.Errorf("nothing to change; see --help for the available flags")
			}

			task, ok, err := a.tasks.Update(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", entities.ErrTaskNotFound, args[0])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", renderTask(*task, a.now()))
			warnIfUnsaved(cmd, a)
			return nil
		}),
	}

	flags := cmd.Flags()
	flags.String("description", "", "new description")
	flags.String("priority", "", "normal or important")
	flags.String("start", "", "new start time")
	flags.String("end", "", "new due time")
	flags.Bool("clear-start", false, "remove the start time")
	flags.Bool("clear-end", false, "remove the due time")

	return cmd
}

func updateRequest(cmd *cobra.Command) (ports.UpdateTaskRequest, error) {
	var req ports.UpdateTaskRequest
	flags := cmd.Flags()

	if flags.Changed("description") {
		desc, _ := flags.GetString("description")
		req.Description = &desc
	}
	if flags.Changed("priority") {
		p, _ := flags.GetString("priority")
		priority := entities.Priority(p)
		req.Priority = &priority
	}

	var err error
	if req.StartDateTime, err = timeFlag(cmd, "start"); err != nil {
		return req, err
	}
	if req.EndDateTime, err = timeFlag(cmd, "end"); err != nil {
		return req, err
	}
	req.ClearStart, _ = flags.GetBool("clear-start")
	req.ClearEnd, _ = flags.GetBool("clear-end")

	return req, nil
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: runWithApp(v, func(cmd *cobra.Command, args []string, a *app) error {
			id, err := a.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			found, err := a.tasks.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %s", entities.ErrTaskNotFound, args[0])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", shortID(id))
			warnIfUnsaved(cmd, a)
			return nil
		}),
	}
}

// NewClearCompletedCommand creates the clear-completed command
func NewClearCompletedCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove every completed task",
		Args:  cobra.NoArgs,
		RunE: runWithApp(v, func(cmd *cobra.Command, args []string, a *app) error {
			n, err := a.tasks.ClearCompleted(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), services.ClearedMessage(n))
			if n > 0 {
				warnIfUnsaved(cmd, a)
			}
			return nil
		}),
	}
}

// NewStatsCommand creates the stats command
func NewStatsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show task statistics",
		Args:  cobra.NoArgs,
		RunE: runWithApp(v, func(cmd *cobra.Command, args []string, a *app) error {
			stats, err := a.tasks.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd, stats)
			}
			renderStats(cmd.OutOrStdout(), stats)
			return nil
		}),
	}

	cmd.Flags().Bool("json", false, "print statistics as JSON")
	return cmd
}

// NewDueCommand creates the due command
func NewDueCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "due",
		Short: "Show tasks starting or due within the reminder window",
		Args:  cobra.NoArgs,
		RunE: runWithApp(v, func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			now := a.now()
			out := cmd.OutOrStdout()
			window := a.cfg.Reminders.Window

			starting, err := a.tasks.StartingSoon(ctx)
			if err != nil {
				return err
			}
			due, err := a.tasks.DueSoon(ctx)
			if err != nil {
				return err
			}

			renderTasks(out, fmt.Sprintf("Starting within %s", window), starting, now)
			fmt.Fprintln(out)
			renderTasks(out, fmt.Sprintf("Due within %s", window), due, now)

			if showOverdue, _ := cmd.Flags().GetBool("overdue"); showOverdue {
				overdue, err := a.tasks.Overdue(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				renderTasks(out, "Overdue", overdue, now)
			}
			return nil
		}),
	}

	cmd.Flags().Bool("overdue", false, "also list overdue tasks")
	return cmd
}

// NewTipCommand creates the tip command
func NewTipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tip",
		Short: "Print a productivity tip",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), services.RandomTip())
		},
	}
}

func timeFlag(cmd *cobra.Command, name string) (*entities.Timestamp, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	value, _ := cmd.Flags().GetString(name)
	ts, err := entities.ParseTimestamp(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return ts, nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// warnIfUnsaved reports a failed write. The change is kept in memory only
// for the life of this command.
func warnIfUnsaved(cmd *cobra.Command, a *app) {
	if err := a.persistenceError(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: change could not be saved: %v\n", err)
	}
}
