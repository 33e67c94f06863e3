package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/taskmaster/taskflow/internal/domain/entities"
	"github.com/taskmaster/taskflow/internal/infrastructure/config"
	"github.com/taskmaster/taskflow/internal/infrastructure/database"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// NewExportCommand creates the export command
func NewExportCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every task to stdout or a file",
		Args:  cobra.NoArgs,
		RunE: runWithApp(v, func(cmd *cobra.Command, args []string, a *app) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			tasks, err := a.tasks.List(cmd.Context())
			if err != nil {
				return err
			}

			data, err := encodeTasks(tasks, format)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported tasks to %s\n", output)
			return nil
		}),
	}

	cmd.Flags().String("format", formatJSON, "output format: json or yaml")
	cmd.Flags().StringP("output", "o", "", "file to write (default stdout)")

	return cmd
}

// NewImportCommand creates the import command
func NewImportCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace all tasks with the contents of an export",
		Long: `Replace all tasks with the contents of an export file. Accepts the JSON
array written by "taskflow export" or saved from the browser's
"Task Manager-tasks" local storage entry, and the YAML export format.
Nothing changes unless every task in the file is valid.`,
		Args: cobra.ExactArgs(1),
		RunE: runWithApp(v, func(cmd *cobra.Command, args []string, a *app) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			format, _ := cmd.Flags().GetString("format")
			if format == "" {
				format = formatFromPath(args[0])
			}

			tasks, err := decodeTasks(data, format)
			if err != nil {
				return err
			}

			n, err := a.tasks.Replace(cmd.Context(), tasks)
			if err != nil {
				return fmt.Errorf("import rejected: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tasks\n", n)
			warnIfUnsaved(cmd, a)
			return nil
		}),
	}

	cmd.Flags().String("format", "", "input format: json or yaml (default from file extension)")
	return cmd
}

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for sql storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWith(v)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			switch cfg.Storage.Driver {
			case config.DriverFile, config.DriverRedis:
				fmt.Fprintf(cmd.OutOrStdout(), "%s storage needs no migrations\n", cfg.Storage.Driver)
				return nil
			}

			db, err := database.Open(cfg.Storage)
			if err != nil {
				return err
			}
			defer db.Close()

			version, dirty, err := db.SchemaVersion()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d", db.Driver(), version)
			if dirty {
				fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func encodeTasks(tasks []entities.Task, format string) ([]byte, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(tasks, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode tasks: %w", err)
		}
		return append(data, '\n'), nil
	case formatYAML:
		data, err := yaml.Marshal(tasks)
		if err != nil {
			return nil, fmt.Errorf("encode tasks: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func decodeTasks(data []byte, format string) ([]entities.Task, error) {
	var tasks []entities.Task
	switch format {
	case formatJSON:
		if err := json.Unmarshal(data, &tasks); err != nil {
			return nil, fmt.Errorf("decode tasks: %w", err)
		}
	case formatYAML:
		if err := yaml.Unmarshal(data, &tasks); err != nil {
			return nil, fmt.Errorf("decode tasks: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
	return tasks, nil
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	return data, nil
}
