package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/taskflow/internal/application/services"
	"github.com/taskmaster/taskflow/internal/domain/entities"
)

type cli struct {
	t       *testing.T
	dataDir string
	extra   []string
}

func newCLI(t *testing.T, extra ...string) *cli {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("TASKFLOW_STORAGE_DRIVER", "")
	return &cli{t: t, dataDir: t.TempDir(), extra: extra}
}

func (c *cli) run(args ...string) (string, string, error) {
	c.t.Helper()

	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	full := append([]string{"--data-dir", c.dataDir}, c.extra...)
	cmd.SetArgs(append(full, args...))

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, _, err := c.run(args...)
	require.NoError(c.t, err, "taskflow %s", strings.Join(args, " "))
	return out
}

func (c *cli) tasks() []entities.Task {
	c.t.Helper()
	var tasks []entities.Task
	require.NoError(c.t, json.Unmarshal([]byte(c.mustRun("list", "--json", "--view", "raw")), &tasks))
	return tasks
}

func TestAddListAndToggle(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("add", "Buy", "milk", "--important", "--end", "2099-01-01T10:00:00Z")
	assert.Contains(t, out, "Added")
	assert.Contains(t, out, "Buy milk")

	tasks := c.tasks()
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, "Buy milk", task.Description)
	assert.Equal(t, entities.PriorityImportant, task.Priority)
	require.NotNil(t, task.EndDateTime)
	assert.True(t, task.EndDateTime.Same(task.DueDate))

	out = c.mustRun("done", shortID(task.ID))
	assert.Contains(t, out, "Completed")
	assert.True(t, c.tasks()[0].Completed)

	out = c.mustRun("list")
	assert.Contains(t, out, "[x]")
	assert.Contains(t, out, "Buy milk")

	out = c.mustRun("done", task.ID)
	assert.Contains(t, out, "Reopened")

	out = c.mustRun("priority", task.ID)
	assert.Contains(t, out, "as normal")
	assert.Equal(t, entities.PriorityNormal, c.tasks()[0].Priority)
}

func TestAddValidation(t *testing.T) {
	c := newCLI(t)

	_, _, err := c.run("add", "   ")
	require.Error(t, err)
	assert.True(t, entities.IsValidationError(err))
	assert.Equal(t, "Task description is required", err.Error())

	_, _, err = c.run("add", "Report", "--end", "next tuesday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--end")

	assert.Empty(t, c.tasks())
}

func TestListSortsImportantFirst(t *testing.T) {
	c := newCLI(t)
	c.mustRun("add", "plain")
	c.mustRun("add", "urgent", "--important")

	var sorted []entities.Task
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("list", "--json")), &sorted))
	require.Len(t, sorted, 2)
	assert.Equal(t, "urgent", sorted[0].Description)

	raw := c.tasks()
	assert.Equal(t, "plain", raw[0].Description)

	_, _, err := c.run("list", "--view", "sideways")
	assert.Error(t, err)
}

func TestListOrdersByDueBeforeStart(t *testing.T) {
	c := newCLI(t)
	c.mustRun("add", "starts early", "--start", "2099-01-01T08:00:00Z", "--end", "2099-01-03T00:00:00Z")
	c.mustRun("add", "due first", "--end", "2099-01-02T00:00:00Z")
	c.mustRun("add", "start only", "--start", "2099-01-01T09:00:00Z")

	var sorted []entities.Task
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("list", "--json")), &sorted))
	require.Len(t, sorted, 3)
	assert.Equal(t, []string{"start only", "due first", "starts early"},
		[]string{sorted[0].Description, sorted[1].Description, sorted[2].Description})

	help := c.mustRun("list", "--help")
	assert.Contains(t, help, "important first, then by due time, falling back to start time and then creation time")
}

func TestEdit(t *testing.T) {
	c := newCLI(t)
	c.mustRun("add", "Draft", "--start", "2099-01-01T09:00:00Z", "--end", "2099-01-01T10:00:00Z")
	id := c.tasks()[0].ID

	out := c.mustRun("edit", id, "--description", "Final draft", "--clear-end")
	assert.Contains(t, out, "Final draft")

	task := c.tasks()[0]
	assert.Equal(t, "Final draft", task.Description)
	assert.Nil(t, task.EndDateTime)
	assert.Nil(t, task.DueDate)
	assert.NotNil(t, task.StartDateTime)

	_, _, err := c.run("edit", id)
	assert.Error(t, err)

	_, _, err = c.run("edit", id, "--description", " ")
	require.Error(t, err)
	assert.True(t, entities.IsValidationError(err))
	assert.Equal(t, "Final draft", c.tasks()[0].Description)

	_, _, err = c.run("edit", id, "--priority", "urgent")
	require.Error(t, err)
	assert.True(t, entities.IsValidationError(err))
}

func TestDeleteAndClearCompleted(t *testing.T) {
	c := newCLI(t)
	c.mustRun("add", "one")
	c.mustRun("add", "two")
	tasks := c.tasks()

	assert.Contains(t, c.mustRun("clear-completed"), "No completed tasks to clear")

	c.mustRun("done", tasks[0].ID)
	assert.Contains(t, c.mustRun("clear-completed"), "Cleared 1 completed task")

	remaining := c.tasks()
	require.Len(t, remaining, 1)
	assert.Equal(t, "two", remaining[0].Description)

	assert.Contains(t, c.mustRun("delete", remaining[0].ID), "Deleted")
	assert.Empty(t, c.tasks())

	_, _, err := c.run("delete", "missing")
	assert.ErrorIs(t, err, entities.ErrTaskNotFound)
}

func TestStatsAndDue(t *testing.T) {
	c := newCLI(t)
	soon := time.Now().Add(30 * time.Minute).UTC().Format(time.RFC3339)
	c.mustRun("add", "Standup", "--end", soon)
	c.mustRun("add", "Later", "--end", "2099-01-01T10:00:00Z")
	c.mustRun("done", c.tasks()[1].ID)

	var stats entities.Stats
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("stats", "--json")), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 50, stats.CompletionRate)

	assert.Contains(t, c.mustRun("stats"), "Progress:   50%")

	out := c.mustRun("due")
	assert.Contains(t, out, "Standup")
	assert.NotContains(t, out, "Later")
}

func TestExportImportYAML(t *testing.T) {
	src := newCLI(t)
	src.mustRun("add", "Pay rent", "--important", "--end", "2099-02-01T09:00:00Z")
	src.mustRun("add", "Water plants")
	want := src.tasks()

	file := filepath.Join(t.TempDir(), "tasks.yaml")
	_, stderr, err := src.run("export", "--format", "yaml", "-o", file)
	require.NoError(t, err)
	assert.Contains(t, stderr, file)

	dst := newCLI(t)
	dst.mustRun("add", "to be replaced")
	assert.Contains(t, dst.mustRun("import", file), "Imported 2 tasks")

	got := dst.tasks()
	require.Len(t, got, 2)
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Description, got[i].Description)
		assert.Equal(t, want[i].Priority, got[i].Priority)
		assert.True(t, want[i].EndDateTime.Same(got[i].EndDateTime))
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt.Time))
	}
}

func TestImportBrowserExport(t *testing.T) {
	c := newCLI(t)
	file := filepath.Join(t.TempDir(), "localStorage.json")
	legacy := `[{"id":"1709283600000","description":"Legacy","completed":false,"priority":"important",` +
		`"dueDate":"2024-03-01T10:00:00.000Z","createdAt":"2024-03-01T09:00:00.000Z"}]`
	require.NoError(t, os.WriteFile(file, []byte(legacy), 0o600))

	c.mustRun("import", file)

	tasks := c.tasks()
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].EndDateTime)
	assert.True(t, tasks[0].EndDateTime.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestImportRejectsInvalid(t *testing.T) {
	c := newCLI(t)
	c.mustRun("add", "keep me")

	file := filepath.Join(t.TempDir(), "bad.json")
	dup := `[{"id":"a","description":"x","priority":"normal","createdAt":"2024-03-01T09:00:00Z"},` +
		`{"id":"a","description":"y","priority":"normal","createdAt":"2024-03-01T09:00:00Z"}]`
	require.NoError(t, os.WriteFile(file, []byte(dup), 0o600))

	_, _, err := c.run("import", file)
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrDuplicateTask)

	tasks := c.tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "keep me", tasks[0].Description)
}

func TestSQLiteStorage(t *testing.T) {
	c := newCLI(t, "--storage", "sqlite")

	c.mustRun("add", "stored in sqlite")
	require.Len(t, c.tasks(), 1)
	assert.FileExists(t, filepath.Join(c.dataDir, "taskflow.db"))

	assert.Contains(t, c.mustRun("migrate"), "sqlite schema at version 1")
}

func TestMigrateFileStorage(t *testing.T) {
	c := newCLI(t)
	assert.Contains(t, c.mustRun("migrate"), "file storage needs no migrations")
}

func TestTipAndVersion(t *testing.T) {
	c := newCLI(t)

	tip := strings.TrimSpace(c.mustRun("tip"))
	assert.Contains(t, services.Tips(), tip)

	assert.Contains(t, c.mustRun("version"), "TaskFlow "+Version)
}

func TestResolveID(t *testing.T) {
	tasks := []entities.Task{
		{ID: "0190a1b2-0000-7000-8000-aaaaaaaa1111"},
		{ID: "0190a1b2-0000-7000-8000-bbbbbbbb2222"},
		{ID: "1709283600000"},
	}

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr string
	}{
		{name: "exact", ref: "1709283600000", want: "1709283600000"},
		{name: "suffix", ref: "aaaa1111", want: tasks[0].ID},
		{name: "prefix", ref: "17092", want: "1709283600000"},
		{name: "ambiguous prefix", ref: "0190a1b2", wantErr: "ambiguous"},
		{name: "unknown", ref: "zzz", wantErr: "task not found"},
		{name: "blank", ref: " ", wantErr: "required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveID(tasks, tt.ref)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "aaaa1111", shortID("0190a1b2-0000-7000-8000-aaaaaaaa1111"))
	assert.Equal(t, "42", shortID("42"))
}
