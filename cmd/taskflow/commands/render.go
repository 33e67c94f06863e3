package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/taskmaster/taskflow/internal/domain/entities"
)

const shortIDLen = 8

var (
	idStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	importantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	completedStyle = lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("245"))
	overdueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	scheduleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
)

// shortID is the suffix shown in listings. UUIDv7 prefixes are timestamps,
// so tasks created close together share them.
func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[len(id)-shortIDLen:]
}

// resolveID finds the task a user typed. An exact id wins, then a unique
// suffix, then a unique prefix.
func resolveID(tasks []entities.Task, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("task id is required")
	}

	for _, t := range tasks {
		if t.ID == ref {
			return t.ID, nil
		}
	}

	for _, match := range []func(id string) bool{
		func(id string) bool { return strings.HasSuffix(id, ref) },
		func(id string) bool { return strings.HasPrefix(id, ref) },
	} {
		var found []string
		for _, t := range tasks {
			if match(t.ID) {
				found = append(found, t.ID)
			}
		}
		switch len(found) {
		case 0:
			continue
		case 1:
			return found[0], nil
		default:
			return "", fmt.Errorf("task id %q is ambiguous (%d matches)", ref, len(found))
		}
	}

	return "", fmt.Errorf("%w: %s", entities.ErrTaskNotFound, ref)
}

func formatWhen(t time.Time) string {
	return t.In(time.Local).Format("Mon Jan 2 15:04")
}

func renderTask(t entities.Task, now time.Time) string {
	check := "[ ]"
	if t.Completed {
		check = "[x]"
	}

	marker := " "
	if t.Priority == entities.PriorityImportant {
		marker = importantStyle.Render("!")
	}

	desc := t.Description
	if t.Completed {
		desc = completedStyle.Render(desc)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s %s", idStyle.Render(shortID(t.ID)), check, marker, desc)

	if start := t.StartAt(); start != nil {
		b.WriteString(scheduleStyle.Render("  starts " + formatWhen(*start)))
	}
	if due := t.DueAt(); due != nil {
		label := "  due " + formatWhen(*due)
		if t.IsOverdue(now) {
			b.WriteString(overdueStyle.Render(label + " (overdue)"))
		} else {
			b.WriteString(scheduleStyle.Render(label))
		}
	}

	return b.String()
}

func renderTasks(w io.Writer, title string, tasks []entities.Task, now time.Time) {
	if title != "" {
		fmt.Fprintln(w, headerStyle.Render(title))
	}
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks")
		return
	}
	for _, t := range tasks {
		fmt.Fprintln(w, renderTask(t, now))
	}
}

func renderStats(w io.Writer, s entities.Stats) {
	fmt.Fprintf(w, "Total:      %d\n", s.Total)
	fmt.Fprintf(w, "Completed:  %d\n", s.Completed)
	fmt.Fprintf(w, "Remaining:  %d\n", s.Incomplete)
	fmt.Fprintf(w, "Important:  %d\n", s.ImportantOpen)
	fmt.Fprintf(w, "Overdue:    %d\n", s.Overdue)
	fmt.Fprintf(w, "Progress:   %d%%\n", s.CompletionRate)
}
