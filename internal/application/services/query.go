package services

import (
	"math"
	"sort"
	"time"

	"github.com/taskmaster/taskflow/internal/domain/entities"
)

// DefaultReminderWindow is how far ahead due-soon and starting-soon look.
const DefaultReminderWindow = time.Hour

// The functions below are pure: they never touch the store and depend only on
// their arguments, so any view can be re-derived from a snapshot and a "now".

// ComputeStats summarizes tasks
func ComputeStats(tasks []entities.Task, now time.Time) entities.Stats {
	var st entities.Stats
	st.Total = len(tasks)
	for i := range tasks {
		t := &tasks[i]
		if t.Completed {
			st.Completed++
			continue
		}
		if t.Priority == entities.PriorityImportant {
			st.ImportantOpen++
		}
		if t.IsOverdue(now) {
			st.Overdue++
		}
	}
	st.Incomplete = st.Total - st.Completed
	if st.Total > 0 {
		st.CompletionRate = int(math.Round(float64(st.Completed) / float64(st.Total) * 100))
	}
	return st
}

// SortTasks returns a sorted copy: incomplete before completed, important
// before normal, then earliest end/due/start/creation time. Ties keep their
// original order.
func SortTasks(tasks []entities.Task) []entities.Task {
	out := make([]entities.Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Less(&out[j])
	})
	return out
}

// DueSoon returns incomplete tasks whose due time is in (now, now+window].
func DueSoon(tasks []entities.Task, now time.Time, window time.Duration) []entities.Task {
	return filterWindow(tasks, now, window, (*entities.Task).DueAt)
}

// StartingSoon returns incomplete tasks whose start time is in (now, now+window].
func StartingSoon(tasks []entities.Task, now time.Time, window time.Duration) []entities.Task {
	return filterWindow(tasks, now, window, (*entities.Task).StartAt)
}

// Overdue returns incomplete tasks whose due time is before now.
func Overdue(tasks []entities.Task, now time.Time) []entities.Task {
	var out []entities.Task
	for i := range tasks {
		if tasks[i].IsOverdue(now) {
			out = append(out, tasks[i])
		}
	}
	return out
}

// TargetTime returns the time a reminder of kind event fires for t.
func TargetTime(t *entities.Task, event entities.EventType) *time.Time {
	if event == entities.EventStart {
		return t.StartAt()
	}
	return t.DueAt()
}

// InWindow reports whether at lies in (now, now+window].
func InWindow(at, now time.Time, window time.Duration) bool {
	return at.After(now) && !at.After(now.Add(window))
}

func filterWindow(tasks []entities.Task, now time.Time, window time.Duration, at func(*entities.Task) *time.Time) []entities.Task {
	var out []entities.Task
	for i := range tasks {
		t := &tasks[i]
		if t.Completed {
			continue
		}
		if ts := at(t); ts != nil && InWindow(*ts, now, window) {
			out = append(out, *t)
		}
	}
	return out
}
