package entities

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrDuplicateTask = errors.New("duplicate task id")
)

// ValidationError reports a required field that is missing or malformed.
// Callers present Message to the user; the store is left unchanged.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a validation error for field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is or wraps a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type Priority string

const (
	PriorityNormal    Priority = "normal"
	PriorityImportant Priority = "important"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityImportant
}

// Toggle flips between normal and important
func (p Priority) Toggle() Priority {
	if p == PriorityImportant {
		return PriorityNormal
	}
	return PriorityImportant
}

func (p Priority) rank() int {
	if p == PriorityImportant {
		return 0
	}
	return 1
}

// EventType identifies which scheduled time a reminder is attached to.
type EventType string

const (
	EventStart EventType = "start"
	EventDue   EventType = "due"
)

// ReminderKey identifies one schedulable alert.
type ReminderKey struct {
	TaskID string    `json:"taskId"`
	Event  EventType `json:"event"`
}

func (k ReminderKey) String() string {
	return k.TaskID + ":" + string(k.Event)
}

// Task represents a task in the tracker. Field names are the persisted
// layout and must not change.
type Task struct {
	ID            string     `json:"id" yaml:"id"`
	Description   string     `json:"description" yaml:"description"`
	Completed     bool       `json:"completed" yaml:"completed"`
	Priority      Priority   `json:"priority" yaml:"priority"`
	StartDateTime *Timestamp `json:"startDateTime" yaml:"startDateTime,omitempty"`
	EndDateTime   *Timestamp `json:"endDateTime" yaml:"endDateTime,omitempty"`
	DueDate       *Timestamp `json:"dueDate" yaml:"dueDate,omitempty"`
	CreatedAt     Timestamp  `json:"createdAt" yaml:"createdAt"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	t.StartDateTime = t.StartDateTime.Clone()
	t.EndDateTime = t.EndDateTime.Clone()
	t.DueDate = t.DueDate.Clone()
	return t
}

// SetEnd sets the due time, keeping the legacy alias in sync.
func (t *Task) SetEnd(end *Timestamp) {
	t.EndDateTime = end.Clone()
	t.DueDate = end.Clone()
}

// DueAt returns the canonical due time, falling back to the legacy alias.
func (t *Task) DueAt() *time.Time {
	if t.EndDateTime != nil {
		v := t.EndDateTime.Time
		return &v
	}
	if t.DueDate != nil {
		v := t.DueDate.Time
		return &v
	}
	return nil
}

// StartAt returns the start time if one is set.
func (t *Task) StartAt() *time.Time {
	if t.StartDateTime == nil {
		return nil
	}
	v := t.StartDateTime.Time
	return &v
}

// SortTime is the earliest meaningful timestamp: end, legacy due, start, then creation.
func (t *Task) SortTime() time.Time {
	if due := t.DueAt(); due != nil {
		return *due
	}
	if t.StartDateTime != nil {
		return t.StartDateTime.Time
	}
	return t.CreatedAt.Time
}

// IsOverdue reports whether an incomplete task's due time has passed.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.Completed {
		return false
	}
	due := t.DueAt()
	return due != nil && due.Before(now)
}

// Less reports whether t sorts before o: incomplete first, important first,
// then earliest SortTime.
func (t *Task) Less(o *Task) bool {
	if t.Completed != o.Completed {
		return !t.Completed
	}
	if t.Priority.rank() != o.Priority.rank() {
		return t.Priority.rank() < o.Priority.rank()
	}
	return t.SortTime().Before(o.SortTime())
}

// Normalize repairs a task decoded from storage so downstream code only
// reasons about EndDateTime. endDateTime wins when both fields disagree.
func (t *Task) Normalize(loadedAt time.Time) {
	t.Description = strings.TrimSpace(t.Description)
	if !t.Priority.Valid() {
		t.Priority = PriorityNormal
	}

	t.StartDateTime = present(t.StartDateTime)
	t.EndDateTime = present(t.EndDateTime)
	t.DueDate = present(t.DueDate)

	switch {
	case t.EndDateTime != nil:
		t.DueDate = t.EndDateTime.Clone()
	case t.DueDate != nil:
		t.EndDateTime = t.DueDate.Clone()
	}

	if t.CreatedAt.IsZero() {
		if ts, ok := timeFromID(t.ID); ok {
			t.CreatedAt = Timestamp{Time: canonical(ts)}
		} else {
			t.CreatedAt = Timestamp{Time: canonical(loadedAt)}
		}
	}
}

// Validate checks the persisted invariants of a single task.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return NewValidationError("id", "Task id is required")
	}
	if strings.TrimSpace(t.Description) == "" {
		return NewValidationError("description", "Task description is required")
	}
	return nil
}

// present maps a decoded empty timestamp ("" in JSON) to absent.
func present(ts *Timestamp) *Timestamp {
	if ts == nil || ts.IsZero() {
		return nil
	}
	return ts
}

// timeFromID recovers a creation time from UUIDv7 ids and millisecond epoch ids.
func timeFromID(id string) (time.Time, bool) {
	if u, err := uuid.Parse(id); err == nil && u.Version() == 7 {
		sec, nsec := u.Time().UnixTime()
		return time.Unix(sec, nsec), true
	}
	if ms, err := strconv.ParseInt(id, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}

// ChangeKind describes what happened to the task collection.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeUpdated   ChangeKind = "updated"
	ChangeCompleted ChangeKind = "completed"
	ChangeReopened  ChangeKind = "reopened"
	ChangePriority  ChangeKind = "priority"
	ChangeDeleted   ChangeKind = "deleted"
	ChangeCleared   ChangeKind = "cleared"
	ChangeReplaced  ChangeKind = "replaced"
)

// ChangeEvent is the single "state changed" notification emitted by the store.
type ChangeEvent struct {
	Kind    ChangeKind `json:"kind"`
	TaskID  string     `json:"taskId,omitempty"`
	Task    *Task      `json:"task,omitempty"`
	Removed []string   `json:"removed,omitempty"`
	At      time.Time  `json:"at"`
}

// Stats summarizes the task collection.
type Stats struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Incomplete     int `json:"incomplete"`
	CompletionRate int `json:"completionRate"`
	ImportantOpen  int `json:"importantOpen"`
	Overdue        int `json:"overdue"`
}

func (s Stats) String() string {
	return fmt.Sprintf("%d total, %d completed, %d remaining (%d%%)",
		s.Total, s.Completed, s.Incomplete, s.CompletionRate)
}
