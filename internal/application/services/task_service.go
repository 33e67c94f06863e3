package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskmaster/taskflow/internal/domain/entities"
	"github.com/taskmaster/taskflow/internal/infrastructure/clock"
	"github.com/taskmaster/taskflow/internal/infrastructure/logger"
	"github.com/taskmaster/taskflow/internal/infrastructure/metrics"
	"github.com/taskmaster/taskflow/internal/ports"
)

// StorageKey is the key the task collection is persisted under.
const StorageKey = "Task Manager-tasks"

const persistTimeout = 10 * time.Second

// TaskService owns the task collection. Every successful mutation is written
// through to storage before it returns.
type TaskService struct {
	mu             sync.RWMutex
	tasks          []entities.Task
	lastPersistErr error

	storage  ports.KeyValueStore
	clock    clock.Clock
	validate *validator.Validate
	logger   *logger.Logger
	metrics  *metrics.Metrics
	window   time.Duration
	newID    func() string

	subMu       sync.Mutex
	subscribers map[int]func(entities.ChangeEvent)
	nextSub     int
}

// TaskServiceOption configures a TaskService
type TaskServiceOption func(*TaskService)

// WithClock overrides the wall clock
func WithClock(c clock.Clock) TaskServiceOption {
	return func(s *TaskService) { s.clock = c }
}

// WithMetrics records mutations and persistence failures
func WithMetrics(m *metrics.Metrics) TaskServiceOption {
	return func(s *TaskService) { s.metrics = m }
}

// WithReminderWindow sets the due-soon / starting-soon window
func WithReminderWindow(d time.Duration) TaskServiceOption {
	return func(s *TaskService) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithIDGenerator overrides task id generation
func WithIDGenerator(fn func() string) TaskServiceOption {
	return func(s *TaskService) { s.newID = fn }
}

// NewTaskService creates the task store and loads any persisted tasks.
// Unreadable or corrupt storage is logged and yields an empty collection.
func NewTaskService(ctx context.Context, storage ports.KeyValueStore, logger *logger.Logger, opts ...TaskServiceOption) *TaskService {
	s := &TaskService{
		tasks:       []entities.Task{},
		storage:     storage,
		clock:       clock.Real{},
		validate:    validator.New(),
		logger:      logger.WithComponent("task_store"),
		window:      DefaultReminderWindow,
		newID:       newTaskID,
		subscribers: map[int]func(entities.ChangeEvent){},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.load(ctx)
	return s
}

func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *TaskService) load(ctx context.Context) {
	data, err := s.storage.Get(ctx, StorageKey)
	if err != nil {
		if errors.Is(err, ports.ErrKeyNotFound) {
			s.logger.Debugw("No stored tasks, starting empty")
			return
		}
		s.persistenceWarning("load", err)
		return
	}

	var loaded []entities.Task
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.persistenceWarning("load", fmt.Errorf("decode stored tasks: %w", err))
		return
	}

	now := s.clock.Now()
	seen := make(map[string]bool, len(loaded))
	for _, t := range loaded {
		t.Normalize(now)
		if err := t.Validate(); err != nil {
			s.logger.Warnw("Skipping invalid stored task", "task_id", t.ID, "error", err)
			continue
		}
		if seen[t.ID] {
			s.logger.Warnw("Skipping duplicate stored task", "task_id", t.ID)
			continue
		}
		seen[t.ID] = true
		s.tasks = append(s.tasks, t)
	}

	s.logger.Infow("Loaded tasks", "count", len(s.tasks))
}

// persistLocked serializes the full collection. Failures are warnings: the
// in-memory state stays authoritative and the caller is not told.
// The write is detached from ctx cancellation: a caller that goes away after
// the in-memory change must not leave storage behind it.
func (s *TaskService) persistLocked(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	data, err := json.Marshal(s.tasks)
	if err == nil {
		err = s.storage.Set(ctx, StorageKey, data)
	}
	if err != nil {
		s.lastPersistErr = err
		s.persistenceWarning("save", err)
		return
	}
	s.lastPersistErr = nil
}

func (s *TaskService) persistenceWarning(op string, err error) {
	s.metrics.PersistenceFailure()
	s.logger.Warnw("Task persistence failed, continuing in memory", "op", op, "error", err)
}

// LastPersistenceError returns the error from the most recent write, if it failed
func (s *TaskService) LastPersistenceError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPersistErr
}

// Now returns the store's current time
func (s *TaskService) Now() time.Time {
	return s.clock.Now()
}

// Window returns the due-soon / starting-soon window
func (s *TaskService) Window() time.Duration {
	return s.window
}

// Subscribe registers fn for every state change. Callbacks run after the
// mutation has been persisted and outside the store lock.
func (s *TaskService) Subscribe(fn func(entities.ChangeEvent)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *TaskService) publish(ev entities.ChangeEvent) {
	ev.At = s.clock.Now()

	s.subMu.Lock()
	fns := make([]func(entities.ChangeEvent), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Add creates a new task
func (s *TaskService) Add(ctx context.Context, req ports.CreateTaskRequest) (*entities.Task, error) {
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if req.Priority == "" {
		req.Priority = entities.PriorityNormal
	}

	s.mu.Lock()
	task := entities.Task{
		ID:            s.uniqueIDLocked(),
		Description:   req.Description,
		Priority:      req.Priority,
		StartDateTime: presentTime(req.StartDateTime),
		CreatedAt:     *entities.NewTimestamp(s.clock.Now()),
	}
	task.SetEnd(presentTime(req.EndDateTime))

	s.tasks = append(s.tasks, task)
	s.persistLocked(ctx)
	out := task.Clone()
	s.mu.Unlock()

	s.metrics.Mutation("add")
	s.logger.LogTaskAction("add", out.ID, map[string]interface{}{"priority": out.Priority})
	s.publish(entities.ChangeEvent{Kind: entities.ChangeAdded, TaskID: out.ID, Task: cloned(out)})

	return &out, nil
}

func (s *TaskService) uniqueIDLocked() string {
	for {
		id := s.newID()
		if s.indexLocked(id) < 0 {
			return id
		}
	}
}

// List returns a snapshot of all tasks in insertion order
func (s *TaskService) List() []entities.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.tasks)
}

// Get returns a copy of the task with id
func (s *TaskService) Get(id string) (*entities.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	out := s.tasks[i].Clone()
	return &out, true
}

// Delete removes the task with id and reports whether it existed
func (s *TaskService) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.metrics.Mutation("delete")
	s.logger.LogTaskAction("delete", id, nil)
	s.publish(entities.ChangeEvent{Kind: entities.ChangeDeleted, TaskID: id})

	return true
}

// ToggleComplete flips the completed flag
func (s *TaskService) ToggleComplete(ctx context.Context, id string) (*entities.Task, bool) {
	out, ok := s.mutate(ctx, id, func(t *entities.Task) {
		t.Completed = !t.Completed
	})
	if !ok {
		return nil, false
	}

	kind := entities.ChangeReopened
	if out.Completed {
		kind = entities.ChangeCompleted
	}
	s.metrics.Mutation("toggle_complete")
	s.logger.LogTaskAction("toggle_complete", id, map[string]interface{}{"completed": out.Completed})
	s.publish(entities.ChangeEvent{Kind: kind, TaskID: id, Task: cloned(*out)})

	return out, true
}

// TogglePriority flips between normal and important
func (s *TaskService) TogglePriority(ctx context.Context, id string) (*entities.Task, bool) {
	out, ok := s.mutate(ctx, id, func(t *entities.Task) {
		t.Priority = t.Priority.Toggle()
	})
	if !ok {
		return nil, false
	}

	s.metrics.Mutation("toggle_priority")
	s.logger.LogTaskAction("toggle_priority", id, map[string]interface{}{"priority": out.Priority})
	s.publish(entities.ChangeEvent{Kind: entities.ChangePriority, TaskID: id, Task: cloned(*out)})

	return out, true
}

// Update applies the fields present in req. A present but blank description
// is a validation error and leaves the task unchanged.
func (s *TaskService) Update(ctx context.Context, id string, req ports.UpdateTaskRequest) (*entities.Task, bool, error) {
	if _, ok := s.Get(id); !ok {
		return nil, false, nil
	}

	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		if trimmed == "" {
			return nil, true, entities.NewValidationError("description", "Task description is required")
		}
		req.Description = &trimmed
	}
	if err := s.validateStruct(req); err != nil {
		return nil, true, err
	}

	out, ok := s.mutate(ctx, id, func(t *entities.Task) {
		applyUpdate(t, req)
	})
	if !ok {
		// deleted between the lookup and the write
		return nil, false, nil
	}

	s.metrics.Mutation("update")
	s.logger.LogTaskAction("update", id, nil)
	s.publish(entities.ChangeEvent{Kind: entities.ChangeUpdated, TaskID: id, Task: cloned(*out)})

	return out, true, nil
}

func applyUpdate(t *entities.Task, req ports.UpdateTaskRequest) {
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}

	if req.ClearStart {
		t.StartDateTime = nil
	}
	if req.StartDateTime != nil {
		t.StartDateTime = presentTime(req.StartDateTime)
	}

	if req.ClearEnd {
		t.SetEnd(nil)
	}
	if req.EndDateTime != nil {
		t.SetEnd(presentTime(req.EndDateTime))
	}
	if req.DueDate != nil {
		t.SetEnd(presentTime(req.DueDate))
	}
}

// ClearCompleted removes every completed task and returns how many were removed
func (s *TaskService) ClearCompleted(ctx context.Context) int {
	s.mu.Lock()
	kept := make([]entities.Task, 0, len(s.tasks))
	var removed []string
	for _, t := range s.tasks {
		if t.Completed {
			removed = append(removed, t.ID)
			continue
		}
		kept = append(kept, t)
	}
	if len(removed) == 0 {
		s.mu.Unlock()
		return 0
	}
	s.tasks = kept
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.metrics.Mutation("clear_completed")
	s.logger.LogTaskAction("clear_completed", "", map[string]interface{}{"count": len(removed)})
	s.publish(entities.ChangeEvent{Kind: entities.ChangeCleared, Removed: removed})

	return len(removed)
}

// Replace swaps the whole collection for tasks, as when importing an export.
// Every task must be valid and ids must be unique; otherwise nothing changes.
func (s *TaskService) Replace(ctx context.Context, tasks []entities.Task) (int, error) {
	now := s.clock.Now()
	next := make([]entities.Task, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		t = t.Clone()
		t.Normalize(now)
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("task %d: %w", i, err)
		}
		if seen[t.ID] {
			return 0, fmt.Errorf("task %q: %w", t.ID, entities.ErrDuplicateTask)
		}
		seen[t.ID] = true
		next = append(next, t)
	}

	s.mu.Lock()
	removed := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		removed = append(removed, t.ID)
	}
	s.tasks = next
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.metrics.Mutation("replace")
	s.logger.LogTaskAction("replace", "", map[string]interface{}{"count": len(next)})
	s.publish(entities.ChangeEvent{Kind: entities.ChangeReplaced, Removed: removed})

	return len(next), nil
}

// Stats computes summary statistics over the current tasks
func (s *TaskService) Stats() entities.Stats {
	return ComputeStats(s.List(), s.clock.Now())
}

// Sorted returns the tasks in display order
func (s *TaskService) Sorted() []entities.Task {
	return SortTasks(s.List())
}

// DueSoon returns incomplete tasks due within the reminder window after now
func (s *TaskService) DueSoon(now time.Time) []entities.Task {
	return DueSoon(s.List(), now, s.window)
}

// StartingSoon returns incomplete tasks starting within the reminder window after now
func (s *TaskService) StartingSoon(now time.Time) []entities.Task {
	return StartingSoon(s.List(), now, s.window)
}

// Overdue returns incomplete tasks whose due time has passed
func (s *TaskService) Overdue(now time.Time) []entities.Task {
	return Overdue(s.List(), now)
}

// Ping checks the storage backend
func (s *TaskService) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

// mutate applies fn to the task with id under the write lock and persists.
func (s *TaskService) mutate(ctx context.Context, id string, fn func(*entities.Task)) (*entities.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	fn(&s.tasks[i])
	s.persistLocked(ctx)

	out := s.tasks[i].Clone()
	return &out, true
}

func (s *TaskService) indexLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *TaskService) validateStruct(v interface{}) error {
	return TranslateValidation(s.validate.Struct(v))
}

// TranslateValidation turns validator errors on task requests into a
// *entities.ValidationError carrying a user-facing message.
func TranslateValidation(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate request: %w", err)
	}

	fe := verrs[0]
	switch fe.Field() {
	case "Description":
		return entities.NewValidationError("description", "Task description is required")
	case "Priority":
		return entities.NewValidationError("priority", fmt.Sprintf("Priority must be %q or %q", entities.PriorityNormal, entities.PriorityImportant))
	default:
		return entities.NewValidationError(strings.ToLower(fe.Field()), fe.Error())
	}
}

// presentTime treats an empty timestamp ("" in JSON) as absent.
func presentTime(ts *entities.Timestamp) *entities.Timestamp {
	if ts == nil || ts.IsZero() {
		return nil
	}
	return entities.NewTimestamp(ts.Time)
}

func cloned(t entities.Task) *entities.Task {
	c := t.Clone()
	return &c
}

func cloneAll(tasks []entities.Task) []entities.Task {
	out := make([]entities.Task, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Clone()
	}
	return out
}

// ClearedMessage is the user-facing summary of a ClearCompleted call
func ClearedMessage(n int) string {
	switch {
	case n == 0:
		return "No completed tasks to clear"
	case n == 1:
		return "Cleared 1 completed task"
	default:
		return fmt.Sprintf("Cleared %d completed tasks", n)
	}
}
