package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/taskmaster/taskflow/internal/domain/entities"
	"github.com/taskmaster/taskflow/internal/infrastructure/clock"
	"github.com/taskmaster/taskflow/internal/infrastructure/logger"
	"github.com/taskmaster/taskflow/internal/infrastructure/metrics"
	"github.com/taskmaster/taskflow/internal/ports"
)

const (
	// DefaultPollInterval is how often the scheduler rescans the store.
	DefaultPollInterval = 30 * time.Second

	defaultNotifyTimeout = 5 * time.Second
	reminderTitle        = "Task Reminder"
)

// ReminderSource is the read-only view of the task store the scheduler needs.
type ReminderSource interface {
	DueSoon(now time.Time) []entities.Task
	StartingSoon(now time.Time) []entities.Task
	Get(id string) (*entities.Task, bool)
	Window() time.Duration
	Subscribe(fn func(entities.ChangeEvent)) func()
}

type armedReminder struct {
	key         entities.ReminderKey
	target      time.Time
	description string
	timer       clock.Timer
}

// ReminderService arms one-shot timers for tasks entering their reminder
// window and dispatches each (task, event) alert at most once.
type ReminderService struct {
	source        ReminderSource
	notifier      ports.Notifier
	banner        ports.BannerPresenter
	clock         clock.Clock
	logger        *logger.Logger
	metrics       *metrics.Metrics
	interval      time.Duration
	notifyTimeout time.Duration

	mu          sync.Mutex
	armed       map[entities.ReminderKey]*armedReminder
	started     bool
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()
}

// ReminderOption configures a ReminderService
type ReminderOption func(*ReminderService)

// WithReminderClock overrides the wall clock and timers
func WithReminderClock(c clock.Clock) ReminderOption {
	return func(s *ReminderService) { s.clock = c }
}

// WithPollInterval sets the rescan interval
func WithPollInterval(d time.Duration) ReminderOption {
	return func(s *ReminderService) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithNotifyTimeout bounds each native notification call
func WithNotifyTimeout(d time.Duration) ReminderOption {
	return func(s *ReminderService) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithReminderMetrics records armed and dispatched reminders
func WithReminderMetrics(m *metrics.Metrics) ReminderOption {
	return func(s *ReminderService) { s.metrics = m }
}

// NewReminderService creates a scheduler. notifier may be nil, in which case
// every reminder goes to the banner.
func NewReminderService(source ReminderSource, notifier ports.Notifier, banner ports.BannerPresenter, logger *logger.Logger, opts ...ReminderOption) *ReminderService {
	s := &ReminderService{
		source:        source,
		notifier:      notifier,
		banner:        banner,
		clock:         clock.Real{},
		logger:        logger.WithComponent("reminders"),
		interval:      DefaultPollInterval,
		notifyTimeout: defaultNotifyTimeout,
		armed:         map[entities.ReminderKey]*armedReminder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start requests notification permission if undecided, scans once, and then
// rescans every poll interval until ctx is done or Stop is called. Only the
// first call has any effect.
func (s *ReminderService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.unsubscribe = s.source.Subscribe(s.handleChange)
	ticker := s.clock.NewTicker(s.interval)
	s.mu.Unlock()

	s.requestPermission(loopCtx)

	armed := s.Scan(s.clock.Now())
	s.logger.Infow("Reminder scheduler started", "poll_interval", s.interval, "armed", armed)

	go s.loop(loopCtx, ticker)
}

func (s *ReminderService) loop(ctx context.Context, ticker clock.Ticker) {
	defer close(s.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.Scan(s.clock.Now())
		}
	}
}

// requestPermission asks the host once, without blocking. Scans that run
// before the answer arrives dispatch through the banner.
func (s *ReminderService) requestPermission(ctx context.Context) {
	if s.notifier == nil || s.notifier.PermissionState() != ports.PermissionDefault {
		return
	}

	result := s.notifier.RequestPermission(ctx)
	go func() {
		select {
		case p := <-result:
			s.logger.Infow("Notification permission resolved", "permission", p)
		case <-ctx.Done():
		}
	}()
}

// Stop halts the scan loop and cancels every pending reminder.
func (s *ReminderService) Stop() {
	s.mu.Lock()
	cancel, done, unsubscribe := s.cancel, s.done, s.unsubscribe
	s.cancel, s.unsubscribe = nil, nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
		<-done
	}

	if n := s.CancelAll(); n > 0 {
		s.logger.Infow("Cancelled pending reminders", "count", n)
	}
}

// Scan arms reminders for every task currently due or starting soon and
// returns how many were newly armed. Task data is always re-queried.
func (s *ReminderService) Scan(now time.Time) int {
	armed := 0
	for _, t := range s.source.DueSoon(now) {
		if s.armChecked(t, entities.EventDue, now) {
			armed++
		}
	}
	for _, t := range s.source.StartingSoon(now) {
		if s.armChecked(t, entities.EventStart, now) {
			armed++
		}
	}
	return armed
}

// armChecked arms from a snapshot, then confirms the task is still
// schedulable. The store changes state before publishing, so a delete or
// completion that slipped in after the snapshot is either seen here or
// followed by its own cancellation.
func (s *ReminderService) armChecked(task entities.Task, event entities.EventType, now time.Time) bool {
	if !s.Arm(task, event, now) {
		return false
	}

	target := TargetTime(&task, event)
	if s.stillScheduled(task.ID, event, *target) {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entities.ReminderKey{TaskID: task.ID, Event: event}
	if r, ok := s.armed[key]; ok && r.target.Equal(*target) {
		s.cancelLocked(key)
	}
	return false
}

// stillScheduled reports whether the store still has an incomplete task
// with id whose event time is target.
func (s *ReminderService) stillScheduled(id string, event entities.EventType, target time.Time) bool {
	task, ok := s.source.Get(id)
	if !ok || task.Completed {
		return false
	}
	current := TargetTime(task, event)
	return current != nil && current.Equal(target)
}

// Arm schedules the reminder for (task, event) unless one with the same
// target is already pending. A pending reminder whose target moved is
// re-armed. Returns true when a timer was started.
func (s *ReminderService) Arm(task entities.Task, event entities.EventType, now time.Time) bool {
	target := TargetTime(&task, event)
	if target == nil {
		return false
	}

	delay := target.Sub(now)
	if delay <= 0 || delay > s.source.Window() {
		return false
	}

	key := entities.ReminderKey{TaskID: task.ID, Event: event}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.armed[key]; ok {
		if r.target.Equal(*target) {
			r.description = task.Description
			return false
		}
		r.timer.Stop()
		delete(s.armed, key)
		s.logger.LogReminder("rescheduled", key.TaskID, string(key.Event), "old_target", r.target, "new_target", *target)
	}

	r := &armedReminder{key: key, target: *target, description: task.Description}
	r.timer = s.clock.AfterFunc(delay, func() { s.fire(r) })
	s.armed[key] = r
	s.metrics.SetArmed(len(s.armed))

	s.logger.LogReminder("armed", key.TaskID, string(key.Event), "delay", delay)
	return true
}

// Cancel removes the pending reminder for (taskID, event) if any.
func (s *ReminderService) Cancel(taskID string, event entities.EventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(entities.ReminderKey{TaskID: taskID, Event: event})
}

// CancelTask removes every pending reminder for taskID.
func (s *ReminderService) CancelTask(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, event := range []entities.EventType{entities.EventStart, entities.EventDue} {
		if s.cancelLocked(entities.ReminderKey{TaskID: taskID, Event: event}) {
			n++
		}
	}
	return n
}

// CancelAll removes every pending reminder.
func (s *ReminderService) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.armed)
	for key := range s.armed {
		s.cancelLocked(key)
	}
	return n
}

func (s *ReminderService) cancelLocked(key entities.ReminderKey) bool {
	r, ok := s.armed[key]
	if !ok {
		return false
	}
	r.timer.Stop()
	delete(s.armed, key)
	s.metrics.SetArmed(len(s.armed))
	s.logger.LogReminder("cancelled", key.TaskID, string(key.Event))
	return true
}

// Pending returns the keys of all armed reminders, ordered by task id then event.
func (s *ReminderService) Pending() []entities.ReminderKey {
	s.mu.Lock()
	keys := make([]entities.ReminderKey, 0, len(s.armed))
	for key := range s.armed {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TaskID != keys[j].TaskID {
			return keys[i].TaskID < keys[j].TaskID
		}
		return keys[i].Event < keys[j].Event
	})
	return keys
}

// handleChange keeps armed reminders consistent with store mutations.
func (s *ReminderService) handleChange(ev entities.ChangeEvent) {
	switch ev.Kind {
	case entities.ChangeDeleted, entities.ChangeCompleted:
		s.CancelTask(ev.TaskID)
	case entities.ChangeCleared:
		for _, id := range ev.Removed {
			s.CancelTask(id)
		}
	case entities.ChangeReplaced:
		s.CancelAll()
		s.Scan(s.clock.Now())
	case entities.ChangeUpdated:
		if ev.Task != nil {
			s.dropStale(ev.Task)
		}
		s.Scan(s.clock.Now())
	case entities.ChangeAdded, entities.ChangeReopened:
		s.Scan(s.clock.Now())
	}
}

// dropStale cancels reminders whose task no longer has the armed target time.
func (s *ReminderService) dropStale(task *entities.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range []entities.EventType{entities.EventStart, entities.EventDue} {
		key := entities.ReminderKey{TaskID: task.ID, Event: event}
		r, ok := s.armed[key]
		if !ok {
			continue
		}
		if target := TargetTime(task, event); target == nil || !target.Equal(r.target) {
			s.cancelLocked(key)
		}
	}
}

func (s *ReminderService) fire(r *armedReminder) {
	s.mu.Lock()
	if cur, ok := s.armed[r.key]; !ok || cur != r {
		// cancelled or superseded after the timer was already running
		s.mu.Unlock()
		return
	}
	delete(s.armed, r.key)
	description := r.description
	s.metrics.SetArmed(len(s.armed))
	s.mu.Unlock()

	if !s.stillScheduled(r.key.TaskID, r.key.Event, r.target) {
		s.logger.LogReminder("dropped", r.key.TaskID, string(r.key.Event))
		return
	}

	s.logger.LogReminder("fired", r.key.TaskID, string(r.key.Event))
	s.dispatch(r.key, description)
}

// dispatch never fails: any native notification problem falls back to the banner.
func (s *ReminderService) dispatch(key entities.ReminderKey, description string) {
	body := ReminderMessage(description, key.Event)

	if s.notifier != nil && s.notifier.PermissionState() == ports.PermissionGranted {
		err := s.notifyNative(body, key.String())
		if err == nil {
			s.metrics.Dispatched("native")
			return
		}
		s.logger.Warnw("Native notification failed, using banner", "task_id", key.TaskID, "error", err)
	}

	icon := ports.BannerIconBell
	if key.Event == entities.EventStart {
		icon = ports.BannerIconClock
	}
	s.banner.Show(body, icon)
	s.metrics.Dispatched("banner")
}

func (s *ReminderService) notifyNative(body, tag string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("notifier panicked: %v", p)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
	defer cancel()
	return s.notifier.Notify(ctx, reminderTitle, body, tag)
}

// ReminderMessage is the text shown when a reminder fires.
func ReminderMessage(description string, event entities.EventType) string {
	if event == entities.EventStart {
		return fmt.Sprintf("%q is starting now!", description)
	}
	return fmt.Sprintf("%q is due now!", description)
}
