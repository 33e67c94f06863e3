package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/taskflow/internal/domain/entities"
	"github.com/taskmaster/taskflow/internal/infrastructure/clock"
	"github.com/taskmaster/taskflow/internal/infrastructure/logger"
	"github.com/taskmaster/taskflow/internal/ports"
)

type reminderFixture struct {
	clock    *clock.Fake
	store    *TaskService
	notifier *fakeNotifier
	banner   *fakeBanner
	svc      *ReminderService
}

func newReminderFixture(t *testing.T, answer ports.Permission, opts ...ReminderOption) *reminderFixture {
	t.Helper()

	f := &reminderFixture{
		clock:    clock.NewFake(t0),
		notifier: &fakeNotifier{permission: ports.PermissionDefault, answer: answer},
		banner:   &fakeBanner{},
	}
	f.store = newTestStore(newMemStore(), f.clock)

	opts = append([]ReminderOption{
		WithReminderClock(f.clock),
		WithPollInterval(24 * time.Hour),
	}, opts...)
	f.svc = NewReminderService(f.store, f.notifier, f.banner, logger.NewNop(), opts...)
	t.Cleanup(f.svc.Stop)

	return f
}

func (f *reminderFixture) add(t *testing.T, desc string, start, end time.Duration) *entities.Task {
	t.Helper()
	req := ports.CreateTaskRequest{Description: desc}
	if start != 0 {
		req.StartDateTime = ts(t0.Add(start))
	}
	if end != 0 {
		req.EndDateTime = ts(t0.Add(end))
	}
	return mustAdd(t, f.store, req)
}

func keysOf(svc *ReminderService) []string {
	var out []string
	for _, k := range svc.Pending() {
		out = append(out, k.String())
	}
	return out
}

func TestReminderService_StartIsIdempotent(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted)
	x := f.add(t, "Pay rent", 10*time.Minute, 30*time.Minute)

	f.svc.Start(context.Background())
	f.svc.Start(context.Background())

	assert.Equal(t, []string{x.ID + ":due", x.ID + ":start"}, keysOf(f.svc))
	assert.Equal(t, 2, f.clock.Pending())
	assert.Equal(t, 1, f.notifier.requests, "permission is requested once")

	assert.Equal(t, 0, f.svc.Scan(f.clock.Now()), "rescanning arms nothing new")
	assert.Equal(t, 2, f.clock.Pending())
}

func TestReminderService_DispatchesNativeWhenGranted(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted)
	x := f.add(t, "Pay rent", 10*time.Minute, 30*time.Minute)
	f.svc.Start(context.Background())

	f.clock.Advance(10 * time.Minute)
	assert.Equal(t, []string{x.ID + `:start "Pay rent" is starting now!`}, f.notifier.Sent())

	f.clock.Advance(20 * time.Minute)
	assert.Equal(t, []string{
		x.ID + `:start "Pay rent" is starting now!`,
		x.ID + `:due "Pay rent" is due now!`,
	}, f.notifier.Sent())

	assert.Empty(t, f.banner.Shown())
	assert.Empty(t, f.svc.Pending(), "fired keys are removed")

	// a fired reminder is gone for good once its time has passed
	assert.Equal(t, 0, f.svc.Scan(f.clock.Now()))
}

func TestReminderService_FallsBackToBanner(t *testing.T) {
	t.Run("permission denied", func(t *testing.T) {
		f := newReminderFixture(t, ports.PermissionDenied)
		f.add(t, "Pay rent", 0, 30*time.Minute)
		f.svc.Start(context.Background())

		f.clock.Advance(30 * time.Minute)
		assert.Empty(t, f.notifier.Sent())
		assert.Equal(t, []string{`"Pay rent" is due now!`}, f.banner.Shown())
		assert.Equal(t, []ports.BannerIcon{ports.BannerIconBell}, f.banner.icons)
	})

	t.Run("notify error", func(t *testing.T) {
		f := newReminderFixture(t, ports.PermissionGranted)
		f.notifier.err = errors.New("dbus unavailable")
		f.add(t, "Standup", 5*time.Minute, 0)
		f.svc.Start(context.Background())

		f.clock.Advance(5 * time.Minute)
		assert.Equal(t, []string{`"Standup" is starting now!`}, f.banner.Shown())
		assert.Equal(t, []ports.BannerIcon{ports.BannerIconClock}, f.banner.icons)
	})

	t.Run("no notifier", func(t *testing.T) {
		fc := clock.NewFake(t0)
		store := newTestStore(newMemStore(), fc)
		banner := &fakeBanner{}
		svc := NewReminderService(store, nil, banner, logger.NewNop(), WithReminderClock(fc))

		task := mustAdd(t, store, ports.CreateTaskRequest{Description: "Call", EndDateTime: ts(t0.Add(time.Minute))})
		require.True(t, svc.Arm(*task, entities.EventDue, fc.Now()))

		fc.Advance(time.Minute)
		assert.Equal(t, []string{`"Call" is due now!`}, banner.Shown())
	})
}

func TestReminderService_WindowBounds(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted)
	in := f.add(t, "in", 0, 30*time.Minute)
	f.add(t, "out", 0, 90*time.Minute)
	done := f.add(t, "done", 0, 10*time.Minute)
	f.store.ToggleComplete(context.Background(), done.ID)
	f.add(t, "past", 0, -time.Minute)

	assert.Equal(t, 1, f.svc.Scan(t0))
	assert.Equal(t, []string{in.ID + ":due"}, keysOf(f.svc))

	past, _ := f.store.Get(in.ID)
	assert.False(t, f.svc.Arm(*past, entities.EventDue, t0.Add(time.Hour)), "past targets are never armed")
	assert.False(t, f.svc.Arm(*past, entities.EventStart, t0), "no start time")
}

func TestReminderService_CancelOnDelete(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted)
	x := f.add(t, "Pay rent", 10*time.Minute, 30*time.Minute)
	f.svc.Start(context.Background())
	require.Len(t, f.svc.Pending(), 2)

	require.True(t, f.store.Delete(context.Background(), x.ID))
	assert.Empty(t, f.svc.Pending())
	assert.Equal(t, 0, f.clock.Pending())

	f.clock.Advance(time.Hour)
	assert.Empty(t, f.notifier.Sent())
	assert.Empty(t, f.banner.Shown())
}

func TestReminderService_CancelOnCompleteAndClear(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted)
	ctx := context.Background()
	a := f.add(t, "a", 0, 20*time.Minute)
	b := f.add(t, "b", 0, 40*time.Minute)
	f.svc.Start(ctx)
	require.Len(t, f.svc.Pending(), 2)

	f.store.ToggleComplete(ctx, a.ID)
	assert.Equal(t, []string{b.ID + ":due"}, keysOf(f.svc))

	// reopening re-arms
	f.store.ToggleComplete(ctx, a.ID)
	assert.Len(t, f.svc.Pending(), 2)

	f.store.ToggleComplete(ctx, a.ID)
	f.store.ToggleComplete(ctx, b.ID)
	f.store.ClearCompleted(ctx)
	assert.Empty(t, f.svc.Pending())

	f.clock.Advance(time.Hour)
	assert.Empty(t, f.notifier.Sent())
}

// deletingSource removes a task right after handing out a DueSoon snapshot
// that still contains it.
type deletingSource struct {
	*TaskService
	victim string
	once   sync.Once
}

func (d *deletingSource) DueSoon(now time.Time) []entities.Task {
	snapshot := d.TaskService.DueSoon(now)
	d.once.Do(func() {
		d.TaskService.Delete(context.Background(), d.victim)
	})
	return snapshot
}

func TestReminderService_DeleteDuringScanLeavesNothingArmed(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted)
	gone := f.add(t, "Gone", 0, 30*time.Minute)
	kept := f.add(t, "Kept", 0, 40*time.Minute)

	src := &deletingSource{TaskService: f.store, victim: gone.ID}
	svc := NewReminderService(src, f.notifier, f.banner, logger.NewNop(),
		WithReminderClock(f.clock), WithPollInterval(24*time.Hour))
	t.Cleanup(svc.Stop)

	svc.Start(context.Background())

	_, exists := f.store.Get(gone.ID)
	require.False(t, exists)
	assert.Equal(t, []string{kept.ID + ":due"}, keysOf(svc))

	f.clock.Advance(31 * time.Minute)
	assert.Empty(t, f.notifier.Sent())
	assert.Empty(t, f.banner.Shown())

	f.clock.Advance(10 * time.Minute)
	assert.Equal(t, []string{kept.ID + `:due "Kept" is due now!`}, f.notifier.Sent())
}

func TestReminderService_FireRechecksStore(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionDenied)
	ctx := context.Background()
	done := f.add(t, "done", 0, 10*time.Minute)
	moved := f.add(t, "moved", 0, 20*time.Minute)
	gone := f.add(t, "gone", 0, 30*time.Minute)

	// not started, so the scheduler never hears about the changes below
	require.Equal(t, 3, f.svc.Scan(t0))
	f.store.ToggleComplete(ctx, done.ID)
	_, _, err := f.store.Update(ctx, moved.ID, ports.UpdateTaskRequest{EndDateTime: ts(t0.Add(50 * time.Minute))})
	require.NoError(t, err)
	f.store.Delete(ctx, gone.ID)

	f.clock.Advance(45 * time.Minute)
	assert.Empty(t, f.banner.Shown())
	assert.Empty(t, f.svc.Pending())
}

func TestReminderService_AddedTaskArmsImmediately(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted)
	f.svc.Start(context.Background())
	assert.Empty(t, f.svc.Pending())

	x := f.add(t, "new", 0, 15*time.Minute)
	assert.Equal(t, []string{x.ID + ":due"}, keysOf(f.svc))
}

func TestReminderService_RescheduleReArms(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted)
	ctx := context.Background()
	x := f.add(t, "moving", 0, 30*time.Minute)
	f.svc.Start(ctx)

	_, _, err := f.store.Update(ctx, x.ID, ports.UpdateTaskRequest{EndDateTime: ts(t0.Add(45 * time.Minute))})
	require.NoError(t, err)
	assert.Equal(t, 1, f.clock.Pending())

	f.clock.Advance(30 * time.Minute)
	assert.Empty(t, f.notifier.Sent(), "old target must not fire")

	f.clock.Advance(15 * time.Minute)
	assert.Len(t, f.notifier.Sent(), 1)
}

func TestReminderService_RescheduleOutOfWindowCancels(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted)
	ctx := context.Background()
	x := f.add(t, "postponed", 0, 30*time.Minute)
	f.svc.Start(ctx)
	require.Len(t, f.svc.Pending(), 1)

	_, _, err := f.store.Update(ctx, x.ID, ports.UpdateTaskRequest{EndDateTime: ts(t0.Add(3 * time.Hour))})
	require.NoError(t, err)
	assert.Empty(t, f.svc.Pending())

	f.clock.Advance(time.Hour)
	assert.Empty(t, f.notifier.Sent())
}

func TestReminderService_UsesLatestDescription(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted)
	ctx := context.Background()
	x := f.add(t, "draft", 0, 30*time.Minute)
	f.svc.Start(ctx)

	_, _, err := f.store.Update(ctx, x.ID, ports.UpdateTaskRequest{Description: strPtr("final")})
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	assert.Equal(t, []string{x.ID + `:due "final" is due now!`}, f.notifier.Sent())
}

func TestReminderService_PeriodicScan(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted, WithPollInterval(time.Minute))
	f.add(t, "later", 0, 90*time.Minute)
	f.svc.Start(context.Background())
	require.Empty(t, f.svc.Pending())

	f.clock.Advance(31 * time.Minute)
	assert.Eventually(t, func() bool {
		return len(f.svc.Pending()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestReminderService_StopCancelsEverything(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted)
	f.add(t, "a", 5*time.Minute, 20*time.Minute)
	f.svc.Start(context.Background())
	require.Len(t, f.svc.Pending(), 2)

	f.svc.Stop()
	assert.Empty(t, f.svc.Pending())
	assert.Equal(t, 0, f.clock.Pending())

	// no longer subscribed
	f.add(t, "b", 0, 10*time.Minute)
	assert.Empty(t, f.svc.Pending())

	f.svc.Stop()
}

func TestReminderService_CancelAPI(t *testing.T) {
	f := newReminderFixture(t, ports.PermissionGranted)
	a := f.add(t, "a", 5*time.Minute, 20*time.Minute)
	f.add(t, "b", 0, 25*time.Minute)
	require.Equal(t, 3, f.svc.Scan(t0))

	assert.True(t, f.svc.Cancel(a.ID, entities.EventStart))
	assert.False(t, f.svc.Cancel(a.ID, entities.EventStart))
	assert.Equal(t, 1, f.svc.CancelTask(a.ID))
	assert.Equal(t, 1, f.svc.CancelAll())
	assert.Equal(t, 0, f.clock.Pending())
}

func TestReminderMessage(t *testing.T) {
	assert.Equal(t, `"Pay rent" is due now!`, ReminderMessage("Pay rent", entities.EventDue))
	assert.Equal(t, `"Standup" is starting now!`, ReminderMessage("Standup", entities.EventStart))
}
