package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/taskflow/internal/infrastructure/clock"
	"github.com/taskmaster/taskflow/internal/infrastructure/logger"
	"github.com/taskmaster/taskflow/internal/ports"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestDesktop(goos string, found bool) (*Desktop, *[][]string) {
	var calls [][]string
	d := NewDesktop(true, logger.NewNop())
	d.goos = goos
	d.lookPath = func(file string) (string, error) {
		if !found {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + file, nil
	}
	d.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		return nil, nil
	}
	return d, &calls
}

func TestDesktop_PermissionLifecycle(t *testing.T) {
	d, _ := newTestDesktop("linux", true)
	assert.Equal(t, ports.PermissionDefault, d.PermissionState())

	p := <-d.RequestPermission(context.Background())
	assert.Equal(t, ports.PermissionGranted, p)
	assert.Equal(t, ports.PermissionGranted, d.PermissionState())

	// already decided: answered immediately
	assert.Equal(t, ports.PermissionGranted, <-d.RequestPermission(context.Background()))
}

func TestDesktop_MissingBinaryDenies(t *testing.T) {
	d, calls := newTestDesktop("linux", false)

	assert.Equal(t, ports.PermissionDenied, <-d.RequestPermission(context.Background()))
	assert.ErrorIs(t, d.Notify(context.Background(), "t", "b", "x:due"), ErrUnavailable)
	assert.Empty(t, *calls)
}

func TestDesktop_Disabled(t *testing.T) {
	d := NewDesktop(false, logger.NewNop())
	assert.Equal(t, ports.PermissionDenied, d.PermissionState())
	assert.Equal(t, ports.PermissionDenied, <-d.RequestPermission(context.Background()))
}

func TestDesktop_NotifyLinux(t *testing.T) {
	d, calls := newTestDesktop("linux", true)
	<-d.RequestPermission(context.Background())

	require.NoError(t, d.Notify(context.Background(), "Task Reminder", `"Pay rent" is due now!`, "abc:due"))
	require.Len(t, *calls, 1)
	assert.Equal(t, []string{
		"notify-send",
		"--app-name=taskflow",
		"--hint=string:x-canonical-private-synchronous:abc:due",
		"Task Reminder",
		`"Pay rent" is due now!`,
	}, (*calls)[0])
}

func TestDesktop_NotifyDarwinQuotes(t *testing.T) {
	d, calls := newTestDesktop("darwin", true)
	<-d.RequestPermission(context.Background())

	require.NoError(t, d.Notify(context.Background(), "Task Reminder", `"Pay rent" is due now!`, "abc:due"))
	require.Len(t, *calls, 1)
	assert.Equal(t, "osascript", (*calls)[0][0])
	assert.Equal(t, `display notification "\"Pay rent\" is due now!" with title "Task Reminder"`, (*calls)[0][2])
}

func TestDesktop_NotifyCommandFailure(t *testing.T) {
	d, _ := newTestDesktop("linux", true)
	<-d.RequestPermission(context.Background())
	d.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("no bus"), errors.New("exit status 1")
	}

	err := d.Notify(context.Background(), "t", "b", "x:due")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bus")
}

func TestNop(t *testing.T) {
	var n Nop
	assert.Equal(t, ports.PermissionDenied, n.PermissionState())
	assert.Equal(t, ports.PermissionDenied, <-n.RequestPermission(context.Background()))
	assert.ErrorIs(t, n.Notify(context.Background(), "", "", ""), ErrUnavailable)
}

func TestBanner_ShowAndAutoDismiss(t *testing.T) {
	fc := clock.NewFake(t0)
	var out bytes.Buffer
	b := NewBanner(&out, fc, 10*time.Second)

	b.Show(`"Pay rent" is due now!`, ports.BannerIconBell)

	n, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, `"Pay rent" is due now!`, n.Message)
	assert.Equal(t, t0.Add(10*time.Second), n.ExpiresAt)
	assert.Contains(t, out.String(), "Pay rent")

	fc.Advance(9 * time.Second)
	_, ok = b.Current()
	assert.True(t, ok)

	fc.Advance(time.Second)
	_, ok = b.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, fc.Pending())
}

func TestBanner_SingleBanner(t *testing.T) {
	fc := clock.NewFake(t0)
	b := NewBanner(nil, fc, 10*time.Second)

	b.Show("first", ports.BannerIconBell)
	fc.Advance(5 * time.Second)
	b.Show("second", ports.BannerIconClock)

	n, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, "second", n.Message)
	assert.Equal(t, 1, fc.Pending(), "old auto-dismiss timer must be cancelled")

	// the first banner's deadline passes without affecting the second
	fc.Advance(5 * time.Second)
	_, ok = b.Current()
	assert.True(t, ok)

	fc.Advance(5 * time.Second)
	_, ok = b.Current()
	assert.False(t, ok)
}

func TestBanner_ManualDismiss(t *testing.T) {
	fc := clock.NewFake(t0)
	b := NewBanner(nil, fc, 0)

	b.Show("hello", ports.BannerIconInfo)
	b.Dismiss()

	_, ok := b.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, fc.Pending())

	// dismissing again is harmless
	b.Dismiss()
}
