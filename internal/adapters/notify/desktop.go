package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/taskmaster/taskflow/internal/infrastructure/logger"
	"github.com/taskmaster/taskflow/internal/ports"
)

// ErrUnavailable is returned by Notify when native notifications cannot be shown.
var ErrUnavailable = errors.New("native notifications unavailable")

const appName = "taskflow"

// Desktop shows native notifications through the platform notifier binary:
// notify-send on Linux, osascript on macOS. Permission is granted once the
// binary has been found on PATH.
type Desktop struct {
	mu    sync.Mutex
	state ports.Permission

	enabled  bool
	goos     string
	lookPath func(file string) (string, error)
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
	logger   *logger.Logger
}

// NewDesktop creates a desktop notifier. A disabled notifier always reports denied.
func NewDesktop(enabled bool, logger *logger.Logger) *Desktop {
	d := &Desktop{
		state:    ports.PermissionDefault,
		enabled:  enabled,
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		run:      runCommand,
		logger:   logger.WithComponent("notify"),
	}
	if !enabled {
		d.state = ports.PermissionDenied
	}
	return d
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// PermissionState implements ports.Notifier
func (d *Desktop) PermissionState() ports.Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// RequestPermission probes for the notifier binary in the background.
// The returned channel receives exactly one value.
func (d *Desktop) RequestPermission(ctx context.Context) <-chan ports.Permission {
	result := make(chan ports.Permission, 1)

	d.mu.Lock()
	state := d.state
	d.mu.Unlock()
	if state != ports.PermissionDefault {
		result <- state
		return result
	}

	go func() {
		p := d.probe()
		if ctx.Err() != nil {
			p = ports.PermissionDefault
		}

		d.mu.Lock()
		if d.state == ports.PermissionDefault {
			d.state = p
		}
		p = d.state
		d.mu.Unlock()

		result <- p
	}()

	return result
}

func (d *Desktop) probe() ports.Permission {
	bin := d.binary()
	if bin == "" {
		d.logger.Infow("No native notifier for platform", "os", d.goos)
		return ports.PermissionDenied
	}
	if _, err := d.lookPath(bin); err != nil {
		d.logger.Infow("Native notifier not found", "binary", bin, "error", err)
		return ports.PermissionDenied
	}
	return ports.PermissionGranted
}

func (d *Desktop) binary() string {
	switch d.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send"
	case "darwin":
		return "osascript"
	default:
		return ""
	}
}

// Notify implements ports.Notifier. Notifications sharing a tag replace
// each other where the platform supports it.
func (d *Desktop) Notify(ctx context.Context, title, body, tag string) error {
	if d.PermissionState() != ports.PermissionGranted {
		return ErrUnavailable
	}

	name, args := d.command(title, body, tag)
	out, err := d.run(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (d *Desktop) command(title, body, tag string) (string, []string) {
	if d.goos == "darwin" {
		script := fmt.Sprintf("display notification %s with title %s",
			appleScriptQuote(body), appleScriptQuote(title))
		return "osascript", []string{"-e", script}
	}
	return "notify-send", []string{
		"--app-name=" + appName,
		"--hint=string:x-canonical-private-synchronous:" + tag,
		title,
		body,
	}
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
