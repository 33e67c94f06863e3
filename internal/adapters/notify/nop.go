package notify

import (
	"context"

	"github.com/taskmaster/taskflow/internal/ports"
)

// Nop never shows native notifications; every reminder goes to the banner.
type Nop struct{}

func (Nop) PermissionState() ports.Permission { return ports.PermissionDenied }

func (Nop) RequestPermission(context.Context) <-chan ports.Permission {
	ch := make(chan ports.Permission, 1)
	ch <- ports.PermissionDenied
	return ch
}

func (Nop) Notify(context.Context, string, string, string) error { return ErrUnavailable }
