package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/taskmaster/taskflow/internal/infrastructure/clock"
	"github.com/taskmaster/taskflow/internal/ports"
)

// DefaultBannerDuration is how long a banner stays up unless closed.
const DefaultBannerDuration = 10 * time.Second

// Notice is the banner currently on screen.
type Notice struct {
	Message   string
	Icon      ports.BannerIcon
	ShownAt   time.Time
	ExpiresAt time.Time
}

// Banner is the in-app fallback presenter. It holds at most one notice;
// showing a new one replaces the old.
type Banner struct {
	mu       sync.Mutex
	current  *Notice
	timer    clock.Timer
	seq      int
	out      io.Writer
	clock    clock.Clock
	duration time.Duration
	style    lipgloss.Style
}

// NewBanner creates a banner that renders to out (nil to render nowhere).
func NewBanner(out io.Writer, c clock.Clock, duration time.Duration) *Banner {
	if c == nil {
		c = clock.Real{}
	}
	if duration <= 0 {
		duration = DefaultBannerDuration
	}
	return &Banner{
		out:      out,
		clock:    c,
		duration: duration,
		style: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Foreground(lipgloss.Color("230")).
			Bold(true).
			Padding(0, 1),
	}
}

// Show implements ports.BannerPresenter
func (b *Banner) Show(message string, icon ports.BannerIcon) {
	b.mu.Lock()
	b.dismissLocked()

	now := b.clock.Now()
	b.seq++
	seq := b.seq
	b.current = &Notice{
		Message:   message,
		Icon:      icon,
		ShownAt:   now,
		ExpiresAt: now.Add(b.duration),
	}
	b.timer = b.clock.AfterFunc(b.duration, func() { b.expire(seq) })
	rendered := b.render(*b.current)
	b.mu.Unlock()

	if b.out != nil {
		fmt.Fprintln(b.out, rendered)
	}
}

// Dismiss implements ports.BannerPresenter
func (b *Banner) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dismissLocked()
}

// Current returns the visible notice, if any
func (b *Banner) Current() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Notice{}, false
	}
	return *b.current, true
}

func (b *Banner) expire(seq int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seq != seq {
		return
	}
	b.current = nil
	b.timer = nil
}

func (b *Banner) dismissLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.current = nil
}

func (b *Banner) render(n Notice) string {
	return b.style.Render(Glyph(n.Icon) + "  " + n.Message)
}

// Glyph returns the symbol drawn for icon
func Glyph(icon ports.BannerIcon) string {
	switch icon {
	case ports.BannerIconBell:
		return "🔔"
	case ports.BannerIconClock:
		return "⏰"
	default:
		return "ℹ"
	}
}
