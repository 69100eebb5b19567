// Package display reads screen rotation and fullscreen state from the window
// system and reports when they change.
package display

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/example/coverpaper/internal/orient"
)

// ErrUnavailable is returned when no supported window system can be reached.
var ErrUnavailable = errors.New("display signals are not available on this platform")

var errNoMonitors = errors.New("no monitors available")

// Monitor describes one output in the screen layout.
type Monitor struct {
	Index   int
	Name    string
	Rect    image.Rectangle
	Primary bool
	// Turns is the output rotation in clockwise quarter turns.
	Turns int
}

// Label returns the orientation label the monitor is currently in.
func (m Monitor) Label() orient.Label {
	return orient.LabelForRotation(m.Turns, naturalPortrait(m.Rect.Dx(), m.Rect.Dy(), m.Turns))
}

// Option configures a Display.
type Option func(*options)

type options struct {
	viewport func() orient.Viewport
	title    string
	log      *slog.Logger
}

// WithViewport sets the function reporting the aspect of the drawing area,
// usually derived from the window size.
func WithViewport(fn func() orient.Viewport) Option {
	return func(o *options) { o.viewport = fn }
}

// WithWindowTitle sets the title of the window whose fullscreen state is
// reported. Without it the active window is checked.
func WithWindowTitle(title string) Option { return func(o *options) { o.title = title } }

// WithLogger sets the display logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// RunningOnWayland reports whether the session is a Wayland one, where X11
// signals come from XWayland and may lag behind the compositor.
func RunningOnWayland() bool {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("XDG_SESSION_TYPE")), "wayland") {
		return true
	}
	return os.Getenv("WAYLAND_DISPLAY") != ""
}

// rotation bits as reported by RandR.
const (
	rotate90  = 1 << 1
	rotate180 = 1 << 2
	rotate270 = 1 << 3
)

// quarterTurns maps a RandR rotation mask, which counts counter-clockwise, to
// clockwise quarter turns. Reflection bits are ignored.
func quarterTurns(rotation uint16) int {
	switch {
	case rotation&rotate90 != 0:
		return 3
	case rotation&rotate180 != 0:
		return 2
	case rotation&rotate270 != 0:
		return 1
	}
	return 0
}

// naturalPortrait reports whether a screen measuring w×h after turns quarter
// turns is portrait when unrotated.
func naturalPortrait(w, h, turns int) bool {
	if turns%2 == 1 {
		w, h = h, w
	}
	return w < h
}

// FindMonitor resolves a selector: empty for the first monitor, "primary",
// an index with optional '#' prefix, or part of the output name.
func FindMonitor(monitors []Monitor, selector string) (Monitor, error) {
	if len(monitors) == 0 {
		return Monitor{}, errNoMonitors
	}
	sel := strings.ToLower(strings.TrimSpace(selector))
	switch sel {
	case "":
		return monitors[0], nil
	case "primary":
		for _, mon := range monitors {
			if mon.Primary {
				return mon, nil
			}
		}
		return monitors[0], nil
	}
	if idx, err := strconv.Atoi(strings.TrimPrefix(sel, "#")); err == nil {
		if idx < 0 || idx >= len(monitors) {
			return Monitor{}, fmt.Errorf("monitor index %d out of range", idx)
		}
		return monitors[idx], nil
	}
	for _, mon := range monitors {
		if strings.Contains(strings.ToLower(mon.Name), sel) {
			return mon, nil
		}
	}
	return Monitor{}, fmt.Errorf("monitor %q not found", selector)
}

// client is a top level window as listed by the window manager.
type client struct {
	ID   uint32
	Name string
	// PID is the owning process, or zero when the window does not say.
	PID uint32
}

// ownWindow returns the first client titled title that is not known to
// belong to another process, or zero.
func ownWindow(clients []client, title string, pid int) uint32 {
	if title == "" {
		return 0
	}
	for _, c := range clients {
		if c.Name != title {
			continue
		}
		if c.PID != 0 && int(c.PID) != pid {
			continue
		}
		return c.ID
	}
	return 0
}

// foreign reports whether a window owned by windowPID belongs to another
// process. An unknown owner is not foreign.
func foreign(windowPID uint32, pid int) bool {
	return windowPID != 0 && int(windowPID) != pid
}
