// Package appstate hosts a surface in a shiny window and maps window events
// to surface signals.
package appstate

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/shiny/driver"
	"golang.org/x/exp/shiny/screen"
	"golang.org/x/mobile/event/key"
	"golang.org/x/mobile/event/lifecycle"
	"golang.org/x/mobile/event/paint"
	"golang.org/x/mobile/event/size"

	"github.com/example/coverpaper/internal/clipboard"
	"github.com/example/coverpaper/internal/load"
	"github.com/example/coverpaper/internal/logging"
	"github.com/example/coverpaper/internal/notify"
	"github.com/example/coverpaper/internal/orient"
	"github.com/example/coverpaper/internal/surface"
)

const messageDuration = 2 * time.Second

// Action is a command bound to a key.
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionPaste
	ActionCopy
	ActionReload
)

// ActionForKey returns the action bound to a key press.
func ActionForKey(e key.Event) Action {
	if e.Direction != key.DirPress {
		return ActionNone
	}
	if e.Code == key.CodeEscape {
		return ActionQuit
	}
	switch e.Rune {
	case 'q', 'Q':
		return ActionQuit
	case 'v', 'V':
		return ActionPaste
	case 'c', 'C':
		return ActionCopy
	case 'r', 'R':
		return ActionReload
	}
	return ActionNone
}

// AppState holds the window configuration and the surface it shows.
type AppState struct {
	Title  string
	Width  int
	Height int

	controller *surface.Controller
	notifier   *notify.Notifier
	writeClip  func(image.Image) error
	present    *presenter
	log        *slog.Logger

	viewport atomic.Int32

	onClose   func()
	closeOnce sync.Once
}

// Option modifies an AppState during creation.
type Option func(*AppState)

// WithTitle sets the window title.
func WithTitle(title string) Option { return func(a *AppState) { a.Title = title } }

// WithSize sets the initial window size.
func WithSize(w, h int) Option { return func(a *AppState) { a.Width, a.Height = w, h } }

// WithNotifier sets the notifier used for clipboard copies.
func WithNotifier(n *notify.Notifier) Option { return func(a *AppState) { a.notifier = n } }

// WithOnClose registers a callback invoked when the window closes.
func WithOnClose(fn func()) Option { return func(a *AppState) { a.onClose = fn } }

// WithLogger sets the window logger.
func WithLogger(l *slog.Logger) Option { return func(a *AppState) { a.log = l } }

// New creates an AppState with the provided options.
func New(opts ...Option) *AppState {
	a := &AppState{
		Title:     "Coverpaper",
		Width:     1024,
		Height:    768,
		writeClip: clipboard.WriteImage,
		present:   &presenter{},
	}
	for _, o := range opts {
		o(a)
	}
	a.log = logging.OrNop(a.log)
	a.present.log = a.log
	a.viewport.Store(int32(orient.ViewportFor(a.Width, a.Height)))
	return a
}

// SetController sets the controller driven by window events. It must be
// called before Run.
func (a *AppState) SetController(c *surface.Controller) { a.controller = c }

// Presenter returns the presenter surfaces shown in this window draw to.
func (a *AppState) Presenter() surface.Presenter { return a.present }

// Viewport returns the aspect of the window's drawing area.
func (a *AppState) Viewport() orient.Viewport {
	return orient.Viewport(a.viewport.Load())
}

func (a *AppState) notifyClose() {
	a.closeOnce.Do(func() {
		if a.onClose != nil {
			a.onClose()
		}
	})
}

// Run executes the UI loop using shiny's driver. It returns when the window
// is closed.
func (a *AppState) Run(ctx context.Context) {
	driver.Main(func(s screen.Screen) { a.Main(ctx, s) })
}

// Main runs the event loop on s.
func (a *AppState) Main(ctx context.Context, s screen.Screen) {
	defer a.notifyClose()

	w, err := s.NewWindow(&screen.NewWindowOptions{Width: a.Width, Height: a.Height, Title: a.Title})
	if err != nil {
		a.log.Error("new window", "err", err)
		return
	}
	defer w.Release()

	a.present.attach(s, w)
	defer a.present.detach()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.Send(lifecycle.Event{To: lifecycle.StageDead})
		case <-done:
		}
	}()

	for {
		switch e := w.NextEvent().(type) {
		case lifecycle.Event:
			if e.To == lifecycle.StageDead {
				a.detach()
				return
			}
			if e.Crosses(lifecycle.StageVisible) == lifecycle.CrossOn {
				a.invalidate()
			}
		case size.Event:
			a.resize(e)
		case paint.Event:
			if !e.External {
				continue
			}
			a.invalidate()
		case key.Event:
			if a.handleKey(ctx, ActionForKey(e)) {
				a.detach()
				return
			}
		case error:
			a.log.Error("window event", "err", e)
		}
	}
}

func (a *AppState) resize(e size.Event) {
	a.viewport.Store(int32(orient.ViewportFor(e.WidthPx, e.HeightPx)))
	a.log.Debug("window resized", "width", e.WidthPx, "height", e.HeightPx, "ppt", e.PixelsPerPt)
	if a.controller != nil {
		a.controller.ResizeDevice(image.Pt(e.WidthPx, e.HeightPx))
	}
}

// handleKey runs the action and reports whether the window should close.
func (a *AppState) handleKey(ctx context.Context, act Action) bool {
	switch act {
	case ActionQuit:
		return true
	case ActionPaste:
		if a.controller != nil {
			a.flash("Pasting image")
			a.controller.SetSource(ctx, load.NewRef(load.ClipboardLocation), true)
		}
	case ActionCopy:
		a.copyFrame()
	case ActionReload:
		if a.controller != nil {
			a.flash("Reloading")
			a.controller.Reload(ctx)
		}
	}
	return false
}

func (a *AppState) copyFrame() {
	if a.controller == nil {
		return
	}
	snap := a.controller.Surface().Snapshot()
	if snap == nil {
		a.flash("Nothing to copy")
		return
	}
	if err := a.writeClip(snap); err != nil {
		a.log.Warn("copy to clipboard", "err", err)
		a.flash("Copy failed")
		return
	}
	a.flash("Copied")
	a.notifier.Copy("wallpaper")
}

// flash shows msg over the surface for a moment.
func (a *AppState) flash(msg string) {
	a.present.flash(msg, messageDuration)
	a.invalidate()
	time.AfterFunc(messageDuration, a.invalidate)
}

func (a *AppState) invalidate() {
	if a.controller != nil {
		a.controller.Invalidate()
	}
}

func (a *AppState) detach() {
	if a.controller != nil {
		a.controller.Detach()
	}
}
