package notify

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nfnt/resize"

	"github.com/example/coverpaper/internal/bitmap"
	"github.com/example/coverpaper/internal/load"
	"github.com/example/coverpaper/internal/logging"
	"github.com/example/coverpaper/internal/platform"
)

// Event identifies a notification trigger.
type Event string

const (
	// EventChange emits a notification when a new wallpaper is shown.
	EventChange Event = "change"
	// EventCopy emits a notification when the current frame is copied to the
	// clipboard.
	EventCopy Event = "copy"
)

// previewSize bounds the thumbnail attached to change notifications.
const previewSize = 128

var platformNotify = platform.Notify

// EventPreference describes formatting for a notification event.
type EventPreference struct {
	Template string
}

// Preferences describes notification behaviour loaded from configuration.
type Preferences struct {
	Title   string
	Timeout time.Duration
	Events  map[Event]EventPreference
}

// DefaultPreferences returns the default notification settings.
func DefaultPreferences() Preferences {
	return Preferences{
		Title:   "Coverpaper",
		Timeout: 5 * time.Second,
		Events: map[Event]EventPreference{
			EventChange: {Template: "Wallpaper set to %s"},
			EventCopy:   {Template: "Copied %s to clipboard"},
		},
	}
}

// LoadPreferences reads configuration from environment variables.
func LoadPreferences() Preferences {
	prefs := DefaultPreferences()
	if v := strings.TrimSpace(os.Getenv("COVERPAPER_NOTIFY_TITLE")); v != "" {
		prefs.Title = v
	}
	apply := func(key string, event Event) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			eventPrefs := prefs.Events[event]
			eventPrefs.Template = v
			prefs.Events[event] = eventPrefs
		}
	}
	apply("COVERPAPER_NOTIFY_CHANGE_TEXT", EventChange)
	apply("COVERPAPER_NOTIFY_COPY_TEXT", EventCopy)
	return prefs
}

// Notifier sends OS-level notifications based on the configured preferences.
// It implements load.Listener.
type Notifier struct {
	prefs   Preferences
	enabled map[Event]bool
	cache   *bitmap.Cache
	log     *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithCache lets change notifications reuse decoded bitmaps for previews.
func WithCache(c *bitmap.Cache) Option { return func(n *Notifier) { n.cache = c } }

// WithLogger sets the notifier logger.
func WithLogger(l *slog.Logger) Option { return func(n *Notifier) { n.log = l } }

// New creates a new Notifier using the provided preferences.
func New(prefs Preferences, opts ...Option) *Notifier {
	cloned := Preferences{Title: prefs.Title, Timeout: prefs.Timeout, Events: make(map[Event]EventPreference, len(prefs.Events))}
	for k, v := range prefs.Events {
		cloned.Events[k] = v
	}
	n := &Notifier{prefs: cloned, enabled: make(map[Event]bool)}
	for _, o := range opts {
		o(n)
	}
	n.log = logging.OrNop(n.log)
	return n
}

// Enable toggles the notifier for the provided event.
func (n *Notifier) Enable(event Event, enabled bool) {
	if n == nil {
		return
	}
	if n.enabled == nil {
		n.enabled = make(map[Event]bool)
	}
	n.enabled[event] = enabled
}

// SourceAccepted implements load.Listener. Only sources supplied from outside
// are announced.
func (n *Notifier) SourceAccepted(ev load.Event) {
	if !ev.External || !n.enabledFor(EventChange) {
		return
	}
	opts := n.options()
	if img := n.preview(ev.Blob); img != nil {
		if path, cleanup, err := createPreview(img); err != nil {
			n.log.Warn("notification preview", "err", err)
		} else {
			defer cleanup()
			opts.IconPath = path
		}
	}
	detail := ev.Origin
	if detail == "" && ev.Blob != nil {
		detail = ev.Blob.Describe()
	}
	n.dispatch(EventChange, detail, opts)
}

// Copy sends a clipboard notification.
func (n *Notifier) Copy(detail string) {
	if !n.enabledFor(EventCopy) {
		return
	}
	if strings.TrimSpace(detail) == "" {
		detail = "wallpaper"
	}
	n.dispatch(EventCopy, detail, n.options())
}

func (n *Notifier) options() platform.Options {
	return platform.Options{AppName: n.prefs.Title, Timeout: n.prefs.Timeout}
}

// preview returns a thumbnail of the blob, decoding it through the shared
// cache so an already displayed image is not decoded again.
func (n *Notifier) preview(blob *bitmap.Blob) image.Image {
	if blob == nil || n.cache == nil {
		return nil
	}
	bm, _, err := n.cache.GetOrDecode(context.Background(), blob)
	if err != nil {
		n.log.Debug("no preview", "source", blob.Describe(), "err", err)
		return nil
	}
	return resize.Thumbnail(previewSize, previewSize, bm.Image(), resize.Bilinear)
}

func (n *Notifier) enabledFor(event Event) bool {
	if n == nil || n.enabled == nil {
		return false
	}
	return n.enabled[event]
}

func (n *Notifier) dispatch(event Event, detail string, opts platform.Options) {
	template := strings.TrimSpace(n.template(event))
	if template == "" {
		return
	}
	body := strings.TrimSpace(fmt.Sprintf(template, strings.TrimSpace(detail)))
	if body == "" {
		return
	}
	if err := platformNotify(n.prefs.Title, body, opts); err != nil {
		n.log.Warn("notification failed", "event", event, "err", err)
	}
}

func (n *Notifier) template(event Event) string {
	if pref, ok := n.prefs.Events[event]; ok {
		return pref.Template
	}
	return ""
}

func createPreview(img image.Image) (string, func(), error) {
	f, err := os.CreateTemp("", "coverpaper-preview-*.png")
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}
