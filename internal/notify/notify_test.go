package notify

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/coverpaper/internal/bitmap"
	"github.com/example/coverpaper/internal/load"
	"github.com/example/coverpaper/internal/platform"
)

type sent struct {
	title, body string
	opts        platform.Options
	iconBounds  image.Rectangle
}

func capture(t *testing.T) *[]sent {
	t.Helper()
	var calls []sent
	prev := platformNotify
	platformNotify = func(title, body string, opts platform.Options) error {
		s := sent{title: title, body: body, opts: opts}
		if opts.IconPath != "" {
			f, err := os.Open(opts.IconPath)
			require.NoError(t, err)
			defer f.Close()
			cfg, err := png.DecodeConfig(f)
			require.NoError(t, err)
			s.iconBounds = image.Rect(0, 0, cfg.Width, cfg.Height)
		}
		calls = append(calls, s)
		return nil
	}
	t.Cleanup(func() { platformNotify = prev })
	return &calls
}

func pngBlob(t *testing.T, w, h int) *bitmap.Blob {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return &bitmap.Blob{Name: "sunset.png", MediaType: "image/png", Data: buf.Bytes()}
}

func TestChangeNotificationWithPreview(t *testing.T) {
	calls := capture(t)
	cache := bitmap.NewCache()
	blob := pngBlob(t, 512, 256)
	_, _, err := cache.GetOrDecode(context.Background(), blob)
	require.NoError(t, err)

	n := New(DefaultPreferences(), WithCache(cache))
	n.Enable(EventChange, true)
	n.SourceAccepted(load.Event{Blob: blob, Origin: "/home/me/sunset.png", External: true})

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, "Coverpaper", got.title)
	assert.Equal(t, "Wallpaper set to /home/me/sunset.png", got.body)
	assert.Equal(t, image.Rect(0, 0, 128, 64), got.iconBounds)
	assert.EqualValues(t, 1, cache.Decodes(), "the preview reuses the displayed decode")

	_, err = os.Stat(got.opts.IconPath)
	assert.True(t, os.IsNotExist(err), "preview file is removed after sending")
}

func TestChangeNotificationSkipsReappliedAndDisabled(t *testing.T) {
	calls := capture(t)
	n := New(DefaultPreferences())
	n.SourceAccepted(load.Event{Origin: "a", External: true})
	assert.Empty(t, *calls, "disabled by default")

	n.Enable(EventChange, true)
	n.SourceAccepted(load.Event{Origin: "restored", External: false})
	assert.Empty(t, *calls)

	n.SourceAccepted(load.Event{Blob: &bitmap.Blob{Name: "pasted"}, External: true})
	require.Len(t, *calls, 1)
	assert.Equal(t, "Wallpaper set to pasted", (*calls)[0].body)
	assert.Empty(t, (*calls)[0].opts.IconPath)
}

func TestCopyNotification(t *testing.T) {
	calls := capture(t)
	n := New(DefaultPreferences())
	n.Enable(EventCopy, true)
	n.Copy("")
	require.Len(t, *calls, 1)
	assert.Equal(t, "Copied wallpaper to clipboard", (*calls)[0].body)
}

func TestLoadPreferencesFromEnvironment(t *testing.T) {
	t.Setenv("COVERPAPER_NOTIFY_TITLE", "Desk")
	t.Setenv("COVERPAPER_NOTIFY_CHANGE_TEXT", "Now showing %s")
	prefs := LoadPreferences()
	assert.Equal(t, "Desk", prefs.Title)
	assert.Equal(t, "Now showing %s", prefs.Events[EventChange].Template)
	assert.Equal(t, "Copied %s to clipboard", prefs.Events[EventCopy].Template)
}

func TestNotifyFailureIsLogged(t *testing.T) {
	prev := platformNotify
	platformNotify = func(string, string, platform.Options) error { return errors.New("no bus") }
	t.Cleanup(func() { platformNotify = prev })

	n := New(DefaultPreferences())
	n.Enable(EventCopy, true)
	assert.NotPanics(t, func() { n.Copy("frame") })
}

func TestNilNotifier(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() {
		n.Enable(EventChange, true)
		n.Copy("x")
		n.SourceAccepted(load.Event{External: true})
	})
}
