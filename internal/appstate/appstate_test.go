package appstate

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/mobile/event/key"

	"github.com/example/coverpaper/internal/bitmap"
	"github.com/example/coverpaper/internal/load"
	"github.com/example/coverpaper/internal/logging"
	"github.com/example/coverpaper/internal/orient"
	"github.com/example/coverpaper/internal/surface"
)

type syncScheduler struct{}

func (syncScheduler) Schedule(_ int, fn func()) { fn() }

func TestActionForKey(t *testing.T) {
	press := func(r rune) key.Event { return key.Event{Rune: r, Direction: key.DirPress} }
	assert.Equal(t, ActionQuit, ActionForKey(press('q')))
	assert.Equal(t, ActionQuit, ActionForKey(key.Event{Code: key.CodeEscape, Direction: key.DirPress}))
	assert.Equal(t, ActionPaste, ActionForKey(press('v')))
	assert.Equal(t, ActionCopy, ActionForKey(press('C')))
	assert.Equal(t, ActionReload, ActionForKey(press('r')))
	assert.Equal(t, ActionNone, ActionForKey(press('x')))
	assert.Equal(t, ActionNone, ActionForKey(key.Event{Rune: 'q', Direction: key.DirRelease}))
}

func TestViewportFollowsWindowSize(t *testing.T) {
	a := New(WithSize(600, 800))
	assert.Equal(t, orient.ViewportPortrait, a.Viewport())
}

func newLoadedApp(t *testing.T, copied *[]image.Image, copyErr error) *AppState {
	t.Helper()
	s := surface.New(syncScheduler{})
	p := load.NewPipeline(bitmap.NewCache())
	c := surface.NewController(s, p)
	c.ResizeDevice(image.Pt(4, 4))

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	require.NoError(t, c.Load(context.Background(), &bitmap.Frame{Name: "solid", Image: img}, true))

	a := New()
	a.SetController(c)
	a.writeClip = func(img image.Image) error {
		*copied = append(*copied, img)
		return copyErr
	}
	return a
}

func TestCopyFrameWritesSnapshot(t *testing.T) {
	var copied []image.Image
	a := newLoadedApp(t, &copied, nil)

	assert.False(t, a.handleKey(context.Background(), ActionCopy))
	require.Len(t, copied, 1)
	assert.Equal(t, image.Rect(0, 0, 4, 4), copied[0].Bounds())
	assert.Equal(t, "Copied", a.present.message)
}

func TestCopyFrameFailure(t *testing.T) {
	var copied []image.Image
	a := newLoadedApp(t, &copied, errors.New("no clipboard"))
	a.handleKey(context.Background(), ActionCopy)
	assert.Equal(t, "Copy failed", a.present.message)
}

func TestQuitKey(t *testing.T) {
	a := New()
	assert.True(t, a.handleKey(context.Background(), ActionQuit))
	assert.False(t, a.handleKey(context.Background(), ActionNone))
}

func TestDrawMessage(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 200, 80))
	drawMessage(dst, "Copied")
	black := 0
	for y := 0; y < 80; y++ {
		for x := 0; x < 200; x++ {
			if dst.RGBAAt(x, y) == (color.RGBA{A: 255}) {
				black++
			}
		}
	}
	assert.Positive(t, black, "text and border are drawn")
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(0, 0), "corners stay untouched")
}

func TestPresentWithoutWindowIsNoop(t *testing.T) {
	p := &presenter{log: logging.Nop()}
	assert.NotPanics(t, func() { p.Present(image.NewRGBA(image.Rect(0, 0, 2, 2))) })
}
