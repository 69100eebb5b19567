package surface

import (
	"context"
	"image"
	"log/slog"
	"math"
	"sync"

	"github.com/example/coverpaper/internal/bitmap"
	"github.com/example/coverpaper/internal/load"
	"github.com/example/coverpaper/internal/logging"
	"github.com/example/coverpaper/internal/orient"
)

// Box is the layout of the element hosting a surface, in logical pixels. A
// zero axis means the value is not known.
type Box struct {
	Client     image.Point
	Parent     image.Point
	Screen     image.Point
	PixelRatio float64
}

func (b Box) ratio() float64 {
	if b.PixelRatio <= 0 || math.IsNaN(b.PixelRatio) || math.IsInf(b.PixelRatio, 0) {
		return 1
	}
	return b.PixelRatio
}

func or(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func scaled(v int, ratio float64) int {
	return max(int(math.Round(float64(v)*ratio)), 1)
}

// attachSize is the initial size: the client box, capped by the parent and
// the screen.
func attachSize(b Box) image.Point {
	axis := func(client, parent, screen int) int {
		v := max(or(client, or(parent, 1)), 1)
		return min(v, min(or(parent, 1), or(screen, 1)))
	}
	r := b.ratio()
	return image.Pt(
		scaled(axis(b.Client.X, b.Parent.X, b.Screen.X), r),
		scaled(axis(b.Client.Y, b.Parent.Y, b.Screen.Y), r),
	)
}

// relayoutSize is the size after a layout change: the client box, falling
// back to the parent.
func relayoutSize(b Box) image.Point {
	r := b.ratio()
	return image.Pt(
		scaled(or(b.Client.X, or(b.Parent.X, 1)), r),
		scaled(or(b.Client.Y, or(b.Parent.Y, 1)), r),
	)
}

// Controller routes size, orientation and source signals to a Surface.
type Controller struct {
	surface  *Surface
	pipeline *load.Pipeline
	orient   orient.Source
	log      *slog.Logger

	mu     sync.Mutex
	source bitmap.Source
	wg     sync.WaitGroup
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithOrientation sets where orientation signals are read from. Without it
// the orientation is always landscape-primary.
func WithOrientation(src orient.Source) ControllerOption {
	return func(c *Controller) { c.orient = src }
}

// WithSource sets the source loaded on Attach.
func WithSource(src bitmap.Source) ControllerOption {
	return func(c *Controller) { c.source = src }
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

// NewController creates a controller for s loading through p.
func NewController(s *Surface, p *load.Pipeline, opts ...ControllerOption) *Controller {
	c := &Controller{surface: s, pipeline: p}
	for _, o := range opts {
		o(c)
	}
	c.log = logging.OrNop(c.log)
	return c
}

// Surface returns the controlled surface.
func (c *Controller) Surface() *Surface { return c.surface }

// Source returns the most recently assigned source.
func (c *Controller) Source() bitmap.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// Attach sizes the surface from its box, resolves the orientation and loads
// the configured source, if any. It returns once the load has finished.
func (c *Controller) Attach(ctx context.Context, box Box) error {
	c.surface.SetSize(attachSize(box))
	c.surface.SetOrientation(c.resolve())
	c.log.Debug("attached", "size", c.surface.Size(), "orientation", c.surface.Orientation().Label())

	src := c.Source()
	if src == nil {
		return nil
	}
	return c.pipeline.Assign(ctx, c.surface, src, false)
}

// Relayout handles a window resize, a fullscreen toggle or a viewport change.
func (c *Controller) Relayout(box Box) {
	c.surface.SetSize(relayoutSize(box))
	c.surface.SetOrientation(c.resolve())
	c.surface.Invalidate()
}

// ResizeDevice handles a new content box in device pixels. A zero axis keeps
// the current value.
func (c *Controller) ResizeDevice(px image.Point) {
	cur := c.surface.Size()
	c.surface.SetSize(image.Pt(or(px.X, cur.X), or(px.Y, cur.Y)))
	c.surface.SetOrientation(c.resolve())
	c.surface.Invalidate()
}

// OrientationChanged re-reads the orientation signals.
func (c *Controller) OrientationChanged() {
	if c.surface.SetOrientation(c.resolve()) {
		c.log.Debug("orientation changed", "orientation", c.surface.Orientation().Label())
	}
	c.surface.Invalidate()
}

// Load assigns src and waits for it to load. A newer assignment made while
// this one is in flight wins; Load then returns nil without showing src.
func (c *Controller) Load(ctx context.Context, src bitmap.Source, external bool) error {
	c.mu.Lock()
	c.source = src
	c.mu.Unlock()
	return c.pipeline.Assign(ctx, c.surface, src, external)
}

// SetSource assigns src without waiting. Failures are logged.
func (c *Controller) SetSource(ctx context.Context, src bitmap.Source, external bool) {
	c.mu.Lock()
	c.source = src
	c.mu.Unlock()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.pipeline.Assign(ctx, c.surface, src, external); err != nil {
			c.log.Error("set source", "source", src.Describe(), "err", err)
		}
	}()
}

// Reload assigns the current source again. A reference is fetched anew.
func (c *Controller) Reload(ctx context.Context) {
	src := c.Source()
	if src == nil {
		return
	}
	if ref, ok := src.(*load.Ref); ok {
		src = load.NewRef(ref.Location)
	}
	c.SetSource(ctx, src, false)
}

// Invalidate requests a redraw.
func (c *Controller) Invalidate() { c.surface.Invalidate() }

// Wait blocks until every SetSource started so far has finished.
func (c *Controller) Wait() { c.wg.Wait() }

// Detach makes the surface inert. Loads still in flight complete without
// effect.
func (c *Controller) Detach() { c.surface.Detach() }

func (c *Controller) resolve() orient.Code {
	if c.orient == nil {
		return 0
	}
	return orient.ResolveCode(c.orient)
}
