// Package surface holds the state of one display surface and keeps it in
// step with size, orientation and source changes.
package surface

import (
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/example/coverpaper/internal/bitmap"
	"github.com/example/coverpaper/internal/frame"
	"github.com/example/coverpaper/internal/load"
	"github.com/example/coverpaper/internal/logging"
	"github.com/example/coverpaper/internal/orient"
	"github.com/example/coverpaper/internal/render"
)

// Scheduler queues a draw for the next frame. *frame.Scheduler satisfies it.
type Scheduler interface {
	Schedule(slot int, fn func())
}

// Presenter receives every finished frame. The raster is only valid for the
// duration of the call.
type Presenter interface {
	Present(raster *image.RGBA)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(*image.RGBA)

// Present implements Presenter.
func (f PresenterFunc) Present(r *image.RGBA) { f(r) }

// Surface is a fixed size raster showing one bitmap with cover semantics.
//
// It implements load.Target. A draw happens only when no load is pending and
// a bitmap has been committed; a geometry change alone redraws the bitmap
// already shown.
type Surface struct {
	mu sync.Mutex

	size     image.Point
	code     orient.Code
	current  *bitmap.Bitmap
	gen      uint64
	loadTok  load.Token
	readyTok load.Token
	pending  bool
	detached bool
	raster   *image.RGBA

	slot    int
	sched   Scheduler
	present Presenter
	quality render.Quality
	log     *slog.Logger
	draws   atomic.Int64
}

// Option configures a Surface.
type Option func(*Surface)

// WithSlot sets the scheduler slot used for draws.
func WithSlot(slot int) Option { return func(s *Surface) { s.slot = slot } }

// WithPresenter sets where finished frames go.
func WithPresenter(p Presenter) Option { return func(s *Surface) { s.present = p } }

// WithQuality sets the resampling quality.
func WithQuality(q render.Quality) Option { return func(s *Surface) { s.quality = q } }

// WithLogger sets the surface logger.
func WithLogger(l *slog.Logger) Option { return func(s *Surface) { s.log = l } }

// New creates an empty surface drawing through sched.
func New(sched Scheduler, opts ...Option) *Surface {
	s := &Surface{
		slot:    frame.DefaultSlot,
		sched:   sched,
		quality: render.QualityBilinear,
		size:    image.Pt(1, 1),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logging.OrNop(s.log)
	return s
}

// Begin implements load.Target.
func (s *Surface) Begin(src bitmap.Source) load.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.loadTok = load.Token{Gen: s.gen, Source: src}
	s.pending = true
	return s.loadTok
}

// Commit implements load.Target.
func (s *Surface) Commit(tok load.Token, bm *bitmap.Bitmap) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached || tok.Gen != s.loadTok.Gen {
		return false
	}
	s.current = bm
	s.readyTok = tok
	s.pending = false
	return true
}

// Fail implements load.Target.
func (s *Surface) Fail(tok load.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.Gen == s.loadTok.Gen {
		s.pending = false
	}
}

// Showing implements load.Target.
func (s *Surface) Showing(src bitmap.Source) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.pending && s.current != nil &&
		s.readyTok.Gen == s.loadTok.Gen && s.readyTok.Source == src
}

// Invalidate implements load.Target by scheduling a redraw.
func (s *Surface) Invalidate() {
	s.mu.Lock()
	detached := s.detached
	s.mu.Unlock()
	if detached || s.sched == nil {
		return
	}
	s.sched.Schedule(s.slot, s.draw)
}

// SetSize changes the target size in device pixels. Axes below one are
// clamped to one. It reports whether the size changed.
func (s *Surface) SetSize(px image.Point) bool {
	px = image.Pt(max(px.X, 1), max(px.Y, 1))
	s.mu.Lock()
	defer s.mu.Unlock()
	if px == s.size {
		return false
	}
	s.size = px
	return true
}

// SetOrientation changes the rotation code. It reports whether it changed.
func (s *Surface) SetOrientation(c orient.Code) bool {
	c = c.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == s.code {
		return false
	}
	s.code = c
	return true
}

// Size returns the target size in device pixels.
func (s *Surface) Size() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Orientation returns the current rotation code.
func (s *Surface) Orientation() orient.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Current returns the committed bitmap and the source it came from.
func (s *Surface) Current() (*bitmap.Bitmap, bitmap.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.readyTok.Source
}

// Pending reports whether a load is in flight.
func (s *Surface) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Snapshot returns a copy of the last drawn frame, or nil if nothing was
// drawn yet.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raster == nil {
		return nil
	}
	cp := image.NewRGBA(s.raster.Rect)
	copy(cp.Pix, s.raster.Pix)
	return cp
}

// Draws returns how many frames were rendered.
func (s *Surface) Draws() int64 { return s.draws.Load() }

// Detach makes the surface inert: later commits are dropped and nothing is
// drawn or scheduled again.
func (s *Surface) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
	s.raster = nil
}

// Detached reports whether Detach was called.
func (s *Surface) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

func (s *Surface) draw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached || s.pending || s.current == nil {
		return
	}
	t, ok := render.Cover(s.size, s.current.Size(), s.code)
	if !ok {
		return
	}
	if s.raster == nil || s.raster.Rect.Size() != s.size {
		s.raster = image.NewRGBA(image.Rectangle{Max: s.size})
	}
	render.Draw(s.raster, s.current.Image(), t, s.quality)
	s.draws.Add(1)
	s.log.Debug("drew frame", "size", s.size, "orientation", s.code.Label(), "scale", t.Scale)
	if s.present != nil {
		s.present.Present(s.raster)
	}
}
