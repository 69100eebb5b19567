// Package load assigns image sources to display targets.
//
// A newer assignment always wins over an older one, whatever order their
// fetches and decodes finish in. Nothing is cancelled: each assignment carries
// a token and its result is committed only if the token is still the target's
// latest when the bitmap is ready.
package load

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"weak"

	"github.com/example/coverpaper/internal/bitmap"
	"github.com/example/coverpaper/internal/logging"
)

// Token identifies one assignment to a target.
type Token struct {
	// Gen increases with every assignment to the same target.
	Gen uint64
	// Source is the value that was requested.
	Source bitmap.Source
}

// Target is a display surface the pipeline loads into.
type Target interface {
	// Begin records src as the latest request and returns its token.
	Begin(src bitmap.Source) Token
	// Commit displays bm if tok is still the latest request.
	Commit(tok Token, bm *bitmap.Bitmap) bool
	// Fail marks the load for tok as finished without a result.
	Fail(tok Token)
	// Showing reports whether src is displayed with no load pending.
	Showing(src bitmap.Source) bool
	// Invalidate requests a redraw.
	Invalidate()
}

// Event is sent to listeners when a new external image becomes the displayed
// one.
type Event struct {
	Blob   *bitmap.Blob
	Origin string
	// External is true for a source supplied from outside (user, command
	// line, paste) and false when a known source is re-applied, such as the
	// persisted wallpaper at start up.
	External bool
}

// Listener receives accepted sources.
type Listener interface {
	SourceAccepted(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// SourceAccepted implements Listener.
func (f ListenerFunc) SourceAccepted(ev Event) { f(ev) }

// Listeners fans an event out to several listeners.
type Listeners []Listener

// SourceAccepted implements Listener.
func (ls Listeners) SourceAccepted(ev Event) {
	for _, l := range ls {
		if l != nil {
			l.SourceAccepted(ev)
		}
	}
}

// Pipeline fetches, decodes and commits sources.
type Pipeline struct {
	cache    *bitmap.Cache
	fetcher  Fetcher
	listener Listener
	log      *slog.Logger

	// announced holds the blobs an event was already sent for.
	mu        sync.Mutex
	announced map[weak.Pointer[bitmap.Blob]]struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFetcher replaces the default fetcher.
func WithFetcher(f Fetcher) Option { return func(p *Pipeline) { p.fetcher = f } }

// WithListener sets who is told about accepted sources.
func WithListener(l Listener) Option { return func(p *Pipeline) { p.listener = l } }

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.log = l } }

// NewPipeline creates a pipeline decoding through cache.
func NewPipeline(cache *bitmap.Cache, opts ...Option) *Pipeline {
	p := &Pipeline{cache: cache, announced: make(map[weak.Pointer[bitmap.Blob]]struct{})}
	for _, o := range opts {
		o(p)
	}
	if p.fetcher == nil {
		p.fetcher = NewFetcher()
	}
	p.log = logging.OrNop(p.log)
	return p
}

// Assign makes src the latest request of t and displays it once loaded,
// unless another Assign on t has started in the meantime.
//
// A fetch or decode failure is logged and returned; t keeps showing what it
// showed before. A superseded result is dropped and nil is returned.
func (p *Pipeline) Assign(ctx context.Context, t Target, src bitmap.Source, external bool) error {
	if isNil(src) {
		return errors.New("assign: nil source")
	}
	if t.Showing(src) {
		p.log.Debug("source already shown", "source", src.Describe())
		return nil
	}
	tok := t.Begin(src)

	decodable := src
	if ref, ok := src.(*Ref); ok {
		blob, err := p.fetcher.Fetch(ctx, ref)
		if err != nil {
			return p.fail(t, tok, fmt.Errorf("fetch %s: %w", ref.Location, err))
		}
		decodable = blob
	}

	bm, hit, err := p.cache.GetOrDecode(ctx, decodable)
	if err != nil {
		return p.fail(t, tok, fmt.Errorf("load %s: %w", src.Describe(), err))
	}

	if !t.Commit(tok, bm) {
		p.log.Debug("dropping stale load", "source", src.Describe(), "gen", tok.Gen)
		return nil
	}
	p.log.Debug("load committed", "source", src.Describe(), "gen", tok.Gen, "cached", hit)

	// Announce on the first commit of a blob, not on the first decode: the
	// decode may have been started by an assignment that went stale.
	if blob, ok := decodable.(*bitmap.Blob); ok && p.listener != nil && p.claim(blob) {
		p.listener.SourceAccepted(Event{Blob: blob, Origin: src.Describe(), External: external})
	}
	t.Invalidate()
	return nil
}

// claim reports whether blob is committed for the first time.
func (p *Pipeline) claim(blob *bitmap.Blob) bool {
	key := weak.Make(blob)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.announced[key]; ok {
		return false
	}
	p.announced[key] = struct{}{}
	runtime.AddCleanup(blob, p.forget, key)
	return true
}

func (p *Pipeline) forget(key weak.Pointer[bitmap.Blob]) {
	p.mu.Lock()
	delete(p.announced, key)
	p.mu.Unlock()
}

// isNil reports whether src is nil or a nil pointer of a known source type.
func isNil(src bitmap.Source) bool {
	switch s := src.(type) {
	case nil:
		return true
	case *bitmap.Bitmap:
		return s == nil
	case *bitmap.Blob:
		return s == nil
	case *bitmap.Frame:
		return s == nil
	case *Ref:
		return s == nil
	}
	return false
}

func (p *Pipeline) fail(t Target, tok Token, err error) error {
	t.Fail(tok)
	p.log.Warn("load failed", "gen", tok.Gen, "err", err)
	return err
}
