package bitmap

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/dustin/go-humanize"

	"github.com/example/coverpaper/internal/logging"
)

// Cache deduplicates decode work per source object.
//
// Entries are keyed by the identity of the source pointer through weak
// pointers, so the cache never keeps a source alive: once a source becomes
// unreachable its entry is dropped by a runtime cleanup. While a source is
// alive every request for it shares one decode and one result, failures
// included.
type Cache struct {
	mu      sync.Mutex
	entries map[any]*entry

	decode  Decoder
	log     *slog.Logger
	decodes atomic.Int64
}

type entry struct {
	done chan struct{}
	bm   *Bitmap
	err  error
}

// Option configures a Cache.
type Option func(*Cache)

// WithDecoder replaces the default decoder.
func WithDecoder(d Decoder) Option { return func(c *Cache) { c.decode = d } }

// WithLogger sets the logger used for decode diagnostics.
func WithLogger(l *slog.Logger) Option { return func(c *Cache) { c.log = l } }

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[any]*entry),
		decode:  Decode,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logging.OrNop(c.log)
	return c
}

// GetOrDecode returns the bitmap for src. hit reports whether an existing
// entry for the same source object was reused instead of starting a decode.
//
// A *Bitmap is returned as is. Cancelling ctx stops the wait, not the decode;
// later callers still receive its result.
func (c *Cache) GetOrDecode(ctx context.Context, src Source) (bm *Bitmap, hit bool, err error) {
	if b, ok := src.(*Bitmap); ok {
		return b, false, nil
	}
	key, ok := c.track(src)
	if !ok {
		return nil, false, ErrUnsupportedSource
	}

	c.mu.Lock()
	e, hit := c.entries[key]
	if !hit {
		e = &entry{done: make(chan struct{})}
		c.entries[key] = e
		c.watch(src, key)
	}
	c.mu.Unlock()

	if !hit {
		c.decodes.Add(1)
		go c.run(context.WithoutCancel(ctx), e, src)
	}

	select {
	case <-e.done:
		return e.bm, hit, e.err
	case <-ctx.Done():
		return nil, hit, ctx.Err()
	}
}

func (c *Cache) run(ctx context.Context, e *entry, src Source) {
	defer close(e.done)
	e.bm, e.err = c.decode(ctx, src)
	if e.err != nil {
		c.log.Warn("decode failed", "source", src.Describe(), "err", e.err)
		return
	}
	attrs := []any{"source", src.Describe(), "width", e.bm.Width(), "height", e.bm.Height()}
	if blob, ok := src.(*Blob); ok {
		attrs = append(attrs, "encoded", humanize.IBytes(uint64(len(blob.Data))))
	}
	c.log.Debug("decoded", attrs...)
}

// track returns the identity key for src.
func (c *Cache) track(src Source) (any, bool) {
	switch s := src.(type) {
	case *Blob:
		if s == nil {
			return nil, false
		}
		return weak.Make(s), true
	case *Frame:
		if s == nil {
			return nil, false
		}
		return weak.Make(s), true
	}
	return nil, false
}

// watch arranges for key to be evicted once src is unreachable.
func (c *Cache) watch(src Source, key any) {
	switch s := src.(type) {
	case *Blob:
		runtime.AddCleanup(s, c.evict, key)
	case *Frame:
		runtime.AddCleanup(s, c.evict, key)
	}
}

func (c *Cache) evict(key any) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Decodes returns how many decodes the cache has started.
func (c *Cache) Decodes() int64 {
	return c.decodes.Load()
}
