package load

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/coverpaper/internal/bitmap"
)

// fakeTarget follows the same token rules as a display surface.
type fakeTarget struct {
	mu          sync.Mutex
	gen         uint64
	latest      bitmap.Source
	shown       bitmap.Source
	bm          *bitmap.Bitmap
	pending     bool
	commits     int
	invalidated int
}

func (f *fakeTarget) Begin(src bitmap.Source) Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.latest = src
	f.pending = true
	return Token{Gen: f.gen, Source: src}
}

func (f *fakeTarget) Commit(tok Token, bm *bitmap.Bitmap) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tok.Gen != f.gen {
		return false
	}
	f.bm = bm
	f.shown = tok.Source
	f.pending = false
	f.commits++
	return true
}

func (f *fakeTarget) Fail(tok Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tok.Gen == f.gen {
		f.pending = false
	}
}

func (f *fakeTarget) Showing(src bitmap.Source) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.pending && f.shown == src && f.latest == src
}

func (f *fakeTarget) Invalidate() {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
}

func (f *fakeTarget) state() (shown bitmap.Source, bm *bitmap.Bitmap, pending bool, commits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shown, f.bm, f.pending, f.commits
}

// gates holds a release channel per blob name so tests choose which decode
// finishes first.
type gates struct {
	mu      sync.Mutex
	release map[string]chan struct{}
	started chan string
	fail    map[string]error
}

func newGates(names ...string) *gates {
	g := &gates{
		release: make(map[string]chan struct{}),
		started: make(chan string, 16),
		fail:    make(map[string]error),
	}
	for _, n := range names {
		g.release[n] = make(chan struct{})
	}
	return g
}

func (g *gates) decode(ctx context.Context, src bitmap.Source) (*bitmap.Bitmap, error) {
	name := src.Describe()
	g.mu.Lock()
	ch := g.release[name]
	err := g.fail[name]
	g.mu.Unlock()
	g.started <- name
	if ch != nil {
		<-ch
	}
	if err != nil {
		return nil, err
	}
	w := len(name) + 1
	return bitmap.New(image.NewRGBA(image.Rect(0, 0, w, 1))), nil
}

func (g *gates) open(name string) { close(g.release[name]) }

func (g *gates) waitStarted(t *testing.T, name string) {
	t.Helper()
	select {
	case got := <-g.started:
		require.Equal(t, name, got)
	case <-time.After(time.Second):
		t.Fatalf("decode of %s never started", name)
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) SourceAccepted(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestAssignLatestWinsRegardlessOfCompletionOrder(t *testing.T) {
	g := newGates("a", "b")
	rec := &recorder{}
	p := NewPipeline(bitmap.NewCache(bitmap.WithDecoder(g.decode)), WithListener(rec))
	target := &fakeTarget{}
	a := &bitmap.Blob{Name: "a"}
	b := &bitmap.Blob{Name: "b"}

	errA := make(chan error, 1)
	go func() { errA <- p.Assign(context.Background(), target, a, true) }()
	g.waitStarted(t, "a")

	errB := make(chan error, 1)
	go func() { errB <- p.Assign(context.Background(), target, b, true) }()
	g.waitStarted(t, "b")

	g.open("b")
	require.NoError(t, <-errB)
	g.open("a")
	require.NoError(t, <-errA)

	shown, bm, pending, commits := target.state()
	assert.Same(t, b, shown)
	assert.Equal(t, 2, bm.Width())
	assert.False(t, pending)
	assert.Equal(t, 1, commits)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Same(t, b, events[0].Blob)
}

func TestAssignSameSourceTwiceIsIdempotent(t *testing.T) {
	g := newGates()
	p := NewPipeline(bitmap.NewCache(bitmap.WithDecoder(g.decode)))
	target := &fakeTarget{}
	blob := &bitmap.Blob{Name: "same"}

	require.NoError(t, p.Assign(context.Background(), target, blob, true))
	require.NoError(t, p.Assign(context.Background(), target, blob, true))

	_, _, _, commits := target.state()
	assert.Equal(t, 1, commits)
	assert.Len(t, g.started, 1)

	t.Run("concurrent", func(t *testing.T) {
		g := newGates("dup")
		rec := &recorder{}
		cache := bitmap.NewCache(bitmap.WithDecoder(g.decode))
		p := NewPipeline(cache, WithListener(rec))
		target := &fakeTarget{}
		blob := &bitmap.Blob{Name: "dup"}

		errs := make(chan error, 2)
		go func() { errs <- p.Assign(context.Background(), target, blob, true) }()
		g.waitStarted(t, "dup")
		go func() { errs <- p.Assign(context.Background(), target, blob, true) }()
		require.Eventually(t, func() bool {
			target.mu.Lock()
			defer target.mu.Unlock()
			return target.gen == 2
		}, time.Second, time.Millisecond)
		g.open("dup")
		require.NoError(t, <-errs)
		require.NoError(t, <-errs)

		shown, _, pending, commits := target.state()
		assert.Same(t, blob, shown)
		assert.False(t, pending)
		assert.Equal(t, 1, commits)
		assert.Empty(t, g.started, "the second assignment joins the running decode")
		assert.Equal(t, int64(1), cache.Decodes())
		require.Len(t, rec.all(), 1)
		assert.Same(t, blob, rec.all()[0].Blob)
	})
}

func TestAssignFailureKeepsPreviousImage(t *testing.T) {
	g := newGates()
	boom := errors.New("corrupt data")
	g.fail["bad"] = boom
	p := NewPipeline(bitmap.NewCache(bitmap.WithDecoder(g.decode)))
	target := &fakeTarget{}
	good := &bitmap.Blob{Name: "good"}

	require.NoError(t, p.Assign(context.Background(), target, good, true))
	_, before, _, _ := target.state()

	err := p.Assign(context.Background(), target, &bitmap.Blob{Name: "bad"}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	shown, bm, pending, commits := target.state()
	assert.Same(t, good, shown)
	assert.Same(t, before, bm)
	assert.False(t, pending)
	assert.Equal(t, 1, commits)
}

func TestAssignStaleFailureLeavesNewerLoadPending(t *testing.T) {
	g := newGates("bad", "next")
	g.fail["bad"] = errors.New("corrupt")
	p := NewPipeline(bitmap.NewCache(bitmap.WithDecoder(g.decode)))
	target := &fakeTarget{}

	errBad := make(chan error, 1)
	go func() { errBad <- p.Assign(context.Background(), target, &bitmap.Blob{Name: "bad"}, true) }()
	g.waitStarted(t, "bad")

	next := &bitmap.Blob{Name: "next"}
	errNext := make(chan error, 1)
	go func() { errNext <- p.Assign(context.Background(), target, next, true) }()
	g.waitStarted(t, "next")

	g.open("bad")
	require.Error(t, <-errBad)
	_, _, pending, _ := target.state()
	assert.True(t, pending)

	g.open("next")
	require.NoError(t, <-errNext)
	shown, _, pending, _ := target.state()
	assert.Same(t, next, shown)
	assert.False(t, pending)
}

func TestAssignNotifiesFreshBlobsOnly(t *testing.T) {
	g := newGates()
	rec := &recorder{}
	cache := bitmap.NewCache(bitmap.WithDecoder(g.decode))
	p := NewPipeline(cache, WithListener(rec))
	first, second := &fakeTarget{}, &fakeTarget{}
	blob := &bitmap.Blob{Name: "pasted"}

	require.NoError(t, p.Assign(context.Background(), first, blob, true))
	require.NoError(t, p.Assign(context.Background(), second, blob, true))

	events := rec.all()
	require.Len(t, events, 1, "a cache hit is not a new image")
	assert.True(t, events[0].External)
	assert.Equal(t, "pasted", events[0].Origin)

	frame := &bitmap.Frame{Name: "frame", Image: image.NewRGBA(image.Rect(0, 0, 2, 2))}
	require.NoError(t, p.Assign(context.Background(), first, frame, true))
	assert.Len(t, rec.all(), 1, "frames are not announced")
}

func TestAssignCarriesExternalFlag(t *testing.T) {
	rec := &recorder{}
	p := NewPipeline(bitmap.NewCache(bitmap.WithDecoder(newGates().decode)), WithListener(rec))
	require.NoError(t, p.Assign(context.Background(), &fakeTarget{}, &bitmap.Blob{Name: "restored"}, false))

	events := rec.all()
	require.Len(t, events, 1)
	assert.False(t, events[0].External)
}

type stubFetcher struct {
	blob *bitmap.Blob
	err  error
	refs []*Ref
}

func (s *stubFetcher) Fetch(ctx context.Context, ref *Ref) (*bitmap.Blob, error) {
	s.refs = append(s.refs, ref)
	return s.blob, s.err
}

func TestAssignFetchesRefs(t *testing.T) {
	g := newGates()
	rec := &recorder{}
	fetched := &bitmap.Blob{Name: "remote.png", MediaType: "image/png"}
	f := &stubFetcher{blob: fetched}
	p := NewPipeline(bitmap.NewCache(bitmap.WithDecoder(g.decode)), WithFetcher(f), WithListener(rec))
	target := &fakeTarget{}
	ref := NewRef(" https://example.org/remote.png ")

	require.NoError(t, p.Assign(context.Background(), target, ref, true))
	require.Len(t, f.refs, 1)
	assert.Equal(t, "https://example.org/remote.png", f.refs[0].Location)

	shown, _, _, _ := target.state()
	assert.Same(t, ref, shown)
	events := rec.all()
	require.Len(t, events, 1)
	assert.Same(t, fetched, events[0].Blob)
	assert.Equal(t, "https://example.org/remote.png", events[0].Origin)

	require.NoError(t, p.Assign(context.Background(), target, ref, true))
	assert.Len(t, f.refs, 1, "a shown ref is not fetched again")
}

func TestAssignFetchFailure(t *testing.T) {
	f := &stubFetcher{err: ErrFetch}
	p := NewPipeline(bitmap.NewCache(), WithFetcher(f))
	target := &fakeTarget{}

	err := p.Assign(context.Background(), target, NewRef("/missing.png"), true)
	assert.ErrorIs(t, err, ErrFetch)
	_, bm, pending, _ := target.state()
	assert.Nil(t, bm)
	assert.False(t, pending)
}

func TestAssignRejectsNilSource(t *testing.T) {
	p := NewPipeline(bitmap.NewCache())
	assert.Error(t, p.Assign(context.Background(), &fakeTarget{}, nil, true))
}

func TestAssignRejectsTypedNilSources(t *testing.T) {
	rec := &recorder{}
	p := NewPipeline(bitmap.NewCache(bitmap.WithDecoder(newGates().decode)), WithListener(rec))
	target := &fakeTarget{}
	good := &bitmap.Blob{Name: "good"}
	require.NoError(t, p.Assign(context.Background(), target, good, true))

	for _, src := range []bitmap.Source{
		(*bitmap.Blob)(nil),
		(*bitmap.Frame)(nil),
		(*bitmap.Bitmap)(nil),
		(*Ref)(nil),
	} {
		assert.NotPanics(t, func() {
			assert.Error(t, p.Assign(context.Background(), target, src, true), "%T", src)
		})
	}

	shown, bm, pending, commits := target.state()
	assert.Same(t, good, shown)
	assert.NotNil(t, bm)
	assert.False(t, pending)
	assert.Equal(t, 1, commits)
	assert.Len(t, rec.all(), 1)
}

func TestListenersFanOut(t *testing.T) {
	var got []string
	ls := Listeners{
		ListenerFunc(func(ev Event) { got = append(got, "one:"+ev.Origin) }),
		nil,
		ListenerFunc(func(ev Event) { got = append(got, "two:"+ev.Origin) }),
	}
	ls.SourceAccepted(Event{Origin: "x"})
	assert.Equal(t, []string{"one:x", "two:x"}, got)
}
