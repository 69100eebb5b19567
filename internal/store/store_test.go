package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/coverpaper/internal/bitmap"
	"github.com/example/coverpaper/internal/load"
)

func openTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "coverpaper.db")
	s, err := Open(path, opts...)
	require.NoError(t, err)

	clock := time.Unix(1700000000, 0)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s, path
}

func event(name string, external bool) load.Event {
	return load.Event{
		Blob:     &bitmap.Blob{Name: name, MediaType: "image/png", Data: []byte("data-" + name)},
		Origin:   "/pictures/" + name,
		External: external,
	}
}

func TestCurrentEmpty(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()

	blob, origin, err := s.Current()
	require.NoError(t, err)
	assert.Nil(t, blob)
	assert.Empty(t, origin)
}

func TestSaveAndCurrent(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()

	require.NoError(t, s.Save(event("a.png", true)))
	require.NoError(t, s.Save(event("b.png", true)))

	blob, origin, err := s.Current()
	require.NoError(t, err)
	require.NotNil(t, blob)
	assert.Equal(t, "b.png", blob.Name)
	assert.Equal(t, "image/png", blob.MediaType)
	assert.Equal(t, []byte("data-b.png"), blob.Data)
	assert.Equal(t, "/pictures/b.png", origin)
}

func TestHistory(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()

	for i := 0; i < keepData+2; i++ {
		require.NoError(t, s.Save(event(fmt.Sprintf("%02d.png", i), true)))
	}

	all, err := s.History(0)
	require.NoError(t, err)
	require.Len(t, all, keepData+2)
	assert.Equal(t, fmt.Sprintf("%02d.png", keepData+1), all[0].Name)
	assert.True(t, all[0].AcceptedAt.After(all[1].AcceptedAt))
	assert.Len(t, all[0].SHA256, 64)
	assert.EqualValues(t, len("data-00.png"), all[0].Size)

	withData := 0
	for _, e := range all {
		if e.HasData {
			withData++
		}
	}
	assert.Equal(t, keepData, withData, "older entries drop their data")
	assert.False(t, all[len(all)-1].HasData)

	recent, err := s.History(3)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}

func TestSourceAcceptedDebouncesAndIgnoresReapplied(t *testing.T) {
	s, _ := openTestStore(t, WithDebounce(time.Hour))

	s.SourceAccepted(event("restored.png", false))
	s.SourceAccepted(event("first.png", true))
	s.SourceAccepted(event("second.png", true))
	s.SourceAccepted(load.Event{External: true})

	entries, err := s.History(0)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is written before the debounce fires")

	require.NoError(t, s.Close())
}

func TestCloseFlushesPendingSave(t *testing.T) {
	s, path := openTestStore(t, WithDebounce(time.Hour))
	s.SourceAccepted(event("first.png", true))
	s.SourceAccepted(event("second.png", true))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.History(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second.png", entries[0].Name)
}

func TestCloseWaitsForRunningSave(t *testing.T) {
	s, path := openTestStore(t, WithDebounce(time.Millisecond))
	entered := make(chan struct{})
	release := make(chan struct{})
	s.save = func(ev load.Event) error {
		close(entered)
		<-release
		return s.Save(ev)
	}

	s.SourceAccepted(event("slow.png", true))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced save never ran")
	}

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case <-closed:
		t.Fatal("Close returned while a save was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-closed)

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	entries, err := reopened.History(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "slow.png", entries[0].Name)

	assert.NotPanics(t, func() { s.SourceAccepted(event("late.png", true)) })
}

func TestSourceAcceptedWritesAfterDebounce(t *testing.T) {
	s, _ := openTestStore(t, WithDebounce(10*time.Millisecond))
	defer s.Close()

	s.SourceAccepted(event("later.png", true))
	require.Eventually(t, func() bool {
		blob, _, err := s.Current()
		return err == nil && blob != nil && blob.Name == "later.png"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSaveRejectsEmptyEvent(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()
	assert.Error(t, s.Save(load.Event{Origin: "x"}))
}
