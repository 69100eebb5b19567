// Package store persists accepted wallpapers in SQLite so the last one can be
// restored on the next start.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/example/coverpaper/internal/bitmap"
	"github.com/example/coverpaper/internal/load"
	"github.com/example/coverpaper/internal/logging"
)

const (
	appName      = "coverpaper"
	dbFileName   = "coverpaper.db"
	saveDebounce = 500 * time.Millisecond
	// keepData is how many recent entries keep their image data.
	keepData = 10
)

// Entry is one accepted wallpaper.
type Entry struct {
	ID         int64
	Origin     string
	Name       string
	MediaType  string
	SHA256     string
	Size       int64
	HasData    bool
	AcceptedAt time.Time
}

// Store records accepted wallpapers. It implements load.Listener.
type Store struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time

	saveMu    sync.Mutex
	saveTimer *time.Timer
	pending   *load.Event
	debounce  time.Duration
	closed    bool
	// saving counts debounced saves that have taken their event.
	saving sync.WaitGroup
	save   func(load.Event) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

// WithDebounce sets how long SourceAccepted waits before writing.
func WithDebounce(d time.Duration) Option { return func(s *Store) { s.debounce = d } }

// DefaultPath returns the database location under the XDG data directory.
func DefaultPath() (string, error) {
	return xdg.DataFile(filepath.Join(appName, dbFileName))
}

// Open opens the database at path, creating it if needed. An empty path
// selects DefaultPath.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &Store{db: db, now: time.Now, debounce: saveDebounce}
	s.save = s.Save
	for _, o := range opts {
		o(s)
	}
	s.log = logging.OrNop(s.log)
	return s, nil
}

// Close writes any pending save, waits for one already running and closes
// the database. Events accepted after Close are dropped.
func (s *Store) Close() error {
	s.saveMu.Lock()
	s.closed = true
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	pending := s.pending
	s.pending = nil
	s.saveMu.Unlock()

	s.saving.Wait()
	if pending != nil {
		if err := s.save(*pending); err != nil {
			s.log.Warn("flush wallpaper", "err", err)
		}
	}
	return s.db.Close()
}

// SourceAccepted implements load.Listener. Re-applied sources are ignored;
// bursts of accepted sources keep only the last one.
func (s *Store) SourceAccepted(ev load.Event) {
	if !ev.External || ev.Blob == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if s.closed {
		s.log.Debug("store closed, dropping wallpaper", "origin", ev.Origin)
		return
	}

	s.pending = &ev
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.debounce, s.flush)
}

// flush saves the pending event when the debounce timer fires.
func (s *Store) flush() {
	s.saveMu.Lock()
	pending := s.pending
	s.pending = nil
	if pending == nil || s.closed {
		s.saveMu.Unlock()
		return
	}
	s.saving.Add(1)
	s.saveMu.Unlock()
	defer s.saving.Done()

	if err := s.save(*pending); err != nil {
		s.log.Warn("save wallpaper", "origin", pending.Origin, "err", err)
	}
}

// Save records ev immediately.
func (s *Store) Save(ev load.Event) error {
	if ev.Blob == nil {
		return errors.New("save: event without data")
	}
	sum := sha256.Sum256(ev.Blob.Data)
	name := ev.Blob.Describe()
	err := withTx(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO wallpapers (origin, name, media_type, sha256, size, data, accepted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.Origin, name, ev.Blob.MediaType, hex.EncodeToString(sum[:]),
			len(ev.Blob.Data), ev.Blob.Data, s.now().UnixNano(),
		); err != nil {
			return err
		}
		_, err := tx.Exec(`
			UPDATE wallpapers SET data = NULL
			WHERE data IS NOT NULL AND id NOT IN (
				SELECT id FROM wallpapers ORDER BY accepted_at DESC, id DESC LIMIT ?
			)`, keepData)
		return err
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", ev.Origin, err)
	}
	s.log.Debug("wallpaper saved", "origin", ev.Origin, "size", humanize.IBytes(uint64(len(ev.Blob.Data))))
	return nil
}

// Current returns the most recent wallpaper that still has its data, and
// where it came from. It returns nil and no error when there is none.
func (s *Store) Current() (*bitmap.Blob, string, error) {
	var (
		origin, name string
		mediaType    sql.NullString
		data         []byte
	)
	err := s.db.QueryRow(`
		SELECT origin, name, media_type, data FROM wallpapers
		WHERE data IS NOT NULL
		ORDER BY accepted_at DESC, id DESC LIMIT 1`,
	).Scan(&origin, &name, &mediaType, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("current wallpaper: %w", err)
	}
	return &bitmap.Blob{Name: name, MediaType: mediaType.String, Data: data}, origin, nil
}

// History returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (s *Store) History(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, origin, name, media_type, sha256, size, data IS NOT NULL, accepted_at
		FROM wallpapers ORDER BY accepted_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			mediaType sql.NullString
			accepted  int64
		)
		if err := rows.Scan(&e.ID, &e.Origin, &e.Name, &mediaType, &e.SHA256, &e.Size, &e.HasData, &accepted); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		e.MediaType = mediaType.String
		e.AcceptedAt = time.Unix(0, accepted)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
