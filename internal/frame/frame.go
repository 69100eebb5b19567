// Package frame coalesces draw requests into at most one call per slot per
// display frame.
package frame

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/example/coverpaper/internal/logging"
)

// ErrStopped wraps the error that ended the frame loop.
var ErrStopped = errors.New("frame loop stopped")

// DefaultSlot is the slot used by a single surface.
const DefaultSlot = 0

// Clock blocks until the next frame boundary.
type Clock interface {
	NextFrame(ctx context.Context) error
}

// Ticker is a Clock driven by a fixed refresh rate.
type Ticker struct {
	t *time.Ticker
}

// NewTicker returns a clock ticking fps times per second. Non-positive values
// select 60.
func NewTicker(fps int) *Ticker {
	if fps <= 0 {
		fps = 60
	}
	return &Ticker{t: time.NewTicker(time.Second / time.Duration(fps))}
}

// NextFrame implements Clock.
func (t *Ticker) NextFrame(ctx context.Context) error {
	select {
	case <-t.t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop releases the underlying ticker.
func (t *Ticker) Stop() { t.t.Stop() }

// Scheduler runs registered draw callbacks once per frame.
//
// Schedule may be called from any goroutine. Callbacks run on the goroutine
// executing Run.
type Scheduler struct {
	mu      sync.Mutex
	pending map[int]func()

	clock Clock
	idle  time.Duration
	log   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithIdleDelay delays the first drain after Run starts.
func WithIdleDelay(d time.Duration) Option { return func(s *Scheduler) { s.idle = d } }

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.log = l } }

// New creates a scheduler paced by clock.
func New(clock Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		pending: make(map[int]func()),
		clock:   clock,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logging.OrNop(s.log)
	return s
}

// Schedule registers fn to run at the next frame, replacing whatever was
// registered for slot and not yet run.
func (s *Scheduler) Schedule(slot int, fn func()) {
	s.mu.Lock()
	s.pending[slot] = fn
	s.mu.Unlock()
}

// Pending returns the number of slots waiting for the next frame.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run drains registered callbacks and waits for frame boundaries until a
// frame wait fails. The failure is fatal: Run returns it wrapped in
// ErrStopped and the loop is not restarted.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.idle > 0 {
		timer := time.NewTimer(s.idle)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrStopped, ctx.Err())
		}
	}
	for {
		s.drain()
		if err := s.clock.NextFrame(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrStopped, err)
		}
	}
}

// Start runs the loop in a new goroutine and logs how it ended.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		err := s.Run(ctx)
		if ctx.Err() != nil {
			s.log.Debug("frame loop finished", "err", err)
			return
		}
		s.log.Error("frame loop terminated", "err", err)
	}()
}

func (s *Scheduler) drain() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.pending
	s.pending = make(map[int]func(), len(batch))
	s.mu.Unlock()

	slots := make([]int, 0, len(batch))
	for slot := range batch {
		slots = append(slots, slot)
	}
	slices.Sort(slots)
	for _, slot := range slots {
		if fn := batch[slot]; fn != nil {
			s.invoke(slot, fn)
		}
	}
}

func (s *Scheduler) invoke(slot int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("draw callback panicked", "slot", slot, "panic", r)
		}
	}()
	fn()
}
