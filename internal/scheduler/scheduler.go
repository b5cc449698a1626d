// Package scheduler runs independent polling loops, one per feed, with at
// most one cycle of a feed in flight at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// Work performs the blocking part of one cycle (the fetch) and returns the
// commit step that applies its result. The commit runs only if the feed is
// still running when the work returns. Either return value may be nil; a
// non-nil error is logged and does not stop the feed.
type Work func(ctx context.Context) (commit func(), err error)

// Stats counts what happened to a feed's ticks.
type Stats struct {
	Committed int64 `json:"committed"`
	Skipped   int64 `json:"skipped"`
	Discarded int64 `json:"discarded"`
	Failures  int64 `json:"failures"`
}

// Scheduler owns the per-feed timers.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu    sync.Mutex
	feeds map[string]*feed
	wg    sync.WaitGroup

	// inflight maps a feed id to the instance whose cycle is running. It
	// outlives Stop, so a restarted feed never overlaps the cycle of the
	// instance it replaced.
	inflight map[string]*feed
}

type feed struct {
	id       string
	interval time.Duration
	work     Work

	// mu orders commits against stop: once stop has set stopped, no commit
	// starts, and stop waits for a running commit to finish.
	mu      sync.Mutex
	stopped bool
	done    chan struct{}

	// deferred is set when a trigger was dropped because the previous
	// instance of the feed still had a cycle in flight.
	deferred atomic.Bool

	committed atomic.Int64
	skipped   atomic.Int64
	discarded atomic.Int64
	failures  atomic.Int64
}

// New creates a Scheduler whose cycles run under ctx. Cancelling ctx stops
// every feed and cancels in-flight work.
func New(ctx context.Context, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With(slog.String("component", "scheduler")),
		feeds:    make(map[string]*feed),
		inflight: make(map[string]*feed),
	}
}

// Start begins invoking work for id immediately and then every interval.
func (s *Scheduler) Start(id string, interval time.Duration, work Work) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: feed %s: interval must be positive, got %s", id, interval)
	}
	if work == nil {
		return fmt.Errorf("scheduler: feed %s: nil work", id)
	}
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("scheduler: closed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.feeds[id]; ok {
		return fmt.Errorf("scheduler: feed %s: %w", id, domain.ErrFeedRunning)
	}

	f := &feed{id: id, interval: interval, work: work, done: make(chan struct{})}
	s.feeds[id] = f

	s.wg.Add(1)
	go s.loop(f)

	s.logger.Info("scheduler: feed started",
		slog.String("feed", id),
		slog.Duration("interval", interval),
	)
	return nil
}

// Stop halts a feed. It is idempotent and reports whether the feed was
// running. When Stop returns no new cycle of the feed will begin and the
// result of a cycle still in flight will be discarded.
func (s *Scheduler) Stop(id string) bool {
	s.mu.Lock()
	f, ok := s.feeds[id]
	delete(s.feeds, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	f.stop()
	s.logger.Info("scheduler: feed stopped", slog.String("feed", id))
	return true
}

// Running reports whether id has been started and not stopped.
func (s *Scheduler) Running(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.feeds[id]
	return ok
}

// Stats returns the counters of a running feed.
func (s *Scheduler) Stats(id string) (Stats, bool) {
	s.mu.Lock()
	f, ok := s.feeds[id]
	s.mu.Unlock()
	if !ok {
		return Stats{}, false
	}
	return Stats{
		Committed: f.committed.Load(),
		Skipped:   f.skipped.Load(),
		Discarded: f.discarded.Load(),
		Failures:  f.failures.Load(),
	}, true
}

// Close stops every feed, cancels in-flight work and waits for all cycles to
// return or ctx to expire.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	feeds := s.feeds
	s.feeds = make(map[string]*feed)
	s.mu.Unlock()

	for _, f := range feeds {
		f.stop()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: close: %w", ctx.Err())
	}
}

func (f *feed) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.done)
	}
}

func (s *Scheduler) loop(f *feed) {
	defer s.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	s.trigger(f)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-f.done:
			return
		case <-ticker.C:
			s.trigger(f)
		}
	}
}

// trigger starts a cycle unless the feed is stopped or a cycle is still in
// flight, in which case the tick is dropped.
func (s *Scheduler) trigger(f *feed) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	s.mu.Lock()
	if owner := s.inflight[f.id]; owner != nil {
		if owner != f {
			f.deferred.Store(true)
		}
		s.mu.Unlock()
		f.mu.Unlock()
		f.skipped.Add(1)
		s.logger.Debug("scheduler: tick skipped, cycle in flight", slog.String("feed", f.id))
		return
	}
	s.inflight[f.id] = f
	s.mu.Unlock()
	s.wg.Add(1)
	f.mu.Unlock()

	go s.cycle(f)
}

func (s *Scheduler) cycle(f *feed) {
	defer s.wg.Done()
	defer s.release(f)
	defer func() {
		if r := recover(); r != nil {
			f.failures.Add(1)
			s.logger.Error("scheduler: cycle panicked",
				slog.String("feed", f.id),
				slog.Any("panic", r),
			)
		}
	}()

	commit, err := f.work(s.ctx)
	if err != nil {
		f.failures.Add(1)
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		s.logger.Log(s.ctx, level, "scheduler: cycle failed",
			slog.String("feed", f.id),
			slog.String("error", err.Error()),
		)
	}
	if commit == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		f.discarded.Add(1)
		return
	}
	commit()
	f.committed.Add(1)
}

// release clears the in-flight mark of f's id. If f was stopped and replaced
// while its cycle ran, the replacement's dropped first trigger runs now
// instead of waiting a full interval.
func (s *Scheduler) release(f *feed) {
	s.mu.Lock()
	delete(s.inflight, f.id)
	next := s.feeds[f.id]
	s.mu.Unlock()

	if next != nil && next != f && next.deferred.Swap(false) {
		s.trigger(next)
	}
}
