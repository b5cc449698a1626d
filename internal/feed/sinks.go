package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// DefaultBookKey is the cache key of the last good book.
const DefaultBookKey = "tradedesk:book:latest"

const sinkTimeout = 5 * time.Second

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Sinks are the optional outputs of the feeds. A nil field disables that
// output.
type Sinks struct {
	Bus       domain.SignalBus
	BookCache domain.BookCache
	BookKey   string
	Trades    domain.TradeStore
	Orders    domain.OrderStore
	Audit     domain.AuditStore
	Notifier  Notifier
}

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// sinkRunner executes side effects in order on one goroutine. When the queue
// is full new jobs are dropped and counted.
type sinkRunner struct {
	sinks   Sinks
	jobs    chan job
	logger  *slog.Logger
	dropped atomic.Int64
}

func newSinkRunner(s Sinks, buffer int, logger *slog.Logger) *sinkRunner {
	if s.BookKey == "" {
		s.BookKey = DefaultBookKey
	}
	return &sinkRunner{sinks: s, jobs: make(chan job, buffer), logger: logger}
}

func (r *sinkRunner) enqueue(name string, fn func(ctx context.Context) error) {
	select {
	case r.jobs <- job{name: name, fn: fn}:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("feed: sink queue full, dropping job",
			slog.String("job", name),
			slog.Int64("dropped_total", n),
		)
	}
}

func (r *sinkRunner) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case j := <-r.jobs:
			r.exec(context.WithoutCancel(ctx), j)
		}
	}
}

// drain runs what is already queued, bounded by sinkTimeout overall.
func (r *sinkRunner) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	for {
		select {
		case j := <-r.jobs:
			if ctx.Err() != nil {
				return
			}
			r.exec(ctx, j)
		default:
			return
		}
	}
}

func (r *sinkRunner) exec(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	if err := j.fn(ctx); err != nil {
		r.logger.WarnContext(ctx, "feed: sink failed",
			slog.String("job", j.name),
			slog.String("error", err.Error()),
		)
	}
}

func (r *sinkRunner) publishView(feed view.FeedID, model any) {
	if r.sinks.Bus == nil {
		return
	}
	r.enqueue("bus:"+string(feed), func(ctx context.Context) error {
		payload, err := json.Marshal(view.Envelope{Feed: feed, Model: model})
		if err != nil {
			return err
		}
		return r.sinks.Bus.Publish(ctx, view.Channel(feed), payload)
	})
}

func (r *sinkRunner) cacheBook(snap domain.BookSnapshot) {
	if r.sinks.BookCache == nil {
		return
	}
	r.enqueue("book_cache", func(ctx context.Context) error {
		return r.sinks.BookCache.SetBook(ctx, r.sinks.BookKey, snap)
	})
}

// cachedBook reads the last good book, if any. It runs before the feeds
// start, outside the sink goroutine.
func (r *sinkRunner) cachedBook(ctx context.Context) (domain.BookSnapshot, bool) {
	if r.sinks.BookCache == nil {
		return domain.BookSnapshot{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	snap, err := r.sinks.BookCache.GetBook(ctx, r.sinks.BookKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.WarnContext(ctx, "feed: read cached book", slog.String("error", err.Error()))
		}
		return domain.BookSnapshot{}, false
	}
	return snap, true
}

func (r *sinkRunner) journalTrades(trades []domain.Trade) {
	if r.sinks.Trades == nil {
		return
	}
	batch := append([]domain.Trade(nil), trades...)
	r.enqueue("journal_trades", func(ctx context.Context) error {
		return r.sinks.Trades.InsertBatch(ctx, batch)
	})
}

func (r *sinkRunner) journalOrder(o domain.Order) {
	if r.sinks.Orders == nil {
		return
	}
	r.enqueue("journal_order", func(ctx context.Context) error {
		return r.sinks.Orders.Upsert(ctx, o)
	})
}

func (r *sinkRunner) audit(event string, detail map[string]any) {
	if r.sinks.Audit == nil {
		return
	}
	r.enqueue("audit:"+event, func(ctx context.Context) error {
		return r.sinks.Audit.Log(ctx, event, detail)
	})
}

func (r *sinkRunner) notify(event, title, message string) {
	if r.sinks.Notifier == nil {
		return
	}
	r.enqueue("notify:"+event, func(ctx context.Context) error {
		return r.sinks.Notifier.Notify(ctx, event, title, message)
	})
}
