// Package reconcile turns a fresh engine snapshot plus the previously
// published view into the next view and its change-set. Every function here
// is pure: the previous view is read, never modified.
package reconcile

import (
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// Config bounds what the reconciler retains.
type Config struct {
	TickWindow     int
	TradeRetention int
	HighlightTTL   time.Duration
}

// DefaultConfig mirrors the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		TickWindow:     50,
		TradeRetention: 50,
		HighlightTTL:   2 * time.Second,
	}
}

// Cycle carries the per-cycle inputs that are not part of the snapshot.
type Cycle struct {
	Now        time.Time
	BookLevels int
}

// Reconciler computes next views. It holds configuration only.
type Reconciler struct {
	cfg Config
}

// New creates a Reconciler, replacing non-positive bounds with defaults.
func New(cfg Config) *Reconciler {
	def := DefaultConfig()
	if cfg.TickWindow <= 0 {
		cfg.TickWindow = def.TickWindow
	}
	if cfg.TradeRetention <= 0 {
		cfg.TradeRetention = def.TradeRetention
	}
	if cfg.HighlightTTL <= 0 {
		cfg.HighlightTTL = def.HighlightTTL
	}
	return &Reconciler{cfg: cfg}
}

// Config returns the effective configuration.
func (r *Reconciler) Config() Config { return r.cfg }

func (r *Reconciler) expiry(c Cycle) time.Time {
	return c.Now.Add(r.cfg.HighlightTTL)
}

func nextMeta(prev *view.Meta, feed view.FeedID, now time.Time) view.Meta {
	var m view.Meta
	if prev != nil {
		m = *prev
	}
	return m.Next(feed, now)
}

// carry builds the view published after a failed fetch: data and change-set
// come from prev, only the stale marker changes. Without a previous view the
// result is an unloaded placeholder.
func carry[V any](prev *V, empty V, fail func(V) *V) *V {
	if prev == nil {
		return fail(empty)
	}
	return fail(*prev)
}

func (r *Reconciler) BookFailed(prev *view.BookView, err error, c Cycle) *view.BookView {
	empty := view.BookView{Meta: view.Meta{Feed: view.FeedBook}, Levels: c.BookLevels}
	return carry(prev, empty, func(v view.BookView) *view.BookView { return v.WithFailure(err, c.Now) })
}

func (r *Reconciler) TicksFailed(prev *view.TickView, err error, c Cycle) *view.TickView {
	empty := view.TickView{Meta: view.Meta{Feed: view.FeedTicks}, Window: r.cfg.TickWindow}
	return carry(prev, empty, func(v view.TickView) *view.TickView { return v.WithFailure(err, c.Now) })
}

func (r *Reconciler) TradesFailed(prev *view.TradeView, err error, c Cycle) *view.TradeView {
	empty := view.TradeView{Meta: view.Meta{Feed: view.FeedTrades}, Retention: r.cfg.TradeRetention}
	return carry(prev, empty, func(v view.TradeView) *view.TradeView { return v.WithFailure(err, c.Now) })
}

func (r *Reconciler) MarketFailed(prev *view.MarketView, err error, c Cycle) *view.MarketView {
	empty := view.MarketView{Meta: view.Meta{Feed: view.FeedMarket}}
	return carry(prev, empty, func(v view.MarketView) *view.MarketView { return v.WithFailure(err, c.Now) })
}

func (r *Reconciler) StatisticsFailed(prev *view.StatisticsView, err error, c Cycle) *view.StatisticsView {
	empty := view.StatisticsView{Meta: view.Meta{Feed: view.FeedStatistics}}
	return carry(prev, empty, func(v view.StatisticsView) *view.StatisticsView { return v.WithFailure(err, c.Now) })
}

// StatusFailed carries the status view; state supplies the connected flag,
// which the subscription manager may have dropped after repeated failures.
func (r *Reconciler) StatusFailed(prev *view.StatusView, err error, state domain.SubscriptionState, c Cycle) *view.StatusView {
	empty := view.StatusView{Meta: view.Meta{Feed: view.FeedStatus}}
	return carry(prev, empty, func(v view.StatusView) *view.StatusView { return v.WithFailure(err, c.Now, state) })
}
