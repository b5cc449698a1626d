// Package feed drives the polling feeds: each cycle fetches one engine
// endpoint, reconciles it against the last published view and publishes the
// result. Side effects (bus, cache, journal, notifications) run on a
// separate sink goroutine so a commit never waits on I/O.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/orders"
	"github.com/alanyoungcy/tradedesk/internal/reconcile"
	"github.com/alanyoungcy/tradedesk/internal/scheduler"
	"github.com/alanyoungcy/tradedesk/internal/subscription"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// Engine is the subset of the engine client the feeds poll.
type Engine interface {
	Orderbook(ctx context.Context, levels int) (domain.BookSnapshot, error)
	MarketData(ctx context.Context) ([]domain.Tick, error)
	Status(ctx context.Context) (domain.ConnectionStatus, error)
	Market(ctx context.Context) (domain.MarketSummary, error)
	Trades(ctx context.Context) ([]domain.Trade, error)
	Statistics(ctx context.Context) (domain.Statistics, error)
}

// Config holds the cadence of each polled feed.
type Config struct {
	Intervals  map[view.FeedID]time.Duration
	BookLevels int
	MaxBackoff time.Duration
	SinkBuffer int
}

// MaxBookLevels caps the depth a caller may request.
const MaxBookLevels = 50

// DefaultConfig returns the dashboard cadences.
func DefaultConfig() Config {
	return Config{
		Intervals: map[view.FeedID]time.Duration{
			view.FeedBook:       2 * time.Second,
			view.FeedTicks:      2 * time.Second,
			view.FeedTrades:     3 * time.Second,
			view.FeedStatus:     5 * time.Second,
			view.FeedMarket:     5 * time.Second,
			view.FeedStatistics: 10 * time.Second,
		},
		BookLevels: 10,
		MaxBackoff: 30 * time.Second,
		SinkBuffer: 256,
	}
}

// PolledFeeds lists the feeds backed by an engine endpoint.
func PolledFeeds() []view.FeedID {
	return []view.FeedID{
		view.FeedBook, view.FeedTicks, view.FeedTrades,
		view.FeedStatus, view.FeedMarket, view.FeedStatistics,
	}
}

func polled(f view.FeedID) bool {
	for _, p := range PolledFeeds() {
		if p == f {
			return true
		}
	}
	return false
}

// Deps are the collaborators of a Coordinator. Only Client, Views,
// Subscriptions and Orders are required.
type Deps struct {
	Client        Engine
	Reconciler    *reconcile.Reconciler
	Views         *view.Store
	Subscriptions *subscription.Manager
	Orders        *orders.Tracker
	Sinks         Sinks
	Logger        *slog.Logger
}

// Coordinator owns the scheduler and the per-feed cycle logic.
type Coordinator struct {
	cfg    Config
	client Engine
	rec    *reconcile.Reconciler
	views  *view.Store
	subs   *subscription.Manager
	orders *orders.Tracker
	sinks  *sinkRunner
	sched  *scheduler.Scheduler
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	bookLevels int
	gates      map[view.FeedID]*gate
	seed       *view.BookView

	ordersMu sync.Mutex
	statusMu sync.Mutex
}

// NewCoordinator validates cfg against the defaults and wires the feeds.
func NewCoordinator(cfg Config, deps Deps) *Coordinator {
	def := DefaultConfig()
	intervals := make(map[view.FeedID]time.Duration, len(def.Intervals))
	for f, d := range def.Intervals {
		intervals[f] = d
	}
	for f, d := range cfg.Intervals {
		if d > 0 {
			intervals[f] = d
		}
	}
	cfg.Intervals = intervals
	if cfg.BookLevels <= 0 {
		cfg.BookLevels = def.BookLevels
	}
	if cfg.BookLevels > MaxBookLevels {
		cfg.BookLevels = MaxBookLevels
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.SinkBuffer <= 0 {
		cfg.SinkBuffer = def.SinkBuffer
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "feed"))
	rec := deps.Reconciler
	if rec == nil {
		rec = reconcile.New(reconcile.DefaultConfig())
	}

	c := &Coordinator{
		cfg:        cfg,
		client:     deps.Client,
		rec:        rec,
		views:      deps.Views,
		subs:       deps.Subscriptions,
		orders:     deps.Orders,
		sinks:      newSinkRunner(deps.Sinks, cfg.SinkBuffer, logger),
		sched:      scheduler.New(context.Background(), logger),
		logger:     logger,
		now:        time.Now,
		bookLevels: cfg.BookLevels,
		gates:      make(map[view.FeedID]*gate),
	}
	for _, f := range PolledFeeds() {
		c.gates[f] = newGate(cfg.Intervals[f], cfg.MaxBackoff)
	}
	c.views.OnPublish(c.sinks.publishView)
	return c
}

// Run warms the book from the cache, starts every polled feed and blocks
// until ctx is done. In-flight cycles are cancelled on return.
func (c *Coordinator) Run(ctx context.Context) error {
	c.warmStart(ctx)

	for _, f := range PolledFeeds() {
		if err := c.StartFeed(f); err != nil {
			return fmt.Errorf("feed: start %s: %w", f, err)
		}
	}
	c.PublishOrders()
	c.logger.InfoContext(ctx, "feed: coordinator started",
		slog.Int("book_levels", c.BookLevels()),
	)

	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		c.sinks.run(ctx)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.sched.Close(shutdownCtx); err != nil {
		c.logger.Warn("feed: scheduler close", slog.String("error", err.Error()))
	}
	<-sinkDone
	c.logger.Info("feed: coordinator stopped")
	return nil
}

func (c *Coordinator) warmStart(ctx context.Context) {
	snap, ok := c.sinks.cachedBook(ctx)
	if !ok {
		return
	}
	cyc := c.cycle()
	seed := c.rec.Book(nil, snap, cyc)
	seed.Generation = 0
	c.mu.Lock()
	c.seed = seed
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "feed: book warm start from cache",
		slog.Int("bids", len(snap.Bids)),
		slog.Int("asks", len(snap.Asks)),
	)
}

// StartFeed starts (or resumes) a polled feed.
func (c *Coordinator) StartFeed(f view.FeedID) error {
	if !polled(f) {
		return fmt.Errorf("feed: start %s: %w", f, domain.ErrUnknownFeed)
	}
	return c.sched.Start(string(f), c.cfg.Intervals[f], c.work(f))
}

// StopFeed pauses a polled feed. It reports whether the feed was running.
func (c *Coordinator) StopFeed(f view.FeedID) (bool, error) {
	if !polled(f) {
		return false, fmt.Errorf("feed: stop %s: %w", f, domain.ErrUnknownFeed)
	}
	return c.sched.Stop(string(f)), nil
}

// FeedState is the scheduling state of one polled feed.
type FeedState struct {
	Feed     view.FeedID     `json:"feed"`
	Running  bool            `json:"running"`
	Interval time.Duration   `json:"interval"`
	Stats    scheduler.Stats `json:"stats"`
}

// Feeds reports every polled feed.
func (c *Coordinator) Feeds() []FeedState {
	out := make([]FeedState, 0, len(PolledFeeds()))
	for _, f := range PolledFeeds() {
		st, running := c.sched.Stats(string(f))
		out = append(out, FeedState{Feed: f, Running: running, Interval: c.cfg.Intervals[f], Stats: st})
	}
	return out
}

// BookLevels returns the depth the book feed polls.
func (c *Coordinator) BookLevels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bookLevels
}

// SetBookLevels changes the book depth and restarts the book feed if it was
// running so the next cycle uses the new depth.
func (c *Coordinator) SetBookLevels(n int) error {
	if n < 1 || n > MaxBookLevels {
		return domain.InvalidRequestf("levels must be between 1 and %d, got %d", MaxBookLevels, n)
	}
	c.mu.Lock()
	c.bookLevels = n
	c.mu.Unlock()

	if c.sched.Stop(string(view.FeedBook)) {
		return c.StartFeed(view.FeedBook)
	}
	return nil
}

func (c *Coordinator) cycle() reconcile.Cycle {
	return reconcile.Cycle{Now: c.now().UTC(), BookLevels: c.BookLevels()}
}

// work builds the scheduler callback of a feed. The fetch runs outside any
// lock; the returned commit reconciles and publishes.
func (c *Coordinator) work(f view.FeedID) scheduler.Work {
	g := c.gates[f]
	return func(ctx context.Context) (func(), error) {
		if !g.open(c.now()) {
			return nil, nil
		}
		commit, err := c.fetch(ctx, f)
		if err != nil {
			delay := g.fail(c.now())
			c.logger.DebugContext(ctx, "feed: backing off",
				slog.String("feed", string(f)),
				slog.Duration("delay", delay),
			)
		} else {
			g.succeed()
		}
		return commit, err
	}
}

func (c *Coordinator) fetch(ctx context.Context, f view.FeedID) (func(), error) {
	switch f {
	case view.FeedBook:
		levels := c.BookLevels()
		snap, err := c.client.Orderbook(ctx, levels)
		return func() { c.commitBook(snap, err) }, err
	case view.FeedTicks:
		ticks, err := c.client.MarketData(ctx)
		return func() { c.commitTicks(ticks, err) }, err
	case view.FeedTrades:
		trades, err := c.client.Trades(ctx)
		return func() { c.commitTrades(trades, err) }, err
	case view.FeedStatus:
		report, err := c.client.Status(ctx)
		return func() { c.commitStatus(report, err) }, err
	case view.FeedMarket:
		summary, err := c.client.Market(ctx)
		return func() { c.commitMarket(summary, err) }, err
	case view.FeedStatistics:
		stats, err := c.client.Statistics(ctx)
		return func() { c.commitStatistics(stats, err) }, err
	}
	return nil, fmt.Errorf("feed: %s: %w", f, domain.ErrUnknownFeed)
}

func (c *Coordinator) commitBook(snap domain.BookSnapshot, err error) {
	cyc := c.cycle()
	prev := c.views.Book()
	if prev == nil {
		c.mu.Lock()
		prev = c.seed
		c.mu.Unlock()
	}
	if err != nil {
		c.views.PublishBook(c.rec.BookFailed(c.views.Book(), err, cyc))
		return
	}
	c.views.PublishBook(c.rec.Book(prev, snap, cyc))
	c.sinks.cacheBook(snap)
}

func (c *Coordinator) commitTicks(ticks []domain.Tick, err error) {
	cyc := c.cycle()
	if err != nil {
		c.views.PublishTicks(c.rec.TicksFailed(c.views.Ticks(), err, cyc))
		return
	}
	c.views.PublishTicks(c.rec.Ticks(c.views.Ticks(), ticks, cyc))
}

func (c *Coordinator) commitTrades(trades []domain.Trade, err error) {
	cyc := c.cycle()
	if err != nil {
		c.views.PublishTrades(c.rec.TradesFailed(c.views.Trades(), err, cyc))
		return
	}
	v := c.rec.Trades(c.views.Trades(), trades, cyc)
	c.views.PublishTrades(v)
	if len(v.Changes.Added) > 0 {
		c.sinks.journalTrades(v.Changes.Added)
	}

	for _, o := range c.orders.ApplyTrades(trades) {
		c.sinks.journalOrder(o)
		if o.Status == domain.OrderStatusFilled {
			c.sinks.notify(domain.EventOrderFilled, "Order filled",
				fmt.Sprintf("%s %s %d @ %s (order %d)", o.Side, o.Symbol, o.FilledQuantity, priceText(o), o.ID))
		}
	}
	c.PublishOrders()
}

func (c *Coordinator) commitStatus(report domain.ConnectionStatus, err error) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	cyc := c.cycle()
	prev := c.views.Status()
	if err != nil {
		state := c.subs.RecordFailure(err)
		next := c.rec.StatusFailed(prev, err, state, cyc)
		c.views.PublishStatus(next)
		c.connectionEdge(prev, next.Connected)
		return
	}

	state, changes := c.subs.Reconcile(report)
	next := c.rec.Status(prev, state, cyc)
	c.views.PublishStatus(next)
	c.connectionEdge(prev, next.Connected)
	for _, t := range changes {
		event := domain.EventSubscribed
		if t.To == domain.PhaseUnsubscribed {
			event = domain.EventUnsubscribed
		}
		c.sinks.audit(event, map[string]any{
			"symbol": t.Symbol,
			"from":   string(t.From),
			"to":     string(t.To),
			"source": "reconcile",
		})
	}
}

// connectionEdge reports a flip of the connected flag. The first published
// status establishes the baseline and is not an edge.
func (c *Coordinator) connectionEdge(prev *view.StatusView, connected bool) {
	if prev == nil || !prev.Loaded || prev.Connected == connected {
		return
	}
	if connected {
		c.logger.Info("feed: engine connection restored")
		c.sinks.audit(domain.EventConnectionRestored, nil)
		c.sinks.notify(domain.EventConnectionRestored, "Connection restored", "The trading engine reports its market-data connection is up.")
		return
	}
	c.logger.Warn("feed: engine connection lost")
	c.sinks.audit(domain.EventConnectionLost, nil)
	c.sinks.notify(domain.EventConnectionLost, "Connection lost", "The trading engine market-data connection is down or unreachable.")
}

func (c *Coordinator) commitMarket(summary domain.MarketSummary, err error) {
	cyc := c.cycle()
	if err != nil {
		c.views.PublishMarket(c.rec.MarketFailed(c.views.Market(), err, cyc))
		return
	}
	c.views.PublishMarket(c.rec.Market(c.views.Market(), summary, cyc))
}

func (c *Coordinator) commitStatistics(stats domain.Statistics, err error) {
	cyc := c.cycle()
	if err != nil {
		c.views.PublishStatistics(c.rec.StatisticsFailed(c.views.Statistics(), err, cyc))
		return
	}
	c.views.PublishStatistics(c.rec.Statistics(c.views.Statistics(), stats, cyc))
}

// PublishOrders republishes the tracker snapshot when it changed. Order
// commands call it after every transition.
func (c *Coordinator) PublishOrders() {
	c.ordersMu.Lock()
	defer c.ordersMu.Unlock()

	c.orders.Prune()
	prev := c.views.Orders()
	next := c.rec.Orders(prev, c.orders.Snapshot(), c.cycle())
	if prev != nil && next.Changes.Empty() {
		return
	}
	c.views.PublishOrders(next)
}

// PublishStatus republishes the status view from the subscription manager
// without polling, so a subscribe command shows up before the next cycle.
func (c *Coordinator) PublishStatus() {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	prev := c.views.Status()
	if prev == nil {
		return
	}
	next := c.rec.Status(prev, c.subs.Snapshot(), c.cycle())
	next.Stale = prev.Stale
	c.views.PublishStatus(next)
}

func priceText(o domain.Order) string {
	if !o.Price.Valid {
		return "MKT"
	}
	return o.Price.Decimal.String()
}
