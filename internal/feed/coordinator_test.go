package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/orders"
	"github.com/alanyoungcy/tradedesk/internal/subscription"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

type fakeEngine struct {
	mu        sync.Mutex
	book      domain.BookSnapshot
	levels    []int
	ticks     []domain.Tick
	trades    []domain.Trade
	status    domain.ConnectionStatus
	statusErr error
	calls     map[string]int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		book: domain.BookSnapshot{
			Bids: []domain.BookLevel{lvl("100.00", 50), lvl("99.50", 30)},
			Asks: []domain.BookLevel{lvl("100.50", 20)},
		},
		status: domain.ConnectionStatus{Connected: true, SubscribedSymbols: []string{"AAPL"}},
		calls:  map[string]int{},
	}
}

func lvl(p string, q int64) domain.BookLevel {
	return domain.BookLevel{Price: decimal.RequireFromString(p), Quantity: q, OrderCount: 1}
}

func (f *fakeEngine) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeEngine) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeEngine) Orderbook(_ context.Context, levels int) (domain.BookSnapshot, error) {
	f.hit("book")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, levels)
	return f.book, nil
}

func (f *fakeEngine) MarketData(context.Context) ([]domain.Tick, error) {
	f.hit("ticks")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks, nil
}

func (f *fakeEngine) Status(context.Context) (domain.ConnectionStatus, error) {
	f.hit("status")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeEngine) Market(context.Context) (domain.MarketSummary, error) {
	f.hit("market")
	return domain.MarketSummary{TotalTrades: 3}, nil
}

func (f *fakeEngine) Trades(context.Context) ([]domain.Trade, error) {
	f.hit("trades")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trades, nil
}

func (f *fakeEngine) Statistics(context.Context) (domain.Statistics, error) {
	f.hit("statistics")
	return domain.Statistics{}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) has(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

type recordingBus struct {
	mu       sync.Mutex
	channels map[string]int
}

func (b *recordingBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channels == nil {
		b.channels = map[string]int{}
	}
	b.channels[channel]++
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBus) seen(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[channel] > 0
}

type staticCache struct{ snap domain.BookSnapshot }

func (s staticCache) SetBook(context.Context, string, domain.BookSnapshot) error { return nil }
func (s staticCache) GetBook(context.Context, string) (domain.BookSnapshot, error) {
	return s.snap, nil
}

type harness struct {
	engine  *fakeEngine
	views   *view.Store
	tracker *orders.Tracker
	coord   *Coordinator
	cancel  context.CancelFunc
	done    chan error
}

func fastConfig() Config {
	iv := map[view.FeedID]time.Duration{}
	for _, f := range PolledFeeds() {
		iv[f] = 10 * time.Millisecond
	}
	return Config{Intervals: iv, BookLevels: 10, MaxBackoff: 20 * time.Millisecond}
}

func start(t *testing.T, engine *fakeEngine, sinks Sinks) *harness {
	t.Helper()
	return startWith(t, engine, sinks, view.NewStore())
}

func startWith(t *testing.T, engine *fakeEngine, sinks Sinks, views *view.Store) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		engine:  engine,
		views:   views,
		tracker: orders.NewTracker(orders.Config{}, logger),
		done:    make(chan error, 1),
	}
	h.coord = NewCoordinator(fastConfig(), Deps{
		Client:        engine,
		Views:         h.views,
		Subscriptions: subscription.NewManager(nil, 3, logger),
		Orders:        h.tracker,
		Sinks:         sinks,
		Logger:        logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.coord.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
	<-h.done
}

func TestFeedsPublishReconciledViews(t *testing.T) {
	bus := &recordingBus{}
	h := start(t, newFakeEngine(), Sinks{Bus: bus})

	require.Eventually(t, func() bool {
		b, s := h.views.Book(), h.views.Status()
		return b != nil && b.Loaded && s != nil && s.Loaded
	}, 2*time.Second, 5*time.Millisecond)

	b := h.views.Book()
	assert.Equal(t, "100", b.BestBid.Decimal.String())
	assert.Equal(t, "0.5", b.Spread.Decimal.String())
	assert.Equal(t, int64(50), b.Normalization)
	assert.Equal(t, []string{"AAPL"}, h.views.Status().ActiveSymbols)

	require.Eventually(t, func() bool {
		return bus.seen(view.Channel(view.FeedBook)) && bus.seen(view.Channel(view.FeedStatus))
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotNil(t, h.views.Orders(), "orders view published at start")
}

func TestStatusFailuresDropConnection(t *testing.T) {
	engine := newFakeEngine()
	notifier := &recordingNotifier{}
	h := start(t, engine, Sinks{Notifier: notifier})

	require.Eventually(t, func() bool {
		s := h.views.Status()
		return s != nil && s.Loaded && s.Connected
	}, 2*time.Second, 5*time.Millisecond)

	engine.mu.Lock()
	engine.statusErr = domain.NewNetworkError(errors.New("connection refused"))
	engine.mu.Unlock()

	require.Eventually(t, func() bool {
		s := h.views.Status()
		return s.Stale != nil && s.Stale.ConsecutiveFailures >= 3 && !s.Connected
	}, 3*time.Second, 5*time.Millisecond)
	s := h.views.Status()
	assert.Equal(t, domain.FetchNetwork, s.Stale.Kind)
	assert.Equal(t, []string{"AAPL"}, s.ActiveSymbols, "data kept while stale")

	require.Eventually(t, func() bool { return notifier.has(domain.EventConnectionLost) },
		2*time.Second, 5*time.Millisecond)

	engine.mu.Lock()
	engine.statusErr = nil
	engine.mu.Unlock()
	require.Eventually(t, func() bool {
		s := h.views.Status()
		return s.Stale == nil && s.Connected
	}, 3*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return notifier.has(domain.EventConnectionRestored) },
		2*time.Second, 5*time.Millisecond)
}

func TestTradesDriveOrderFills(t *testing.T) {
	engine := newFakeEngine()
	h := start(t, engine, Sinks{})

	p, err := h.tracker.Submit(domain.OrderRequest{
		Symbol: "AAPL", Side: domain.OrderSideBuy, Kind: domain.OrderKindLimit,
		Price: decimal.NewNullDecimal(decimal.RequireFromString("150")), Quantity: 100,
	})
	require.NoError(t, err)
	_, err = h.tracker.Acknowledge(p.Handle, domain.OrderAck{Order: domain.OrderUpdate{
		ID: 5, ClientID: p.ClientID, Quantity: 100,
	}})
	require.NoError(t, err)
	h.coord.PublishOrders()

	engine.mu.Lock()
	engine.trades = []domain.Trade{{ID: 1, BuyOrderID: 5, SellOrderID: 9, Symbol: "AAPL",
		Price: decimal.RequireFromString("150"), Quantity: 40}}
	engine.mu.Unlock()

	require.Eventually(t, func() bool {
		ov := h.views.Orders()
		return ov != nil && len(ov.Orders) == 1 && ov.Orders[0].FilledQuantity == 40
	}, 2*time.Second, 5*time.Millisecond)
	o := h.views.Orders().Orders[0]
	assert.Equal(t, domain.OrderStatusPartiallyFilled, o.Status)
	assert.Equal(t, int64(60), o.RemainingQuantity)

	tv := h.views.Trades()
	require.NotNil(t, tv)
	assert.Len(t, tv.Trades, 1)
}

func TestStopFeedHaltsPublishing(t *testing.T) {
	engine := newFakeEngine()
	h := start(t, engine, Sinks{})

	require.Eventually(t, func() bool { return engine.count("ticks") > 0 }, 2*time.Second, 5*time.Millisecond)
	running, err := h.coord.StopFeed(view.FeedTicks)
	require.NoError(t, err)
	assert.True(t, running)

	// Let any in-flight cycle settle before sampling.
	time.Sleep(30 * time.Millisecond)
	before := engine.count("ticks")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, before, engine.count("ticks"))

	running, err = h.coord.StopFeed(view.FeedTicks)
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, h.coord.StartFeed(view.FeedTicks))
	require.Eventually(t, func() bool { return engine.count("ticks") > before }, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, h.coord.StartFeed(view.FeedOrders), domain.ErrUnknownFeed)
}

func TestSetBookLevels(t *testing.T) {
	engine := newFakeEngine()
	h := start(t, engine, Sinks{})

	assert.ErrorIs(t, h.coord.SetBookLevels(0), domain.ErrInvalidRequest)
	assert.ErrorIs(t, h.coord.SetBookLevels(MaxBookLevels+1), domain.ErrInvalidRequest)

	require.NoError(t, h.coord.SetBookLevels(20))
	assert.Equal(t, 20, h.coord.BookLevels())
	require.Eventually(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return len(engine.levels) > 0 && engine.levels[len(engine.levels)-1] == 20
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		b := h.views.Book()
		return b != nil && b.Levels == 20
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWarmStartDiffsAgainstCachedBook(t *testing.T) {
	engine := newFakeEngine()
	views := view.NewStore()
	first := make(chan *view.BookView, 1)
	views.OnPublish(func(feed view.FeedID, model any) {
		if feed != view.FeedBook {
			return
		}
		select {
		case first <- model.(*view.BookView):
		default:
		}
	})
	startWith(t, engine, Sinks{BookCache: staticCache{snap: engine.book}}, views)

	var b *view.BookView
	select {
	case b = <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("no book published")
	}
	assert.True(t, b.Loaded)
	assert.Equal(t, uint64(1), b.Generation)
	assert.True(t, b.Changes.Empty(), "cached book equals live book")
}

func TestColdStartReportsEveryLevelAdded(t *testing.T) {
	engine := newFakeEngine()
	views := view.NewStore()
	first := make(chan *view.BookView, 1)
	views.OnPublish(func(feed view.FeedID, model any) {
		if feed != view.FeedBook {
			return
		}
		select {
		case first <- model.(*view.BookView):
		default:
		}
	})
	startWith(t, engine, Sinks{}, views)

	select {
	case b := <-first:
		assert.Len(t, b.Changes.Added, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("no book published")
	}
}
