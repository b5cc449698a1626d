package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func cycle(offset time.Duration) Cycle {
	return Cycle{Now: t0.Add(offset), BookLevels: 10}
}

func lvl(price string, qty int64) domain.BookLevel {
	return domain.BookLevel{Price: decimal.RequireFromString(price), Quantity: qty, OrderCount: 1}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func scenarioBook() domain.BookSnapshot {
	return domain.BookSnapshot{
		Bids: []domain.BookLevel{lvl("100.00", 50), lvl("99.50", 30)},
		Asks: []domain.BookLevel{lvl("100.50", 20)},
	}
}

func TestBookScenario(t *testing.T) {
	r := New(DefaultConfig())
	v := r.Book(nil, scenarioBook(), cycle(0))

	require.True(t, v.Spread.Valid)
	assert.True(t, v.BestBid.Decimal.Equal(dec("100.00")))
	assert.True(t, v.BestAsk.Decimal.Equal(dec("100.50")))
	assert.True(t, v.Spread.Decimal.Equal(dec("0.50")))
	require.True(t, v.SpreadBps.Valid)
	assert.True(t, v.SpreadBps.Decimal.Equal(dec("49.88")), v.SpreadBps.Decimal.String())
	assert.Equal(t, int64(50), v.Normalization)
	assert.False(t, v.Crossed)
	assert.Empty(t, v.Integrity)
	assert.True(t, v.Bids[0].Width.Equal(dec("100")))
	assert.True(t, v.Bids[1].Width.Equal(dec("60")))
	assert.Len(t, v.Changes.Added, 3)
	assert.Equal(t, uint64(1), v.Generation)
	assert.Equal(t, t0.Add(2*time.Second), v.Changes.ExpiresAt)
}

func TestBookIdempotent(t *testing.T) {
	r := New(DefaultConfig())
	first := r.Book(nil, scenarioBook(), cycle(0))
	second := r.Book(first, scenarioBook(), cycle(2*time.Second))

	assert.True(t, second.Changes.Empty())
	assert.Equal(t, uint64(2), second.Generation)
}

func TestBookMatchesByPrice(t *testing.T) {
	r := New(DefaultConfig())
	first := r.Book(nil, scenarioBook(), cycle(0))

	// A new best bid shifts every level down one slot; 99.50 leaves and
	// 100.00 changes size.
	next := domain.BookSnapshot{
		Bids: []domain.BookLevel{lvl("100.25", 10), lvl("100", 45)},
		Asks: []domain.BookLevel{lvl("100.5", 20)},
	}
	v := r.Book(first, next, cycle(2*time.Second))

	require.Len(t, v.Changes.Added, 1)
	assert.True(t, v.Changes.Added[0].Price.Equal(dec("100.25")))

	require.Len(t, v.Changes.Updated, 1)
	assert.Equal(t, int64(45), v.Changes.Updated[0].Quantity)
	assert.Equal(t, int64(50), v.Changes.Updated[0].PreviousQuantity)

	require.Len(t, v.Changes.Removed, 1)
	assert.Equal(t, view.LevelKey{Side: domain.BookSideBid, Price: "99.5"}, v.Changes.Removed[0])
}

func TestBookCrossedIsFlaggedNotFixed(t *testing.T) {
	r := New(DefaultConfig())
	v := r.Book(nil, domain.BookSnapshot{
		Bids: []domain.BookLevel{lvl("101", 5)},
		Asks: []domain.BookLevel{lvl("100", 5)},
	}, cycle(0))

	assert.True(t, v.Crossed)
	assert.Contains(t, v.Integrity, IssueCrossed)
	assert.True(t, v.BestBid.Decimal.Equal(dec("101")))
	assert.True(t, v.Spread.Decimal.Equal(dec("-1")))
}

func TestBookNormalizesOrderAndDuplicates(t *testing.T) {
	r := New(DefaultConfig())
	v := r.Book(nil, domain.BookSnapshot{
		Bids: []domain.BookLevel{lvl("99", 1), lvl("100", 2), lvl("99.00", 7)},
		Asks: []domain.BookLevel{lvl("102", 3), lvl("101", 4)},
	}, cycle(0))

	require.Len(t, v.Bids, 2)
	assert.True(t, v.Bids[0].Price.Equal(dec("100")))
	assert.Equal(t, int64(1), v.Bids[1].Quantity)
	assert.True(t, v.Asks[0].Price.Equal(dec("101")))
	assert.ElementsMatch(t, []string{IssueUnorderedBids, IssueUnorderedAsks, IssueDuplicateBid}, v.Integrity)
}

func TestBookEmptySide(t *testing.T) {
	r := New(DefaultConfig())
	v := r.Book(nil, domain.BookSnapshot{Bids: []domain.BookLevel{lvl("10", 1)}}, cycle(0))

	assert.False(t, v.BestAsk.Valid)
	assert.False(t, v.Spread.Valid)
	assert.False(t, v.SpreadBps.Valid)
	assert.False(t, v.MidPrice.Valid)
	assert.False(t, v.Crossed)
}

func TestFailureKeepsDataAndSetsStale(t *testing.T) {
	r := New(DefaultConfig())
	good := r.Book(nil, scenarioBook(), cycle(0))
	stale := r.BookFailed(good, domain.NewNetworkError(errors.New("connection refused")), cycle(2*time.Second))

	require.NotNil(t, stale.Stale)
	assert.Equal(t, domain.FetchNetwork, stale.Stale.Kind)
	assert.Equal(t, good.Bids, stale.Bids)
	assert.Equal(t, good.Asks, stale.Asks)
	assert.Equal(t, good.Spread, stale.Spread)
	assert.Equal(t, good.Changes, stale.Changes)
	assert.Equal(t, good.Generation, stale.Generation)
	assert.Nil(t, good.Stale, "previous view must not be modified")

	again := r.BookFailed(stale, domain.NewHTTPError(500, "boom"), cycle(4*time.Second))
	assert.Equal(t, 2, again.Stale.ConsecutiveFailures)
	assert.Equal(t, 500, again.Stale.StatusCode)

	recovered := r.Book(again, scenarioBook(), cycle(6*time.Second))
	assert.Nil(t, recovered.Stale)
	assert.True(t, recovered.Changes.Empty())
}

func TestFailureWithoutPreviousView(t *testing.T) {
	r := New(DefaultConfig())
	v := r.TradesFailed(nil, domain.NewDecodeError(errors.New("bad json")), cycle(0))

	assert.False(t, v.Loaded)
	require.NotNil(t, v.Stale)
	assert.Equal(t, domain.FetchDecode, v.Stale.Kind)
	assert.Empty(t, v.Trades)
	assert.Equal(t, view.FeedTrades, v.Feed)
}

func tick(sym string, ms int64, kind domain.TickKind) domain.Tick {
	t := domain.Tick{Symbol: sym, Kind: kind, Timestamp: time.UnixMilli(ms)}
	switch kind {
	case domain.TickTrade:
		t.Trade = &domain.TradePrint{Price: dec("1"), Size: 1}
	case domain.TickQuote:
		t.Quote = &domain.Quote{BidPrice: dec("1"), AskPrice: dec("2")}
	case domain.TickBar:
		t.Bar = &domain.Bar{Close: dec("1")}
	}
	return t
}

func TestTicksDuplicatesAndOrdering(t *testing.T) {
	r := New(Config{TickWindow: 3})
	window := []domain.Tick{
		tick("AAPL", 3000, domain.TickTrade),
		tick("AAPL", 1000, domain.TickTrade),
		tick("AAPL", 1000, domain.TickTrade),
		tick("AAPL", 1000, domain.TickQuote),
		tick("MSFT", 2000, domain.TickBar),
	}
	v := r.Ticks(nil, window, cycle(0))

	require.Len(t, v.Ticks, 3)
	assert.Equal(t, domain.TickQuote, v.Ticks[0].Kind)
	assert.Equal(t, "MSFT", v.Ticks[1].Symbol)
	assert.Equal(t, int64(3000), v.Ticks[2].Timestamp.UnixMilli())
	assert.Len(t, v.Changes.Added, 3)

	again := r.Ticks(v, window, cycle(time.Second))
	assert.True(t, again.Changes.Empty())

	next := r.Ticks(again, append(window, tick("AAPL", 4000, domain.TickTrade)), cycle(2*time.Second))
	require.Len(t, next.Changes.Added, 1)
	assert.Equal(t, int64(4000), next.Changes.Added[0].Timestamp.UnixMilli())
	require.Len(t, next.Changes.Removed, 1)
	assert.Equal(t, domain.TickQuote, next.Changes.Removed[0].Kind)
}

func trades(from, to int64) []domain.Trade {
	var out []domain.Trade
	for id := from; id <= to; id++ {
		out = append(out, domain.Trade{
			ID: id, Symbol: "AAPL", Price: dec("100"), Quantity: 1, TotalValue: dec("100"),
			Timestamp: time.UnixMilli(id),
		})
	}
	return out
}

func TestTradesBoundedFIFO(t *testing.T) {
	r := New(Config{TradeRetention: 50})

	v := r.Trades(nil, trades(1, 10), cycle(0))
	assert.Len(t, v.Trades, 10)
	assert.Len(t, v.Changes.Added, 10)

	burst := r.Trades(v, trades(1, 500), cycle(3*time.Second))
	require.Len(t, burst.Trades, 50)
	assert.Equal(t, int64(451), burst.Trades[0].ID)
	assert.Equal(t, int64(500), burst.Trades[49].ID)
	assert.Len(t, burst.Changes.Added, 50)
	assert.Len(t, burst.Changes.Removed, 10)
	assert.Equal(t, int64(1), burst.Changes.Removed[0])

	same := r.Trades(burst, trades(1, 500), cycle(6*time.Second))
	assert.True(t, same.Changes.Empty(), "evicted trades must not come back as added")
	assert.Len(t, same.Trades, 50)

	more := r.Trades(same, trades(1, 503), cycle(9*time.Second))
	require.Len(t, more.Trades, 50)
	assert.Equal(t, int64(454), more.Trades[0].ID)
	assert.Equal(t, []int64{451, 452, 453}, more.Changes.Removed)
	require.Len(t, more.Changes.Added, 3)
	assert.Equal(t, int64(501), more.Changes.Added[0].ID)
}

func TestTradesNeverExceedBound(t *testing.T) {
	r := New(Config{TradeRetention: 7})
	var v *view.TradeView
	for i := int64(0); i < 20; i++ {
		v = r.Trades(v, trades(i*13, i*13+40), cycle(time.Duration(i)*time.Second))
		assert.LessOrEqual(t, len(v.Trades), 7)
	}
}

func TestTradesOutOfOrderSnapshot(t *testing.T) {
	r := New(Config{TradeRetention: 5})
	snap := []domain.Trade{trades(3, 3)[0], trades(1, 1)[0], trades(2, 2)[0]}
	v := r.Trades(nil, snap, cycle(0))

	require.Len(t, v.Trades, 3)
	assert.Equal(t, int64(1), v.Trades[0].ID)
	assert.Equal(t, int64(1), v.Changes.Added[0].ID)
}

func TestMarketFieldChanges(t *testing.T) {
	r := New(DefaultConfig())
	s := domain.MarketSummary{
		BestBid:     decimal.NewNullDecimal(dec("100")),
		BestAsk:     decimal.NewNullDecimal(dec("101")),
		Spread:      decimal.NewNullDecimal(dec("1")),
		TotalTrades: 4,
	}
	first := r.Market(nil, s, cycle(0))
	assert.Contains(t, first.Changes.Added, "total_trades")
	assert.True(t, first.MidPrice.Decimal.Equal(dec("100.5")))

	same := r.Market(first, s, cycle(time.Second))
	assert.True(t, same.Changes.Empty())

	s.TotalTrades = 5
	s.BestAsk = decimal.NullDecimal{}
	moved := r.Market(same, s, cycle(2*time.Second))
	assert.ElementsMatch(t, []string{"total_trades", "best_ask"}, moved.Changes.Updated)
	assert.False(t, moved.MidPrice.Valid)
}

func TestStatisticsIdempotent(t *testing.T) {
	r := New(DefaultConfig())
	var s domain.Statistics
	s.Orderbook.TotalOrders = 3
	s.Trades.TotalValue = dec("12.5")

	first := r.Statistics(nil, s, cycle(0))
	second := r.Statistics(first, s, cycle(10*time.Second))
	assert.True(t, second.Changes.Empty())
}

func TestStatusSymbolChanges(t *testing.T) {
	r := New(DefaultConfig())
	first := r.Status(nil, domain.SubscriptionState{Connected: true, ActiveSymbols: []string{"MSFT", "AAPL"}}, cycle(0))
	assert.Equal(t, []string{"AAPL", "MSFT"}, first.ActiveSymbols)
	assert.Equal(t, []string{"AAPL", "MSFT"}, first.Changes.Added)

	next := r.Status(first, domain.SubscriptionState{Connected: false, ActiveSymbols: []string{"AAPL"}}, cycle(5*time.Second))
	assert.Empty(t, next.Changes.Added)
	assert.Equal(t, []string{"MSFT"}, next.Changes.Removed)
	assert.Equal(t, []string{"connected"}, next.Changes.Updated)
}

func TestOrdersChanges(t *testing.T) {
	r := New(DefaultConfig())
	o := domain.Order{Handle: "h1", Status: domain.OrderStatusPending, RequestedQuantity: 10, RemainingQuantity: 10}
	first := r.Orders(nil, []domain.Order{o}, cycle(0))
	require.Len(t, first.Changes.Added, 1)

	o.Status = domain.OrderStatusActive
	o.ID = 7
	second := r.Orders(first, []domain.Order{o}, cycle(time.Second))
	require.Len(t, second.Changes.Updated, 1)
	assert.Equal(t, int64(7), second.Changes.Updated[0].ID)

	third := r.Orders(second, nil, cycle(2*time.Second))
	assert.Equal(t, []string{"h1"}, third.Changes.Removed)
}

func TestNewAppliesDefaults(t *testing.T) {
	r := New(Config{})
	assert.Equal(t, DefaultConfig(), r.Config())
}
