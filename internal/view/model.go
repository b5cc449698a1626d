// Package view defines the immutable per-feed view models handed to the
// presentation layer and the store that publishes them.
package view

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// FeedID names a polled feed.
type FeedID string

const (
	FeedBook       FeedID = "book"
	FeedTicks      FeedID = "ticks"
	FeedTrades     FeedID = "trades"
	FeedStatus     FeedID = "status"
	FeedMarket     FeedID = "market"
	FeedStatistics FeedID = "statistics"
	FeedOrders     FeedID = "orders"
)

// AllFeeds lists every feed in publication order.
func AllFeeds() []FeedID {
	return []FeedID{FeedBook, FeedTicks, FeedTrades, FeedStatus, FeedMarket, FeedStatistics, FeedOrders}
}

// ParseFeed validates a feed name.
func ParseFeed(s string) (FeedID, bool) {
	for _, f := range AllFeeds() {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// ChangeSet is the delta between two successive views. Removed carries keys
// only. The presentation highlights the delta until ExpiresAt.
type ChangeSet[K comparable, V any] struct {
	Added     []V       `json:"added"`
	Removed   []K       `json:"removed"`
	Updated   []V       `json:"updated"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Empty reports whether nothing changed.
func (c ChangeSet[K, V]) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}

// StaleMarker explains why a view is carried over from an earlier cycle.
type StaleMarker struct {
	Kind                domain.FetchErrorKind `json:"kind"`
	StatusCode          int                   `json:"status_code,omitempty"`
	Message             string                `json:"message"`
	Since               time.Time             `json:"since"`
	ConsecutiveFailures int                   `json:"consecutive_failures"`
}

// Meta is shared by every view.
type Meta struct {
	Feed       FeedID       `json:"feed"`
	Generation uint64       `json:"generation"`
	UpdatedAt  time.Time    `json:"updated_at"`
	Loaded     bool         `json:"loaded"`
	Stale      *StaleMarker `json:"stale,omitempty"`
}

// IsStale reports whether the last cycle failed.
func (m Meta) IsStale() bool { return m.Stale != nil }

// Header returns the meta itself; views expose it through embedding.
func (m Meta) Header() Meta { return m }

// Next returns the meta of a successful cycle following m.
func (m Meta) Next(feed FeedID, now time.Time) Meta {
	return Meta{Feed: feed, Generation: m.Generation + 1, UpdatedAt: now, Loaded: true}
}

// MarkStale returns m with the stale marker set from err. The first failure
// of a run fixes Since; later failures only bump the counter.
func (m Meta) MarkStale(err error, now time.Time) Meta {
	marker := StaleMarker{Kind: domain.FetchNetwork, Since: now, ConsecutiveFailures: 1}
	if m.Stale != nil {
		marker.Since = m.Stale.Since
		marker.ConsecutiveFailures = m.Stale.ConsecutiveFailures + 1
	}
	if fe, ok := domain.AsFetchError(err); ok {
		marker.Kind = fe.Kind
		marker.StatusCode = fe.StatusCode
	}
	if err != nil {
		marker.Message = err.Error()
	}
	m.Stale = &marker
	return m
}

// LevelKey identifies a book level across polls.
type LevelKey struct {
	Side  domain.BookSide `json:"side"`
	Price string          `json:"price"`
}

// KeyOf returns the level key for a price on a side. Prices that compare
// equal produce equal keys regardless of trailing zeros.
func KeyOf(side domain.BookSide, price decimal.Decimal) LevelKey {
	return LevelKey{Side: side, Price: price.String()}
}

// LevelChange describes one added or updated level.
type LevelChange struct {
	Side             domain.BookSide `json:"side"`
	Price            decimal.Decimal `json:"price"`
	Quantity         int64           `json:"quantity"`
	PreviousQuantity int64           `json:"previous_quantity"`
	OrderCount       int64           `json:"orders"`
}

// LevelRow is a book level with its bar width in percent.
type LevelRow struct {
	domain.BookLevel
	Width decimal.Decimal `json:"width"`
}

// BookView is the order book feed.
type BookView struct {
	Meta
	Levels        int                              `json:"levels"`
	Bids          []LevelRow                       `json:"bids"`
	Asks          []LevelRow                       `json:"asks"`
	BestBid       decimal.NullDecimal              `json:"best_bid"`
	BestAsk       decimal.NullDecimal              `json:"best_ask"`
	Spread        decimal.NullDecimal              `json:"spread"`
	SpreadBps     decimal.NullDecimal              `json:"spread_bps"`
	MidPrice      decimal.NullDecimal              `json:"mid_price"`
	Normalization int64                            `json:"depth_normalization"`
	Crossed       bool                             `json:"crossed"`
	Integrity     []string                         `json:"integrity,omitempty"`
	Changes       ChangeSet[LevelKey, LevelChange] `json:"changes"`
}

// Snapshot rebuilds the plain book snapshot held by the view.
func (v *BookView) Snapshot() domain.BookSnapshot {
	snap := domain.BookSnapshot{
		Bids:      make([]domain.BookLevel, len(v.Bids)),
		Asks:      make([]domain.BookLevel, len(v.Asks)),
		BestBid:   v.BestBid,
		BestAsk:   v.BestAsk,
		Spread:    v.Spread,
		Timestamp: v.UpdatedAt,
	}
	for i, r := range v.Bids {
		snap.Bids[i] = r.BookLevel
	}
	for i, r := range v.Asks {
		snap.Asks[i] = r.BookLevel
	}
	return snap
}

// WithFailure carries the view over a failed cycle.
func (v BookView) WithFailure(err error, now time.Time) *BookView {
	v.Meta = v.Meta.MarkStale(err, now)
	return &v
}

// TickView is the trailing market-data window, oldest first.
type TickView struct {
	Meta
	Window  int                                    `json:"window"`
	Ticks   []domain.Tick                          `json:"ticks"`
	Changes ChangeSet[domain.TickKey, domain.Tick] `json:"changes"`
}

// WithFailure carries the view over a failed cycle.
func (v TickView) WithFailure(err error, now time.Time) *TickView {
	v.Meta = v.Meta.MarkStale(err, now)
	return &v
}

// TradeView is the bounded trade log ordered by ascending trade id.
type TradeView struct {
	Meta
	Retention int                            `json:"retention"`
	Trades    []domain.Trade                 `json:"trades"`
	Changes   ChangeSet[int64, domain.Trade] `json:"changes"`
}

// Recent returns up to n trades, newest first.
func (v *TradeView) Recent(n int) []domain.Trade {
	if n <= 0 || n > len(v.Trades) {
		n = len(v.Trades)
	}
	out := make([]domain.Trade, 0, n)
	for i := len(v.Trades) - 1; i >= len(v.Trades)-n; i-- {
		out = append(out, v.Trades[i])
	}
	return out
}

// WithFailure carries the view over a failed cycle.
func (v TradeView) WithFailure(err error, now time.Time) *TradeView {
	v.Meta = v.Meta.MarkStale(err, now)
	return &v
}

// StatusView reports the engine connection and subscription state.
type StatusView struct {
	Meta
	domain.SubscriptionState
	Changes ChangeSet[string, string] `json:"changes"`
}

// WithFailure carries the view over a failed cycle. The connected flag is
// owned by the subscription manager and passed in.
func (v StatusView) WithFailure(err error, now time.Time, state domain.SubscriptionState) *StatusView {
	v.Meta = v.Meta.MarkStale(err, now)
	v.Connected = state.Connected
	return &v
}

// MarketView is the engine's aggregate market summary. Changes.Updated lists
// the names of fields that moved.
type MarketView struct {
	Meta
	Summary  domain.MarketSummary      `json:"summary"`
	MidPrice decimal.NullDecimal       `json:"mid_price"`
	Changes  ChangeSet[string, string] `json:"changes"`
}

// WithFailure carries the view over a failed cycle.
func (v MarketView) WithFailure(err error, now time.Time) *MarketView {
	v.Meta = v.Meta.MarkStale(err, now)
	return &v
}

// StatisticsView is the engine's nested statistics.
type StatisticsView struct {
	Meta
	Statistics domain.Statistics         `json:"statistics"`
	Changes    ChangeSet[string, string] `json:"changes"`
}

// WithFailure carries the view over a failed cycle.
func (v StatisticsView) WithFailure(err error, now time.Time) *StatisticsView {
	v.Meta = v.Meta.MarkStale(err, now)
	return &v
}

// OrdersView lists locally tracked orders, newest first.
type OrdersView struct {
	Meta
	Orders  []domain.Order                  `json:"orders"`
	Changes ChangeSet[string, domain.Order] `json:"changes"`
}
