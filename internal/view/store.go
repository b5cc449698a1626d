package view

import (
	"sync"
	"sync/atomic"
)

// Listener is called after a view is published. Listeners run on the
// publishing goroutine and must not block.
type Listener func(feed FeedID, model any)

// Store holds the latest published view of each feed. Readers get the
// current pointer; a published view is never modified afterwards.
type Store struct {
	book       atomic.Pointer[BookView]
	ticks      atomic.Pointer[TickView]
	trades     atomic.Pointer[TradeView]
	status     atomic.Pointer[StatusView]
	market     atomic.Pointer[MarketView]
	statistics atomic.Pointer[StatisticsView]
	orders     atomic.Pointer[OrdersView]

	mu        sync.RWMutex
	listeners []Listener
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// OnPublish registers a listener for every subsequent publication.
func (s *Store) OnPublish(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Store) notify(feed FeedID, model any) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for _, l := range listeners {
		l(feed, model)
	}
}

func (s *Store) Book() *BookView             { return s.book.Load() }
func (s *Store) Ticks() *TickView            { return s.ticks.Load() }
func (s *Store) Trades() *TradeView          { return s.trades.Load() }
func (s *Store) Status() *StatusView         { return s.status.Load() }
func (s *Store) Market() *MarketView         { return s.market.Load() }
func (s *Store) Statistics() *StatisticsView { return s.statistics.Load() }
func (s *Store) Orders() *OrdersView         { return s.orders.Load() }

func (s *Store) PublishBook(v *BookView) {
	s.book.Store(v)
	s.notify(FeedBook, v)
}

func (s *Store) PublishTicks(v *TickView) {
	s.ticks.Store(v)
	s.notify(FeedTicks, v)
}

func (s *Store) PublishTrades(v *TradeView) {
	s.trades.Store(v)
	s.notify(FeedTrades, v)
}

func (s *Store) PublishStatus(v *StatusView) {
	s.status.Store(v)
	s.notify(FeedStatus, v)
}

func (s *Store) PublishMarket(v *MarketView) {
	s.market.Store(v)
	s.notify(FeedMarket, v)
}

func (s *Store) PublishStatistics(v *StatisticsView) {
	s.statistics.Store(v)
	s.notify(FeedStatistics, v)
}

func (s *Store) PublishOrders(v *OrdersView) {
	s.orders.Store(v)
	s.notify(FeedOrders, v)
}

// Get returns the latest view of feed as an untyped value, or false when the
// feed has not published yet.
func (s *Store) Get(feed FeedID) (any, bool) {
	switch feed {
	case FeedBook:
		return present(s.book.Load())
	case FeedTicks:
		return present(s.ticks.Load())
	case FeedTrades:
		return present(s.trades.Load())
	case FeedStatus:
		return present(s.status.Load())
	case FeedMarket:
		return present(s.market.Load())
	case FeedStatistics:
		return present(s.statistics.Load())
	case FeedOrders:
		return present(s.orders.Load())
	}
	return nil, false
}

func present[T any](v *T) (any, bool) {
	if v == nil {
		return nil, false
	}
	return v, true
}

// Envelope is the wire form of a published view on the signal bus and the
// websocket.
type Envelope struct {
	Feed  FeedID `json:"feed"`
	Model any    `json:"model"`
}

// Channel returns the bus channel a feed's views are published on.
func Channel(feed FeedID) string {
	return "view:" + string(feed)
}
