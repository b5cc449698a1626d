package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookSide identifies one side of the order book.
type BookSide string

const (
	BookSideBid BookSide = "bid"
	BookSideAsk BookSide = "ask"
)

// BookLevel is one price point on one side of the book with the aggregate
// resting quantity and order count.
type BookLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   int64           `json:"quantity"`
	OrderCount int64           `json:"orders"`
}

// BookSnapshot is a full-depth book. Bids are ordered by descending price,
// asks by ascending price. An empty side leaves its best price invalid.
type BookSnapshot struct {
	Bids      []BookLevel         `json:"bids"`
	Asks      []BookLevel         `json:"asks"`
	BestBid   decimal.NullDecimal `json:"best_bid"`
	BestAsk   decimal.NullDecimal `json:"best_ask"`
	Spread    decimal.NullDecimal `json:"spread"`
	Timestamp time.Time           `json:"timestamp"`
}

// TradeStatistics aggregates the engine's trade log.
type TradeStatistics struct {
	TotalTrades   int64           `json:"total_trades"`
	TotalVolume   int64           `json:"total_volume"`
	TotalValue    decimal.Decimal `json:"total_value"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	MinPrice      decimal.Decimal `json:"min_price"`
	MaxPrice      decimal.Decimal `json:"max_price"`
	LastTradeTime time.Time       `json:"last_trade_time"`
}

// MarketSummary is the engine's aggregate market view from GET /market.
type MarketSummary struct {
	BestBid           decimal.NullDecimal `json:"best_bid"`
	BestAsk           decimal.NullDecimal `json:"best_ask"`
	Spread            decimal.NullDecimal `json:"spread"`
	TotalActiveOrders int64               `json:"total_active_orders"`
	TotalTrades       int64               `json:"total_trades"`
	LastTradeStats    TradeStatistics     `json:"last_trade_stats"`
}

// BookStatistics counts resting levels and orders per side.
type BookStatistics struct {
	BidLevels   int64 `json:"bid_levels"`
	AskLevels   int64 `json:"ask_levels"`
	BidOrders   int64 `json:"bid_orders"`
	AskOrders   int64 `json:"ask_orders"`
	TotalOrders int64 `json:"total_orders"`
	TotalTrades int64 `json:"total_trades"`
}

// Statistics is the nested response of GET /statistics.
type Statistics struct {
	Orderbook  BookStatistics `json:"orderbook"`
	MarketData struct {
		BestBid decimal.NullDecimal `json:"best_bid"`
		BestAsk decimal.NullDecimal `json:"best_ask"`
		Spread  decimal.NullDecimal `json:"spread"`
	} `json:"market_data"`
	Trades TradeStatistics `json:"trades"`
}

// ConnectionStatus is the engine's report of its upstream market-data
// connection and the symbols it currently streams.
type ConnectionStatus struct {
	Connected         bool     `json:"connected"`
	SubscribedSymbols []string `json:"subscribed_symbols"`
}

// SubscribeRequest asks the engine to stream a symbol.
type SubscribeRequest struct {
	Symbol string `json:"symbol"`
	Trades bool   `json:"trades"`
	Quotes bool   `json:"quotes"`
	Bars   bool   `json:"bars"`
}
