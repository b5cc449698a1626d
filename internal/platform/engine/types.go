package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// Wire shapes of the engine's JSON responses. Optional numbers are pointers
// so a missing field can be told apart from zero.

type wireLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Orders   int64           `json:"orders"`
}

type wireBook struct {
	Bids    []wireLevel      `json:"bids"`
	Asks    []wireLevel      `json:"asks"`
	Spread  *decimal.Decimal `json:"spread"`
	BestBid *decimal.Decimal `json:"best_bid"`
	BestAsk *decimal.Decimal `json:"best_ask"`
}

type wireTick struct {
	Symbol     string           `json:"symbol"`
	Type       string           `json:"type"`
	Timestamp  int64            `json:"timestamp"`
	TradePrice *decimal.Decimal `json:"trade_price"`
	TradeSize  int64            `json:"trade_size"`
	BidPrice   *decimal.Decimal `json:"bid_price"`
	AskPrice   *decimal.Decimal `json:"ask_price"`
	BidSize    int64            `json:"bid_size"`
	AskSize    int64            `json:"ask_size"`
	Open       *decimal.Decimal `json:"open"`
	High       *decimal.Decimal `json:"high"`
	Low        *decimal.Decimal `json:"low"`
	Close      *decimal.Decimal `json:"close"`
	Volume     int64            `json:"volume"`
}

type wireTrade struct {
	TradeID     int64           `json:"trade_id"`
	BuyOrderID  int64           `json:"buy_order_id"`
	SellOrderID int64           `json:"sell_order_id"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Timestamp   int64           `json:"timestamp"`
}

type wireTradeStats struct {
	TotalTrades   int64           `json:"total_trades"`
	TotalVolume   int64           `json:"total_volume"`
	TotalValue    decimal.Decimal `json:"total_value"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	MinPrice      decimal.Decimal `json:"min_price"`
	MaxPrice      decimal.Decimal `json:"max_price"`
	LastTradeTime int64           `json:"last_trade_time"`
}

type wireMarket struct {
	BestBid           *decimal.Decimal `json:"best_bid"`
	BestAsk           *decimal.Decimal `json:"best_ask"`
	Spread            *decimal.Decimal `json:"spread"`
	TotalActiveOrders int64            `json:"total_active_orders"`
	TotalTrades       int64            `json:"total_trades"`
	LastTradeStats    wireTradeStats   `json:"last_trade_stats"`
}

type wireStatistics struct {
	Orderbook  domain.BookStatistics `json:"orderbook"`
	MarketData struct {
		BestBid *decimal.Decimal `json:"best_bid"`
		BestAsk *decimal.Decimal `json:"best_ask"`
		Spread  *decimal.Decimal `json:"spread"`
	} `json:"market_data"`
	Trades wireTradeStats `json:"trades"`
}

type wireOrderRequest struct {
	ClientID int64            `json:"client_id"`
	Symbol   string           `json:"symbol"`
	Side     string           `json:"side"`
	Type     string           `json:"type"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Quantity int64            `json:"quantity"`
}

type wireOrder struct {
	ID                int64            `json:"id"`
	ClientID          int64            `json:"client_id"`
	Symbol            string           `json:"symbol"`
	Side              string           `json:"side"`
	Type              string           `json:"type"`
	Price             *decimal.Decimal `json:"price"`
	Quantity          int64            `json:"quantity"`
	RemainingQuantity int64            `json:"remaining_quantity"`
	FilledQuantity    int64            `json:"filled_quantity"`
	Status            string           `json:"status"`
	Timestamp         int64            `json:"timestamp"`
}

// price maps an optional engine price to a nullable decimal. The engine
// reports 0 for the best price of an empty side, so zero is undefined too.
func price(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil || p.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*p)
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (w wireBook) toDomain(now time.Time) domain.BookSnapshot {
	snap := domain.BookSnapshot{
		Bids:      make([]domain.BookLevel, len(w.Bids)),
		Asks:      make([]domain.BookLevel, len(w.Asks)),
		BestBid:   price(w.BestBid),
		BestAsk:   price(w.BestAsk),
		Timestamp: now,
	}
	for i, l := range w.Bids {
		snap.Bids[i] = domain.BookLevel{Price: l.Price, Quantity: l.Quantity, OrderCount: l.Orders}
	}
	for i, l := range w.Asks {
		snap.Asks[i] = domain.BookLevel{Price: l.Price, Quantity: l.Quantity, OrderCount: l.Orders}
	}
	if snap.BestBid.Valid && snap.BestAsk.Valid && w.Spread != nil {
		snap.Spread = decimal.NewNullDecimal(*w.Spread)
	}
	return snap
}

// toDomain converts a tick. It reports false for an unknown variant or a
// variant missing its price fields.
func (w wireTick) toDomain() (domain.Tick, bool) {
	kind, ok := domain.ParseTickKind(w.Type)
	if !ok {
		return domain.Tick{}, false
	}
	t := domain.Tick{Symbol: w.Symbol, Kind: kind, Timestamp: millis(w.Timestamp)}
	switch kind {
	case domain.TickTrade:
		if w.TradePrice == nil {
			return domain.Tick{}, false
		}
		t.Trade = &domain.TradePrint{Price: *w.TradePrice, Size: w.TradeSize}
	case domain.TickQuote:
		if w.BidPrice == nil || w.AskPrice == nil {
			return domain.Tick{}, false
		}
		t.Quote = &domain.Quote{BidPrice: *w.BidPrice, AskPrice: *w.AskPrice, BidSize: w.BidSize, AskSize: w.AskSize}
	case domain.TickBar:
		if w.Open == nil || w.High == nil || w.Low == nil || w.Close == nil {
			return domain.Tick{}, false
		}
		t.Bar = &domain.Bar{Open: *w.Open, High: *w.High, Low: *w.Low, Close: *w.Close, Volume: w.Volume}
	}
	return t, true
}

func (w wireTrade) toDomain() domain.Trade {
	t := domain.Trade{
		ID:          w.TradeID,
		BuyOrderID:  w.BuyOrderID,
		SellOrderID: w.SellOrderID,
		Symbol:      w.Symbol,
		Price:       w.Price,
		Quantity:    w.Quantity,
		TotalValue:  w.TotalValue,
		Timestamp:   millis(w.Timestamp),
	}
	if t.TotalValue.IsZero() {
		t.TotalValue = t.Notional()
	}
	return t
}

func (w wireTradeStats) toDomain() domain.TradeStatistics {
	return domain.TradeStatistics{
		TotalTrades:   w.TotalTrades,
		TotalVolume:   w.TotalVolume,
		TotalValue:    w.TotalValue,
		AvgPrice:      w.AvgPrice,
		MinPrice:      w.MinPrice,
		MaxPrice:      w.MaxPrice,
		LastTradeTime: millis(w.LastTradeTime),
	}
}

func (w wireMarket) toDomain() domain.MarketSummary {
	s := domain.MarketSummary{
		BestBid:           price(w.BestBid),
		BestAsk:           price(w.BestAsk),
		TotalActiveOrders: w.TotalActiveOrders,
		TotalTrades:       w.TotalTrades,
		LastTradeStats:    w.LastTradeStats.toDomain(),
	}
	if s.BestBid.Valid && s.BestAsk.Valid && w.Spread != nil {
		s.Spread = decimal.NewNullDecimal(*w.Spread)
	}
	return s
}

func (w wireStatistics) toDomain() domain.Statistics {
	var s domain.Statistics
	s.Orderbook = w.Orderbook
	s.MarketData.BestBid = price(w.MarketData.BestBid)
	s.MarketData.BestAsk = price(w.MarketData.BestAsk)
	if s.MarketData.BestBid.Valid && s.MarketData.BestAsk.Valid && w.MarketData.Spread != nil {
		s.MarketData.Spread = decimal.NewNullDecimal(*w.MarketData.Spread)
	}
	s.Trades = w.Trades.toDomain()
	return s
}

func (w wireOrder) toDomain() domain.OrderUpdate {
	u := domain.OrderUpdate{
		ID:                w.ID,
		ClientID:          w.ClientID,
		Symbol:            w.Symbol,
		Side:              domain.OrderSide(w.Side),
		Kind:              domain.OrderKind(w.Type),
		Quantity:          w.Quantity,
		RemainingQuantity: w.RemainingQuantity,
		FilledQuantity:    w.FilledQuantity,
		Timestamp:         millis(w.Timestamp),
	}
	if u.Kind == domain.OrderKindLimit {
		u.Price = price(w.Price)
	}
	if st, ok := domain.ParseOrderStatus(w.Status); ok {
		u.Status = st
	}
	return u
}
