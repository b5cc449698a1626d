package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TickKind discriminates the tick variants.
type TickKind string

const (
	TickTrade TickKind = "TRADE"
	TickQuote TickKind = "QUOTE"
	TickBar   TickKind = "BAR"
)

// ParseTickKind accepts the engine's spellings ("Trade", "TRADE", "trade").
func ParseTickKind(s string) (TickKind, bool) {
	switch TickKind(strings.ToUpper(strings.TrimSpace(s))) {
	case TickTrade:
		return TickTrade, true
	case TickQuote:
		return TickQuote, true
	case TickBar:
		return TickBar, true
	}
	return "", false
}

// TradePrint carries the fields of a trade tick.
type TradePrint struct {
	Price decimal.Decimal `json:"price"`
	Size  int64           `json:"size"`
}

// Quote carries the fields of a top-of-book quote tick.
type Quote struct {
	BidPrice decimal.Decimal `json:"bid_price"`
	AskPrice decimal.Decimal `json:"ask_price"`
	BidSize  int64           `json:"bid_size"`
	AskSize  int64           `json:"ask_size"`
}

// Bar carries OHLCV fields.
type Bar struct {
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Tick is one market-data event. Exactly one of Trade, Quote or Bar is set,
// matching Kind.
type Tick struct {
	Symbol    string      `json:"symbol"`
	Kind      TickKind    `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Trade     *TradePrint `json:"trade,omitempty"`
	Quote     *Quote      `json:"quote,omitempty"`
	Bar       *Bar        `json:"bar,omitempty"`
}

// TickKey identifies a tick for change detection.
type TickKey struct {
	Symbol    string
	Timestamp int64
	Kind      TickKind
}

// Key returns the (symbol, timestamp, variant) identity of the tick.
func (t Tick) Key() TickKey {
	return TickKey{Symbol: t.Symbol, Timestamp: t.Timestamp.UnixNano(), Kind: t.Kind}
}

// String renders the key as "symbol|unix-nanos|kind".
func (k TickKey) String() string {
	return k.Symbol + "|" + strconv.FormatInt(k.Timestamp, 10) + "|" + string(k.Kind)
}

// MarshalText lets TickKey be used in JSON output.
func (k TickKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// DisplayPrice is the representative price of a tick: trade price, bid price
// or bar close.
func (t Tick) DisplayPrice() decimal.NullDecimal {
	switch {
	case t.Trade != nil:
		return decimal.NewNullDecimal(t.Trade.Price)
	case t.Quote != nil:
		return decimal.NewNullDecimal(t.Quote.BidPrice)
	case t.Bar != nil:
		return decimal.NewNullDecimal(t.Bar.Close)
	}
	return decimal.NullDecimal{}
}
