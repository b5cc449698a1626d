// Package market holds the pure book metrics shown alongside the order book:
// best prices, spread, mid-price and the depth normalisation used to scale
// level bars. None of these functions keep state.
package market

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// BestPrice returns the price of the first level, or an invalid value when the
// side is empty. Levels must already be in book order.
func BestPrice(levels []domain.BookLevel) decimal.NullDecimal {
	if len(levels) == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(levels[0].Price)
}

// Spread returns ask - bid. It is undefined unless both prices are defined.
// A crossed book yields a negative spread; callers flag it with Crossed.
func Spread(bestBid, bestAsk decimal.NullDecimal) decimal.NullDecimal {
	if !bestBid.Valid || !bestAsk.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(bestAsk.Decimal.Sub(bestBid.Decimal))
}

// MidPrice returns (bid + ask) / 2, undefined unless both prices are defined.
func MidPrice(bestBid, bestAsk decimal.NullDecimal) decimal.NullDecimal {
	if !bestBid.Valid || !bestAsk.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(bestBid.Decimal.Add(bestAsk.Decimal).Div(decimal.NewFromInt(2)))
}

// Crossed reports bestBid > bestAsk. An undefined side is never crossed.
func Crossed(bestBid, bestAsk decimal.NullDecimal) bool {
	return bestBid.Valid && bestAsk.Valid && bestBid.Decimal.GreaterThan(bestAsk.Decimal)
}

// DepthNormalization returns the largest quantity across both sides, floored
// at 1 so it is always a safe divisor.
func DepthNormalization(bids, asks []domain.BookLevel) int64 {
	var max int64 = 1
	for _, l := range bids {
		if l.Quantity > max {
			max = l.Quantity
		}
	}
	for _, l := range asks {
		if l.Quantity > max {
			max = l.Quantity
		}
	}
	return max
}

// BarWidth scales quantity against the normalisation factor into [0,100].
func BarWidth(quantity, normalization int64) decimal.Decimal {
	if quantity <= 0 {
		return decimal.Zero
	}
	if normalization < 1 {
		normalization = 1
	}
	if quantity >= normalization {
		return hundred
	}
	return decimal.NewFromInt(quantity).Mul(hundred).Div(decimal.NewFromInt(normalization)).Round(2)
}

// SpreadBps returns the spread relative to the mid-price in basis points,
// undefined when either is undefined or the mid is zero.
func SpreadBps(bestBid, bestAsk decimal.NullDecimal) decimal.NullDecimal {
	spread := Spread(bestBid, bestAsk)
	mid := MidPrice(bestBid, bestAsk)
	if !spread.Valid || !mid.Valid || mid.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(spread.Decimal.Div(mid.Decimal).Mul(decimal.NewFromInt(10_000)).Round(2))
}

// Summarize fills in the derived fields of a snapshot from its levels,
// overwriting whatever the engine reported.
func Summarize(snap domain.BookSnapshot) domain.BookSnapshot {
	snap.BestBid = BestPrice(snap.Bids)
	snap.BestAsk = BestPrice(snap.Asks)
	snap.Spread = Spread(snap.BestBid, snap.BestAsk)
	return snap
}
