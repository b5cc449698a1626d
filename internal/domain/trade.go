package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one execution from the engine's trade log. Trades are immutable
// once observed.
type Trade struct {
	ID          int64           `json:"trade_id"`
	BuyOrderID  int64           `json:"buy_order_id"`
	SellOrderID int64           `json:"sell_order_id"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Notional returns price × quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}
