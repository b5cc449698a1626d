package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderKind is the order type as the engine names it.
type OrderKind string

const (
	OrderKindLimit  OrderKind = "LIMIT"
	OrderKindMarket OrderKind = "MARKET"
)

// Valid reports whether k is a known kind.
func (k OrderKind) Valid() bool {
	return k == OrderKindLimit || k == OrderKindMarket
}

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusActive          OrderStatus = "ACTIVE"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// ParseOrderStatus maps the engine's status strings. Unknown values report
// false.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case OrderStatusPending, OrderStatusActive, OrderStatusPartiallyFilled,
		OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

func (s OrderStatus) rank() int {
	switch s {
	case OrderStatusPending:
		return 0
	case OrderStatusActive:
		return 1
	case OrderStatusPartiallyFilled:
		return 2
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return 3
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle
// monotone. Staying in the same status is allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Order is the local projection of an order submitted from this client.
// Handle is assigned at submission; ID is the engine's id, zero until the
// engine acknowledges.
type Order struct {
	Handle            string              `json:"handle"`
	ClientID          int64               `json:"client_id"`
	ID                int64               `json:"id"`
	Symbol            string              `json:"symbol"`
	Side              OrderSide           `json:"side"`
	Kind              OrderKind           `json:"type"`
	Price             decimal.NullDecimal `json:"price"`
	RequestedQuantity int64               `json:"quantity"`
	RemainingQuantity int64               `json:"remaining_quantity"`
	FilledQuantity    int64               `json:"filled_quantity"`
	Status            OrderStatus         `json:"status"`
	Reason            string              `json:"reason,omitempty"`
	SubmittedAt       time.Time           `json:"submitted_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// FillPercentage returns filled/requested in [0,100].
func (o Order) FillPercentage() float64 {
	if o.RequestedQuantity <= 0 {
		return 0
	}
	return float64(o.FilledQuantity) / float64(o.RequestedQuantity) * 100
}

// MarshalJSON encodes the order with its fill_percentage.
func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	return json.Marshal(struct {
		plain
		FillPercentage float64 `json:"fill_percentage"`
	}{plain(o), o.FillPercentage()})
}

// OrderRequest is what a caller submits.
type OrderRequest struct {
	Symbol   string              `json:"symbol"`
	Side     OrderSide           `json:"side"`
	Kind     OrderKind           `json:"type"`
	Price    decimal.NullDecimal `json:"price"`
	Quantity int64               `json:"quantity"`
}

// OrderUpdate is an authoritative engine view of one order's fill state.
type OrderUpdate struct {
	ID                int64
	ClientID          int64
	Symbol            string
	Side              OrderSide
	Kind              OrderKind
	Price             decimal.NullDecimal
	Quantity          int64
	RemainingQuantity int64
	FilledQuantity    int64
	Status            OrderStatus
	Timestamp         time.Time
}

// OrderAck is the engine's response to an order submission.
type OrderAck struct {
	Order               OrderUpdate
	ImmediateExecutions int
}
