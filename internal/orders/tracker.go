// Package orders keeps the local projection of orders submitted from this
// client, from the optimistic Pending entry to a terminal status.
package orders

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// Config bounds the terminal history.
type Config struct {
	Retention    int
	HighlightTTL time.Duration
}

// DefaultConfig keeps 50 terminal orders for at least 2s each.
func DefaultConfig() Config {
	return Config{Retention: 50, HighlightTTL: 2 * time.Second}
}

type tracked struct {
	order       domain.Order
	seq         uint64
	lastTradeID int64
	tradeFilled int64
	terminalAt  time.Time
}

// Tracker is safe for concurrent use. Each method performs one synchronous
// transition under the mutex.
type Tracker struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	seq      uint64
	clientID int64
	byHandle map[string]*tracked
	byID     map[int64]*tracked
}

// NewTracker creates a Tracker. Non-positive bounds fall back to defaults.
func NewTracker(cfg Config, logger *slog.Logger) *Tracker {
	def := DefaultConfig()
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.HighlightTTL <= 0 {
		cfg.HighlightTTL = def.HighlightTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "order_tracker")),
		now:      time.Now,
		byHandle: make(map[string]*tracked),
		byID:     make(map[int64]*tracked),
	}
}

// Validate checks a request before anything is sent to the engine.
func Validate(req domain.OrderRequest) error {
	if strings.TrimSpace(req.Symbol) == "" {
		return domain.InvalidRequestf("symbol is required")
	}
	if !req.Side.Valid() {
		return domain.InvalidRequestf("side must be BUY or SELL, got %q", req.Side)
	}
	if !req.Kind.Valid() {
		return domain.InvalidRequestf("type must be LIMIT or MARKET, got %q", req.Kind)
	}
	if req.Quantity <= 0 {
		return domain.InvalidRequestf("quantity must be positive, got %d", req.Quantity)
	}
	switch req.Kind {
	case domain.OrderKindLimit:
		if !req.Price.Valid || !req.Price.Decimal.IsPositive() {
			return domain.InvalidRequestf("limit order needs a positive price")
		}
	case domain.OrderKindMarket:
		if req.Price.Valid {
			return domain.InvalidRequestf("market order must not carry a price")
		}
	}
	return nil
}

// Submit validates req and materialises a Pending order with a fresh handle
// and client id. The client id is what the engine echoes back.
func (t *Tracker) Submit(req domain.OrderRequest) (domain.Order, error) {
	if err := Validate(req); err != nil {
		return domain.Order{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	t.seq++
	t.clientID++
	tr := &tracked{
		seq: t.seq,
		order: domain.Order{
			Handle:            uuid.NewString(),
			ClientID:          t.clientID,
			Symbol:            strings.ToUpper(strings.TrimSpace(req.Symbol)),
			Side:              req.Side,
			Kind:              req.Kind,
			Price:             req.Price,
			RequestedQuantity: req.Quantity,
			RemainingQuantity: req.Quantity,
			Status:            domain.OrderStatusPending,
			SubmittedAt:       now,
			UpdatedAt:         now,
		},
	}
	t.byHandle[tr.order.Handle] = tr
	return tr.order, nil
}

// request rebuilds the engine request for a tracked order.
func (o *tracked) request() domain.OrderRequest {
	return domain.OrderRequest{
		Symbol:   o.order.Symbol,
		Side:     o.order.Side,
		Kind:     o.order.Kind,
		Price:    o.order.Price,
		Quantity: o.order.RequestedQuantity,
	}
}

// Request returns the engine request for the Pending order behind handle.
func (t *Tracker) Request(handle string) (domain.OrderRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.byHandle[handle]
	if !ok {
		return domain.OrderRequest{}, fmt.Errorf("orders: request %s: %w", handle, domain.ErrNotFound)
	}
	return tr.request(), nil
}

// Acknowledge reconciles the Pending order behind handle with the engine's
// acknowledgement. The ack must echo the order's client id.
func (t *Tracker) Acknowledge(handle string, ack domain.OrderAck) (domain.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.byHandle[handle]
	if !ok {
		return domain.Order{}, fmt.Errorf("orders: acknowledge %s: %w", handle, domain.ErrNotFound)
	}
	if ack.Order.ClientID != tr.order.ClientID {
		return domain.Order{}, fmt.Errorf("orders: acknowledge %s: client id %d, expected %d: %w",
			handle, ack.Order.ClientID, tr.order.ClientID, domain.ErrCorrelation)
	}

	if ack.Order.ID != 0 {
		tr.order.ID = ack.Order.ID
		t.byID[ack.Order.ID] = tr
	}
	if ack.Order.Quantity > 0 {
		tr.order.RequestedQuantity = ack.Order.Quantity
	}
	if !tr.order.Status.Terminal() {
		tr.order.Reason = ""
	}
	t.applyLocked(tr, ack.Order.FilledQuantity, ack.Order.Status)
	return tr.order, nil
}

// Reject marks a Pending order Rejected with the engine's reason.
func (t *Tracker) Reject(handle, reason string) (domain.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.byHandle[handle]
	if !ok {
		return domain.Order{}, fmt.Errorf("orders: reject %s: %w", handle, domain.ErrNotFound)
	}
	if tr.order.Status.Terminal() {
		return tr.order, fmt.Errorf("orders: reject %s: %w", handle, domain.ErrAlreadyTerminal)
	}
	tr.order.Reason = reason
	t.setStatusLocked(tr, domain.OrderStatusRejected)
	return tr.order, nil
}

// MarkUnconfirmed records why a submission got no answer. The order stays
// Pending since the engine may still have accepted it.
func (t *Tracker) MarkUnconfirmed(handle, reason string) (domain.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.byHandle[handle]
	if !ok {
		return domain.Order{}, fmt.Errorf("orders: mark unconfirmed %s: %w", handle, domain.ErrNotFound)
	}
	if tr.order.Status.Terminal() {
		return tr.order, fmt.Errorf("orders: mark unconfirmed %s: %w", handle, domain.ErrAlreadyTerminal)
	}
	tr.order.Reason = reason
	tr.order.UpdatedAt = t.now().UTC()
	return tr.order, nil
}

// ApplyTrades infers fills from the trade log. Each order counts a trade at
// most once; the engine-reported fill and the trade-derived fill are merged
// by taking the larger. It returns the orders whose state moved.
func (t *Tracker) ApplyTrades(trades []domain.Trade) []domain.Order {
	if len(trades) == 0 {
		return nil
	}
	sorted := append([]domain.Trade(nil), trades...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	t.mu.Lock()
	defer t.mu.Unlock()

	touched := make(map[*tracked]domain.Order)
	credit := func(orderID int64, tr domain.Trade) {
		o, ok := t.byID[orderID]
		if !ok || tr.ID <= o.lastTradeID {
			return
		}
		if _, seen := touched[o]; !seen {
			touched[o] = o.order
		}
		o.lastTradeID = tr.ID
		o.tradeFilled += tr.Quantity
	}
	for _, tr := range sorted {
		credit(tr.BuyOrderID, tr)
		if tr.SellOrderID != tr.BuyOrderID {
			credit(tr.SellOrderID, tr)
		}
	}

	var changed []domain.Order
	for o, before := range touched {
		t.applyLocked(o, o.tradeFilled, "")
		if o.order != before {
			changed = append(changed, o.order)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].ClientID < changed[j].ClientID })
	t.pruneLocked()
	return changed
}

// applyLocked merges a fill count and an optional engine status into tr.
func (t *Tracker) applyLocked(tr *tracked, filled int64, reported domain.OrderStatus) {
	if tr.order.Status.Terminal() {
		return
	}
	if filled > tr.order.FilledQuantity {
		tr.order.FilledQuantity = filled
	}
	if tr.order.FilledQuantity > tr.order.RequestedQuantity {
		tr.order.FilledQuantity = tr.order.RequestedQuantity
	}
	tr.order.RemainingQuantity = tr.order.RequestedQuantity - tr.order.FilledQuantity

	next := domain.OrderStatusActive
	switch {
	case tr.order.RemainingQuantity == 0:
		next = domain.OrderStatusFilled
	case reported == domain.OrderStatusCancelled || reported == domain.OrderStatusRejected:
		next = reported
	case tr.order.FilledQuantity > 0:
		next = domain.OrderStatusPartiallyFilled
	}
	t.setStatusLocked(tr, next)
}

func (t *Tracker) setStatusLocked(tr *tracked, next domain.OrderStatus) {
	if !tr.order.Status.CanTransitionTo(next) {
		return
	}
	now := t.now().UTC()
	if tr.order.Status != next {
		t.logger.Debug("order_tracker: status changed",
			slog.String("handle", tr.order.Handle),
			slog.Int64("order_id", tr.order.ID),
			slog.String("from", string(tr.order.Status)),
			slog.String("to", string(next)),
		)
		tr.order.Status = next
		tr.order.UpdatedAt = now
		if next.Terminal() {
			tr.terminalAt = now
		}
	}
}

// Lookup resolves ref as a handle or, when numeric, as an engine order id.
func (t *Tracker) Lookup(ref string) (domain.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr := t.resolveLocked(ref)
	if tr == nil {
		return domain.Order{}, false
	}
	return tr.order, true
}

func (t *Tracker) resolveLocked(ref string) *tracked {
	if tr, ok := t.byHandle[ref]; ok {
		return tr
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return t.byID[id]
	}
	return nil
}

// CanCancel reports the order a cancel of ref would target. A terminal order
// yields ErrAlreadyTerminal and is left untouched; an order the engine has
// not acknowledged yet has no id to cancel.
func (t *Tracker) CanCancel(ref string) (domain.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr := t.resolveLocked(ref)
	if tr == nil {
		return domain.Order{}, fmt.Errorf("orders: cancel %s: %w", ref, domain.ErrNotFound)
	}
	if tr.order.Status.Terminal() {
		return tr.order, fmt.Errorf("orders: cancel %s: status %s: %w", ref, tr.order.Status, domain.ErrAlreadyTerminal)
	}
	if tr.order.ID == 0 {
		return tr.order, domain.InvalidRequestf("order %s not acknowledged yet", ref)
	}
	return tr.order, nil
}

// MarkCancelled records a cancel the engine accepted.
func (t *Tracker) MarkCancelled(handle string) (domain.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.byHandle[handle]
	if !ok {
		return domain.Order{}, fmt.Errorf("orders: mark cancelled %s: %w", handle, domain.ErrNotFound)
	}
	if tr.order.Status.Terminal() {
		return tr.order, fmt.Errorf("orders: mark cancelled %s: %w", handle, domain.ErrAlreadyTerminal)
	}
	t.setStatusLocked(tr, domain.OrderStatusCancelled)
	t.pruneLocked()
	return tr.order, nil
}

// Snapshot returns every tracked order, newest submission first.
func (t *Tracker) Snapshot() []domain.Order {
	t.mu.Lock()
	defer t.mu.Unlock()

	all := make([]*tracked, 0, len(t.byHandle))
	for _, tr := range t.byHandle {
		all = append(all, tr)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })
	out := make([]domain.Order, len(all))
	for i, tr := range all {
		out[i] = tr.order
	}
	return out
}

// Prune evicts terminal orders beyond the retention bound.
func (t *Tracker) Prune() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
}

// pruneLocked drops the oldest terminal orders over the bound, but never one
// whose highlight has not expired yet.
func (t *Tracker) pruneLocked() {
	var terminal []*tracked
	for _, tr := range t.byHandle {
		if tr.order.Status.Terminal() {
			terminal = append(terminal, tr)
		}
	}
	excess := len(terminal) - t.cfg.Retention
	if excess <= 0 {
		return
	}
	sort.Slice(terminal, func(i, j int) bool {
		if terminal[i].terminalAt.Equal(terminal[j].terminalAt) {
			return terminal[i].seq < terminal[j].seq
		}
		return terminal[i].terminalAt.Before(terminal[j].terminalAt)
	})
	cutoff := t.now().Add(-t.cfg.HighlightTTL)
	for _, tr := range terminal[:excess] {
		if tr.terminalAt.After(cutoff) {
			break
		}
		delete(t.byHandle, tr.order.Handle)
		if tr.order.ID != 0 {
			delete(t.byID, tr.order.ID)
		}
	}
}
