package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/orders"
)

// OrderPlacer is the engine side of order commands.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, clientID int64, req domain.OrderRequest) (domain.OrderAck, error)
	CancelOrder(ctx context.Context, id int64) error
}

// OrdersPublisher republishes the orders view after a command.
type OrdersPublisher interface {
	PublishOrders()
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

const notifyTimeout = 15 * time.Second

// RateLimit bounds order commands per window. A zero Limit disables it.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// OrderService runs order commands: the tracker transition, the engine call
// and the journal, audit and notification side effects.
type OrderService struct {
	tracker   *orders.Tracker
	engine    OrderPlacer
	publisher OrdersPublisher
	store     domain.OrderStore
	audit     domain.AuditStore
	limiter   domain.RateLimiter
	limit     RateLimit
	notifier  Notifier
	logger    *slog.Logger
}

// NewOrderService creates an OrderService. store, audit and notifier may be
// nil.
func NewOrderService(
	tracker *orders.Tracker,
	engine OrderPlacer,
	publisher OrdersPublisher,
	store domain.OrderStore,
	audit domain.AuditStore,
	notifier Notifier,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		tracker:   tracker,
		engine:    engine,
		publisher: publisher,
		store:     store,
		audit:     audit,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "order_service")),
	}
}

// WithRateLimiter bounds Submit and Cancel with a shared limiter.
func (s *OrderService) WithRateLimiter(l domain.RateLimiter, limit RateLimit) *OrderService {
	s.limiter = l
	s.limit = limit
	return s
}

// Submit creates the Pending order, sends it and reconciles the engine's
// acknowledgement. An order the engine answered with an error status is
// kept Rejected with the engine's reason. When the engine could not be
// reached or its answer could not be read, the order stays Pending with the
// failure as its reason. Either way the error is returned intact.
func (s *OrderService) Submit(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if err := s.allow(ctx, "orders:submit"); err != nil {
		return domain.Order{}, err
	}

	pending, err := s.tracker.Submit(req)
	if err != nil {
		return domain.Order{}, err
	}
	s.publish()

	normalized, err := s.tracker.Request(pending.Handle)
	if err != nil {
		return pending, fmt.Errorf("order_service: submit: %w", err)
	}

	ack, err := s.engine.PlaceOrder(ctx, pending.ClientID, normalized)
	if err != nil {
		reason := domain.BackendReason(err)
		if fe, ok := domain.AsFetchError(err); !ok || fe.Kind != domain.FetchHTTPStatus {
			// No answer from the engine: the order may still have been
			// accepted, so it stays Pending.
			unconfirmed, markErr := s.tracker.MarkUnconfirmed(pending.Handle, reason)
			if markErr != nil {
				unconfirmed = pending
			}
			s.publish()
			s.journal(ctx, unconfirmed)
			s.logger.WarnContext(ctx, "order_service: order unconfirmed",
				slog.String("handle", pending.Handle),
				slog.String("reason", reason),
			)
			return unconfirmed, fmt.Errorf("order_service: submit: %w", err)
		}

		rejected, rejErr := s.tracker.Reject(pending.Handle, reason)
		if rejErr != nil {
			rejected = pending
		}
		s.publish()
		s.journal(ctx, rejected)
		s.record(ctx, domain.EventOrderRejected, rejected)
		s.alert(ctx, domain.EventOrderRejected, "Order rejected",
			fmt.Sprintf("%s %s %d %s: %s", rejected.Side, rejected.Symbol, rejected.RequestedQuantity, rejected.Kind, reason))
		s.logger.WarnContext(ctx, "order_service: order rejected",
			slog.String("handle", pending.Handle),
			slog.String("reason", reason),
		)
		return rejected, fmt.Errorf("order_service: submit: %w", err)
	}

	order, err := s.tracker.Acknowledge(pending.Handle, ack)
	if err != nil {
		s.logger.ErrorContext(ctx, "order_service: acknowledgement not applied",
			slog.String("handle", pending.Handle),
			slog.Int64("client_id", pending.ClientID),
			slog.Int64("ack_client_id", ack.Order.ClientID),
			slog.String("error", err.Error()),
		)
		return pending, fmt.Errorf("order_service: submit: %w", err)
	}
	s.publish()
	s.journal(ctx, order)
	s.record(ctx, domain.EventOrderSubmitted, order)
	if order.Status == domain.OrderStatusFilled {
		s.alert(ctx, domain.EventOrderFilled, "Order filled",
			fmt.Sprintf("%s %s %d (order %d)", order.Side, order.Symbol, order.FilledQuantity, order.ID))
	}

	s.logger.InfoContext(ctx, "order_service: order placed",
		slog.String("handle", order.Handle),
		slog.Int64("order_id", order.ID),
		slog.String("status", string(order.Status)),
		slog.Int("immediate_executions", ack.ImmediateExecutions),
	)
	return order, nil
}

// Cancel cancels the order ref names: a tracked handle or an engine id. A
// numeric id this client never tracked is forwarded to the engine as is.
func (s *OrderService) Cancel(ctx context.Context, ref string) (domain.Order, error) {
	if err := s.allow(ctx, "orders:cancel"); err != nil {
		return domain.Order{}, err
	}

	target, err := s.tracker.CanCancel(ref)
	if errors.Is(err, domain.ErrNotFound) {
		id, parseErr := strconv.ParseInt(ref, 10, 64)
		if parseErr != nil || id <= 0 {
			return domain.Order{}, err
		}
		if err := s.engine.CancelOrder(ctx, id); err != nil {
			return domain.Order{}, fmt.Errorf("order_service: cancel: %w", err)
		}
		untracked := domain.Order{ID: id, Status: domain.OrderStatusCancelled, UpdatedAt: time.Now().UTC()}
		s.record(ctx, domain.EventOrderCancelled, untracked)
		return untracked, nil
	}
	if err != nil {
		return target, err
	}

	if err := s.engine.CancelOrder(ctx, target.ID); err != nil {
		return target, fmt.Errorf("order_service: cancel: %w", err)
	}

	cancelled, err := s.tracker.MarkCancelled(target.Handle)
	if err != nil {
		// A fill landed between the check and the engine call.
		return cancelled, err
	}
	s.publish()
	s.journal(ctx, cancelled)
	s.record(ctx, domain.EventOrderCancelled, cancelled)
	s.alert(ctx, domain.EventOrderCancelled, "Order cancelled",
		fmt.Sprintf("%s %s, filled %d of %d (order %d)", cancelled.Side, cancelled.Symbol,
			cancelled.FilledQuantity, cancelled.RequestedQuantity, cancelled.ID))
	return cancelled, nil
}

// Orders returns the tracked orders, newest first.
func (s *OrderService) Orders() []domain.Order {
	return s.tracker.Snapshot()
}

// Order returns one tracked order by handle or engine id.
func (s *OrderService) Order(ref string) (domain.Order, error) {
	o, ok := s.tracker.Lookup(ref)
	if !ok {
		return domain.Order{}, fmt.Errorf("order_service: order %s: %w", ref, domain.ErrNotFound)
	}
	return o, nil
}

// History returns journaled orders, including ones evicted from the tracker.
func (s *OrderService) History(ctx context.Context, limit int) ([]domain.Order, error) {
	if s.store == nil {
		return nil, fmt.Errorf("order_service: history: %w", domain.ErrDisabled)
	}
	return s.store.ListRecent(ctx, limit)
}

func (s *OrderService) allow(ctx context.Context, key string) error {
	if s.limiter == nil || s.limit.Limit <= 0 {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, key, s.limit.Limit, s.limit.Window)
	if err != nil {
		// Fail open.
		s.logger.WarnContext(ctx, "order_service: rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return fmt.Errorf("order_service: %s: %w", key, domain.ErrRateLimited)
	}
	return nil
}

func (s *OrderService) publish() {
	if s.publisher != nil {
		s.publisher.PublishOrders()
	}
}

func (s *OrderService) journal(ctx context.Context, o domain.Order) {
	if s.store == nil {
		return
	}
	if err := s.store.Upsert(ctx, o); err != nil {
		s.logger.WarnContext(ctx, "order_service: journal failed",
			slog.String("handle", o.Handle),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) record(ctx context.Context, event string, o domain.Order) {
	if s.audit == nil {
		return
	}
	detail := map[string]any{
		"handle":   o.Handle,
		"order_id": o.ID,
		"symbol":   o.Symbol,
		"side":     string(o.Side),
		"type":     string(o.Kind),
		"quantity": o.RequestedQuantity,
		"filled":   o.FilledQuantity,
		"status":   string(o.Status),
	}
	if o.Price.Valid {
		detail["price"] = o.Price.Decimal.String()
	}
	if o.Reason != "" {
		detail["reason"] = o.Reason
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "order_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) alert(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	go func() {
		defer cancel()
		if err := s.notifier.Notify(ctx, event, title, message); err != nil {
			s.logger.WarnContext(ctx, "order_service: notify failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}()
}
