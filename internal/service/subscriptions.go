package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/subscription"
)

// StatusPublisher republishes the status view after a command.
type StatusPublisher interface {
	PublishStatus()
}

// SubscriptionService runs subscribe and unsubscribe commands.
type SubscriptionService struct {
	manager   *subscription.Manager
	publisher StatusPublisher
	audit     domain.AuditStore
	notifier  Notifier
	logger    *slog.Logger
}

// NewSubscriptionService creates a SubscriptionService. audit and notifier
// may be nil.
func NewSubscriptionService(
	manager *subscription.Manager,
	publisher StatusPublisher,
	audit domain.AuditStore,
	notifier Notifier,
	logger *slog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		manager:   manager,
		publisher: publisher,
		audit:     audit,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "subscription_service")),
	}
}

// Subscribe asks the engine to stream symbol.
func (s *SubscriptionService) Subscribe(ctx context.Context, symbol string, streams domain.Streams) (domain.SymbolSubscription, error) {
	sub, err := s.manager.Subscribe(ctx, symbol, streams)
	if sub.Symbol == "" {
		return sub, err
	}
	s.publish()

	detail := map[string]any{
		"symbol": sub.Symbol,
		"trades": streams.Trades,
		"quotes": streams.Quotes,
		"bars":   streams.Bars,
		"source": "user",
	}
	if err != nil {
		detail["reason"] = sub.Reason
		s.record(ctx, domain.EventSubscribeFailed, detail)
		if s.notifier != nil {
			if nerr := s.notifier.Notify(ctx, domain.EventSubscribeFailed, "Subscribe failed",
				fmt.Sprintf("%s: %s", sub.Symbol, sub.Reason)); nerr != nil {
				s.logger.WarnContext(ctx, "subscription_service: notify failed", slog.String("error", nerr.Error()))
			}
		}
		return sub, err
	}
	s.record(ctx, domain.EventSubscribed, detail)
	return sub, nil
}

// Unsubscribe stops tracking symbol locally.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, symbol string) (domain.SymbolSubscription, error) {
	sub, err := s.manager.Unsubscribe(symbol)
	if err != nil {
		return sub, err
	}
	s.publish()
	s.record(ctx, domain.EventUnsubscribed, map[string]any{
		"symbol": sub.Symbol,
		"phase":  string(sub.Phase),
		"source": "user",
	})
	return sub, nil
}

// State returns the subscription state.
func (s *SubscriptionService) State() domain.SubscriptionState {
	return s.manager.Snapshot()
}

func (s *SubscriptionService) publish() {
	if s.publisher != nil {
		s.publisher.PublishStatus()
	}
}

func (s *SubscriptionService) record(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "subscription_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
