package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// SubscriptionService is what the subscription endpoints need.
type SubscriptionService interface {
	Subscribe(ctx context.Context, symbol string, streams domain.Streams) (domain.SymbolSubscription, error)
	Unsubscribe(ctx context.Context, symbol string) (domain.SymbolSubscription, error)
	State() domain.SubscriptionState
}

// SubscriptionHandler serves subscription endpoints.
type SubscriptionHandler struct {
	subs   SubscriptionService
	logger *slog.Logger
}

// NewSubscriptionHandler creates a SubscriptionHandler.
func NewSubscriptionHandler(subs SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, logger: logger}
}

// subscribeRequest selects streams; omitting all three selects all three.
type subscribeRequest struct {
	Symbol string `json:"symbol"`
	Trades *bool  `json:"trades"`
	Quotes *bool  `json:"quotes"`
	Bars   *bool  `json:"bars"`
}

func (s subscribeRequest) streams() domain.Streams {
	if s.Trades == nil && s.Quotes == nil && s.Bars == nil {
		return domain.Streams{Trades: true, Quotes: true, Bars: true}
	}
	deref := func(b *bool) bool { return b != nil && *b }
	return domain.Streams{Trades: deref(s.Trades), Quotes: deref(s.Quotes), Bars: deref(s.Bars)}
}

type subscriptionResponse struct {
	Subscription domain.SymbolSubscription `json:"subscription"`
	Error        string                    `json:"error,omitempty"`
}

// ListSubscriptions returns the connection flag and per-symbol states.
// GET /api/subscriptions
func (h *SubscriptionHandler) ListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.subs.State())
}

// Subscribe asks the engine to stream a symbol.
// POST /api/subscriptions {"symbol":"AAPL","trades":true}
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sub, err := h.subs.Subscribe(r.Context(), req.Symbol, req.streams())
	if err != nil {
		if sub.Symbol != "" {
			writeJSON(w, statusFor(err), subscriptionResponse{Subscription: sub, Error: domain.BackendReason(err)})
			return
		}
		writeServiceError(w, r, h.logger, "subscribe", err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{Subscription: sub})
}

// Unsubscribe stops tracking a symbol.
// DELETE /api/subscriptions/{symbol}
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subs.Unsubscribe(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeServiceError(w, r, h.logger, "unsubscribe", err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{Subscription: sub})
}
