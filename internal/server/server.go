// Package server exposes the dashboard over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/server/handler"
	"github.com/alanyoungcy/tradedesk/internal/server/middleware"
	"github.com/alanyoungcy/tradedesk/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Journal may be
// nil when no journal is configured.
type Handlers struct {
	Health        *handler.HealthHandler
	Views         *handler.ViewHandler
	Orders        *handler.OrderHandler
	Subscriptions *handler.SubscriptionHandler
	Feeds         *handler.FeedHandler
	Journal       *handler.JournalHandler
}

// Server is the dashboard HTTP + websocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in CORS, logging, auth
// and rate-limit middleware. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	Routes(mux, handlers)
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Routes registers the API on mux.
func Routes(mux *http.ServeMux, h Handlers) {
	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/views", h.Views.ListViews)
	mux.HandleFunc("GET /api/views/{feed}", h.Views.GetView)

	mux.HandleFunc("GET /api/orders", h.Orders.ListOrders)
	mux.HandleFunc("GET /api/orders/history", h.Orders.History)
	mux.HandleFunc("GET /api/orders/{ref}", h.Orders.GetOrder)
	mux.HandleFunc("POST /api/orders", h.Orders.PlaceOrder)
	mux.HandleFunc("DELETE /api/orders/{ref}", h.Orders.CancelOrder)

	mux.HandleFunc("GET /api/subscriptions", h.Subscriptions.ListSubscriptions)
	mux.HandleFunc("POST /api/subscriptions", h.Subscriptions.Subscribe)
	mux.HandleFunc("DELETE /api/subscriptions/{symbol}", h.Subscriptions.Unsubscribe)

	mux.HandleFunc("GET /api/feeds", h.Feeds.ListFeeds)
	mux.HandleFunc("POST /api/feeds/{feed}/start", h.Feeds.StartFeed)
	mux.HandleFunc("POST /api/feeds/{feed}/stop", h.Feeds.StopFeed)
	mux.HandleFunc("PUT /api/feeds/book/levels", h.Feeds.SetBookLevels)

	if h.Journal != nil {
		mux.HandleFunc("GET /api/journal/trades", h.Journal.ListTrades)
		mux.HandleFunc("GET /api/journal/audit", h.Journal.ListAudit)
	}
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
