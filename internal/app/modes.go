package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradedesk/internal/server"
	"github.com/alanyoungcy/tradedesk/internal/server/handler"
	"github.com/alanyoungcy/tradedesk/internal/server/ws"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

const shutdownTimeout = 5 * time.Second

// ServeMode runs the feeds together with the dashboard API and websocket.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeeds(ctx, g, deps)

	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "app: server.enabled is false, serving feeds only")
		return ignoreCanceled(g.Wait())
	}
	a.startHTTPServer(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

// MonitorMode runs the feeds without the HTTP server and logs one line per
// published view.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting monitor mode")

	monitor := a.base.With(slog.String("component", "monitor"))
	deps.Views.OnPublish(func(f view.FeedID, model any) {
		logPublished(monitor, f, model)
	})

	g, ctx := errgroup.WithContext(ctx)
	a.startFeeds(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

// startFeeds adds the coordinator and, when configured, the archive loop.
func (a *App) startFeeds(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Coordinator.Run(ctx)
	})
	if deps.Archive != nil {
		g.Go(func() error {
			return deps.Archive.Run(ctx)
		})
	}
}

// startHTTPServer adds the websocket hub and the HTTP server to g. The server
// is shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, deps.Views, a.base)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(deps.Checks, a.base),
		Views:         handler.NewViewHandler(deps.Views),
		Orders:        handler.NewOrderHandler(deps.OrderService, a.base),
		Subscriptions: handler.NewSubscriptionHandler(deps.SubscriptionService, a.base),
		Feeds:         handler.NewFeedHandler(deps.Coordinator, a.base),
	}
	if deps.TradeStore != nil || deps.AuditStore != nil {
		handlers.Journal = handler.NewJournalHandler(deps.TradeStore, deps.AuditStore, a.base)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Orders.RateLimit,
		RateWindow:  a.cfg.Orders.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.base)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// logPublished writes the monitor line for one view.
func logPublished(logger *slog.Logger, f view.FeedID, model any) {
	h, ok := model.(interface{ Header() view.Meta })
	if !ok {
		return
	}
	meta := h.Header()
	attrs := []any{
		slog.String("feed", string(f)),
		slog.Uint64("generation", meta.Generation),
		slog.Bool("loaded", meta.Loaded),
	}
	if meta.Stale != nil {
		logger.Warn("monitor: view stale", append(attrs,
			slog.String("kind", string(meta.Stale.Kind)),
			slog.String("error", meta.Stale.Message),
			slog.Int("consecutive_failures", meta.Stale.ConsecutiveFailures),
		)...)
		return
	}
	logger.Info("monitor: view published", attrs...)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
