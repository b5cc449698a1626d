package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/tradedesk/internal/blob/s3"
	"github.com/alanyoungcy/tradedesk/internal/cache/memory"
	"github.com/alanyoungcy/tradedesk/internal/cache/redis"
	"github.com/alanyoungcy/tradedesk/internal/config"
	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/feed"
	"github.com/alanyoungcy/tradedesk/internal/notify"
	"github.com/alanyoungcy/tradedesk/internal/orders"
	"github.com/alanyoungcy/tradedesk/internal/platform/engine"
	"github.com/alanyoungcy/tradedesk/internal/reconcile"
	"github.com/alanyoungcy/tradedesk/internal/server/handler"
	"github.com/alanyoungcy/tradedesk/internal/service"
	"github.com/alanyoungcy/tradedesk/internal/store/postgres"
	"github.com/alanyoungcy/tradedesk/internal/subscription"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// Dependencies bundles everything the modes run. Optional parts are nil when
// their backend is disabled: TradeStore, OrderStore and AuditStore without
// Postgres, Archive without S3.
type Dependencies struct {
	Engine        *engine.Client
	Views         *view.Store
	Tracker       *orders.Tracker
	Subscriptions *subscription.Manager
	Coordinator   *feed.Coordinator

	OrderService        *service.OrderService
	SubscriptionService *service.SubscriptionService
	Archive             *service.ArchiveService

	SignalBus   domain.SignalBus
	BookCache   domain.BookCache
	RateLimiter domain.RateLimiter
	TradeStore  domain.TradeStore
	OrderStore  domain.OrderStore
	AuditStore  domain.AuditStore

	Notifier *notify.Notifier
	Checks   map[string]handler.Check
}

// Wire constructs every dependency from cfg and returns a cleanup function
// releasing them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	deps.Engine = engine.NewClient(cfg.Engine.BaseURL,
		engine.WithTimeout(cfg.Engine.Timeout.Duration),
		engine.WithLogger(logger),
	)
	deps.Checks["engine"] = deps.Engine.Health

	// --- Redis, or the in-process fallback ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.BookCache = redis.NewBookCache(redisClient, cfg.Redis.BookTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		deps.SignalBus = memory.NewBus()
		deps.BookCache = memory.NewBookCache()
		deps.RateLimiter = memory.NewRateLimiter()
	}

	// --- PostgreSQL journal ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPI,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Cooldown.Duration, logger)

	// Interfaces below stay nil rather than holding a nil pointer.
	var alerts interface {
		feed.Notifier
		service.Notifier
	}
	if deps.Notifier.Enabled() {
		alerts = deps.Notifier
	}

	// --- Feeds ---
	deps.Views = view.NewStore()
	deps.Tracker = orders.NewTracker(orders.Config{
		Retention:    cfg.Feeds.OrderRetention,
		HighlightTTL: cfg.Feeds.HighlightTTL.Duration,
	}, logger)
	deps.Subscriptions = subscription.NewManager(deps.Engine, cfg.Feeds.StatusFailureThreshold, logger)

	deps.Coordinator = feed.NewCoordinator(feed.Config{
		Intervals: map[view.FeedID]time.Duration{
			view.FeedBook:       cfg.Poll.Book.Duration,
			view.FeedTicks:      cfg.Poll.Ticks.Duration,
			view.FeedTrades:     cfg.Poll.Trades.Duration,
			view.FeedStatus:     cfg.Poll.Status.Duration,
			view.FeedMarket:     cfg.Poll.Market.Duration,
			view.FeedStatistics: cfg.Poll.Statistics.Duration,
		},
		BookLevels: cfg.Feeds.BookLevels,
		MaxBackoff: cfg.Feeds.MaxBackoff.Duration,
		SinkBuffer: cfg.Feeds.SinkBuffer,
	}, feed.Deps{
		Client: deps.Engine,
		Reconciler: reconcile.New(reconcile.Config{
			TickWindow:     cfg.Feeds.TickWindow,
			TradeRetention: cfg.Feeds.TradeRetention,
			HighlightTTL:   cfg.Feeds.HighlightTTL.Duration,
		}),
		Views:         deps.Views,
		Subscriptions: deps.Subscriptions,
		Orders:        deps.Tracker,
		Sinks: feed.Sinks{
			Bus:       deps.SignalBus,
			BookCache: deps.BookCache,
			BookKey:   cfg.Redis.BookKey,
			Trades:    deps.TradeStore,
			Orders:    deps.OrderStore,
			Audit:     deps.AuditStore,
			Notifier:  alerts,
		},
		Logger: logger,
	})

	// --- Commands ---
	deps.OrderService = service.NewOrderService(
		deps.Tracker, deps.Engine, deps.Coordinator,
		deps.OrderStore, deps.AuditStore, alerts, logger,
	)
	if cfg.Orders.RateLimit > 0 {
		deps.OrderService.WithRateLimiter(deps.RateLimiter, service.RateLimit{
			Limit:  cfg.Orders.RateLimit,
			Window: cfg.Orders.RateWindow.Duration,
		})
	}
	deps.SubscriptionService = service.NewSubscriptionService(
		deps.Subscriptions, deps.Coordinator, deps.AuditStore, alerts, logger,
	)

	// --- S3 snapshot archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		archiver := s3blob.NewArchiver(s3blob.NewWriter(s3Client))
		deps.Archive = service.NewArchiveService(deps.Views, archiver, deps.AuditStore,
			cfg.Archive.Interval.Duration, logger)
	}

	return deps, cleanup, nil
}
