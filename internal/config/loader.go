package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix namespaces every override variable.
const envPrefix = "TRADEDESK_"

// Load merges the TOML file at path over Defaults, loads .env if present and
// applies TRADEDESK_* overrides. A missing file is not an error when path is
// empty. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Engine
	setStr(&cfg.Engine.BaseURL, "ENGINE_BASE_URL")
	setDuration(&cfg.Engine.Timeout, "ENGINE_TIMEOUT")

	// Poll
	setDuration(&cfg.Poll.Book, "POLL_BOOK")
	setDuration(&cfg.Poll.Ticks, "POLL_TICKS")
	setDuration(&cfg.Poll.Trades, "POLL_TRADES")
	setDuration(&cfg.Poll.Status, "POLL_STATUS")
	setDuration(&cfg.Poll.Market, "POLL_MARKET")
	setDuration(&cfg.Poll.Statistics, "POLL_STATISTICS")

	// Feeds
	setInt(&cfg.Feeds.BookLevels, "FEEDS_BOOK_LEVELS")
	setInt(&cfg.Feeds.TickWindow, "FEEDS_TICK_WINDOW")
	setInt(&cfg.Feeds.TradeRetention, "FEEDS_TRADE_RETENTION")
	setInt(&cfg.Feeds.OrderRetention, "FEEDS_ORDER_RETENTION")
	setDuration(&cfg.Feeds.HighlightTTL, "FEEDS_HIGHLIGHT_TTL")
	setDuration(&cfg.Feeds.MaxBackoff, "FEEDS_MAX_BACKOFF")
	setInt(&cfg.Feeds.StatusFailureThreshold, "FEEDS_STATUS_FAILURE_THRESHOLD")

	// Orders
	setInt(&cfg.Orders.RateLimit, "ORDERS_RATE_LIMIT")
	setDuration(&cfg.Orders.RateWindow, "ORDERS_RATE_WINDOW")

	// Redis
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	// Postgres
	setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// S3 and archive
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.Prefix, "S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")
	setBool(&cfg.Archive.Enabled, "ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "ARCHIVE_INTERVAL")

	// Server
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "NOTIFY_COOLDOWN")

	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// Typed env helpers. Each mutates the target only when TRADEDESK_<key> is
// set, non-empty and parses.

func lookup(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
