// Package config defines the tradedesk configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields are populated from a TOML file
// and then optionally overridden by TRADEDESK_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Poll     PollConfig     `toml:"poll"`
	Feeds    FeedsConfig    `toml:"feeds"`
	Orders   OrdersConfig   `toml:"orders"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig points at the trading engine's HTTP API.
type EngineConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// PollConfig holds the interval of each polled feed.
type PollConfig struct {
	Book       duration `toml:"book"`
	Ticks      duration `toml:"ticks"`
	Trades     duration `toml:"trades"`
	Status     duration `toml:"status"`
	Market     duration `toml:"market"`
	Statistics duration `toml:"statistics"`
}

// FeedsConfig bounds the reconciled views.
type FeedsConfig struct {
	BookLevels             int      `toml:"book_levels"`
	TickWindow             int      `toml:"tick_window"`
	TradeRetention         int      `toml:"trade_retention"`
	OrderRetention         int      `toml:"order_retention"`
	HighlightTTL           duration `toml:"highlight_ttl"`
	MaxBackoff             duration `toml:"max_backoff"`
	StatusFailureThreshold int      `toml:"status_failure_threshold"`
	SinkBuffer             int      `toml:"sink_buffer"`
}

// OrdersConfig rate-limits order commands. A zero rate_limit disables it.
type OrdersConfig struct {
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// RedisConfig holds Redis connection parameters. When disabled, the bus,
// book cache and rate limiter run in process.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	BookKey    string   `toml:"book_key"`
	BookTTL    duration `toml:"book_ttl"`
}

// PostgresConfig holds the journal database parameters.
type PostgresConfig struct {
	Enabled        bool     `toml:"enabled"`
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the periodic snapshot archive to S3.
type ArchiveConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// duration wraps time.Duration so TOML strings like "2s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the dashboard HTTP server parameters. An empty APIKey
// leaves the command endpoints open.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPI       string   `toml:"telegram_api"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Cooldown          duration `toml:"cooldown"`
}

// Defaults returns a Config with every value set. It matches
// config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			BaseURL: "http://localhost:18080",
			Timeout: duration{10 * time.Second},
		},
		Poll: PollConfig{
			Book:       duration{2 * time.Second},
			Ticks:      duration{2 * time.Second},
			Trades:     duration{3 * time.Second},
			Status:     duration{5 * time.Second},
			Market:     duration{5 * time.Second},
			Statistics: duration{10 * time.Second},
		},
		Feeds: FeedsConfig{
			BookLevels:             10,
			TickWindow:             50,
			TradeRetention:         50,
			OrderRetention:         50,
			HighlightTTL:           duration{2 * time.Second},
			MaxBackoff:             duration{30 * time.Second},
			StatusFailureThreshold: 3,
			SinkBuffer:             256,
		},
		Orders: OrdersConfig{
			RateLimit:  10,
			RateWindow: duration{time.Second},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			BookKey:    "tradedesk:book:latest",
			BookTTL:    duration{24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Enabled:        false,
			Host:           "localhost",
			Port:           5432,
			Database:       "tradedesk",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   5,
			PoolMinConns:   1,
			ConnectTimeout: duration{5 * time.Second},
			RunMigrations:  true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradedesk",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:  false,
			Interval: duration{time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events:   []string{"connection_lost", "connection_restored", "order_filled", "order_rejected"},
			Cooldown: duration{30 * time.Second},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"serve":   true,
	"monitor": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// maxBookLevels mirrors the engine's depth cap.
const maxBookLevels = 50

// Validate checks Config and returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Engine.BaseURL) == "" {
		errs = append(errs, "engine: base_url must not be empty")
	}
	if c.Engine.Timeout.Duration <= 0 {
		errs = append(errs, "engine: timeout must be > 0")
	}

	for name, d := range map[string]duration{
		"book": c.Poll.Book, "ticks": c.Poll.Ticks, "trades": c.Poll.Trades,
		"status": c.Poll.Status, "market": c.Poll.Market, "statistics": c.Poll.Statistics,
	} {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("poll: %s must be > 0", name))
		}
	}

	if c.Feeds.BookLevels < 1 || c.Feeds.BookLevels > maxBookLevels {
		errs = append(errs, fmt.Sprintf("feeds: book_levels must be 1-%d, got %d", maxBookLevels, c.Feeds.BookLevels))
	}
	if c.Feeds.TickWindow < 1 {
		errs = append(errs, "feeds: tick_window must be >= 1")
	}
	if c.Feeds.TradeRetention < 1 {
		errs = append(errs, "feeds: trade_retention must be >= 1")
	}
	if c.Feeds.OrderRetention < 1 {
		errs = append(errs, "feeds: order_retention must be >= 1")
	}
	if c.Feeds.HighlightTTL.Duration <= 0 {
		errs = append(errs, "feeds: highlight_ttl must be > 0")
	}
	if c.Feeds.StatusFailureThreshold < 1 {
		errs = append(errs, "feeds: status_failure_threshold must be >= 1")
	}

	if c.Orders.RateLimit < 0 {
		errs = append(errs, "orders: rate_limit must be >= 0")
	}
	if c.Orders.RateLimit > 0 && c.Orders.RateWindow.Duration <= 0 {
		errs = append(errs, "orders: rate_window must be > 0 when rate_limit is set")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
