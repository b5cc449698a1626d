// Package app wires the tradedesk dependencies and runs the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/tradedesk/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	base    *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		base:   logger,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependencies, starts the selected mode and blocks until ctx
// is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "app: starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("engine", a.cfg.Engine.BaseURL),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("postgres", a.cfg.Postgres.Enabled),
		slog.Bool("archive", a.cfg.Archive.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.base)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times.
func (a *App) Close() {
	a.logger.Info("app: shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
