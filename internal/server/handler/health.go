package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

const checkTimeout = 2 * time.Second

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks map[string]Check
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler running checks, keyed by
// dependency name.
func NewHealthHandler(checks map[string]Check, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// HealthCheck runs every check and answers 503 when any fails.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			h.logger.WarnContext(ctx, "handler: health check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":    overall,
		"checks":    results,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
