package domain

import (
	"context"
	"time"
)

// BookCache keeps the last good book snapshot outside the process so a
// restarted client computes its first change-set against it.
type BookCache interface {
	SetBook(ctx context.Context, key string, snap BookSnapshot) error
	GetBook(ctx context.Context, key string) (BookSnapshot, error)
}

// SignalBus provides pub/sub fan-out of published views and events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter is a sliding-window limiter keyed by caller-chosen strings.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
