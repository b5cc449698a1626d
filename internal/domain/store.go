package domain

import (
	"context"
	"time"
)

// TradeStore journals trades observed on the trade feed.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListRecent(ctx context.Context, limit int) ([]Trade, error)
}

// OrderStore journals the lifecycle of orders submitted from this client.
type OrderStore interface {
	Upsert(ctx context.Context, order Order) error
	ListRecent(ctx context.Context, limit int) ([]Order, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore records client actions and system events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	ListRecent(ctx context.Context, limit int) ([]AuditEntry, error)
}
