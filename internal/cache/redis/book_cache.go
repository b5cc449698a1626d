package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// DefaultBookTTL bounds how old a cached book may be when a restarted client
// seeds from it.
const DefaultBookTTL = 24 * time.Hour

// BookCache implements domain.BookCache. The snapshot is stored as a JSON
// string so prices keep their exact decimal text.
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache backed by c. A non-positive ttl uses
// DefaultBookTTL.
func NewBookCache(c *Client, ttl time.Duration) *BookCache {
	if ttl <= 0 {
		ttl = DefaultBookTTL
	}
	return &BookCache{rdb: c.Underlying(), ttl: ttl}
}

// SetBook replaces the cached snapshot under key.
func (bc *BookCache) SetBook(ctx context.Context, key string, snap domain.BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: set book %s: marshal: %w", key, err)
	}
	if err := bc.rdb.Set(ctx, key, data, bc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set book %s: %w", key, err)
	}
	return nil
}

// GetBook returns the cached snapshot under key, or domain.ErrNotFound.
func (bc *BookCache) GetBook(ctx context.Context, key string) (domain.BookSnapshot, error) {
	data, err := bc.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.BookSnapshot{}, fmt.Errorf("redis: get book %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: get book %s: %w", key, err)
	}

	var snap domain.BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: get book %s: unmarshal: %w", key, err)
	}
	return snap, nil
}

var _ domain.BookCache = (*BookCache)(nil)
