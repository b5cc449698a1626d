package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// BookCache keeps book snapshots in process memory. It only helps a feed
// restarted within the same process.
type BookCache struct {
	mu    sync.RWMutex
	books map[string]domain.BookSnapshot
}

// NewBookCache creates an empty BookCache.
func NewBookCache() *BookCache {
	return &BookCache{books: make(map[string]domain.BookSnapshot)}
}

func (c *BookCache) SetBook(_ context.Context, key string, snap domain.BookSnapshot) error {
	c.mu.Lock()
	c.books[key] = snap
	c.mu.Unlock()
	return nil
}

func (c *BookCache) GetBook(_ context.Context, key string) (domain.BookSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.books[key]
	if !ok {
		return domain.BookSnapshot{}, fmt.Errorf("memory: get book %s: %w", key, domain.ErrNotFound)
	}
	return snap, nil
}

var _ domain.BookCache = (*BookCache)(nil)
