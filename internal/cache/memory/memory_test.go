package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

func TestBusPatternDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus()
	all, err := bus.Subscribe(ctx, "view:*")
	require.NoError(t, err)
	book, err := bus.Subscribe(ctx, "view:book")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "view:trades", []byte("t")))
	require.NoError(t, bus.Publish(ctx, "view:book", []byte("b")))
	require.NoError(t, bus.Publish(ctx, "other", []byte("x")))

	assert.Equal(t, []byte("t"), <-all)
	assert.Equal(t, []byte("b"), <-all)
	assert.Equal(t, []byte("b"), <-book)
	assert.Empty(t, all)
	assert.Empty(t, book)
}

func TestBusClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus()
	ch, err := bus.Subscribe(ctx, "view:*")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}

	// Publishing after the subscriber left must not panic.
	require.Eventually(t, func() bool {
		return bus.Publish(context.Background(), "view:book", []byte("b")) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestBusRejectsBadPattern(t *testing.T) {
	_, err := NewBus().Subscribe(context.Background(), "view:[")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestBookCache(t *testing.T) {
	c := NewBookCache()
	_, err := c.GetBook(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	snap := domain.BookSnapshot{Bids: []domain.BookLevel{{Price: decimal.RequireFromString("99.5"), Quantity: 10, OrderCount: 1}}}
	require.NoError(t, c.SetBook(context.Background(), "k", snap))
	got, err := c.GetBook(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "orders:submit", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := rl.Allow(ctx, "orders:submit", 3, time.Second)
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "orders:cancel", 3, time.Second)
	assert.True(t, ok, "keys are independent")

	now = now.Add(1100 * time.Millisecond)
	ok, _ = rl.Allow(ctx, "orders:submit", 3, time.Second)
	assert.True(t, ok)
}
