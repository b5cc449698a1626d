package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedesk/internal/view"
)

type chanBus struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 4)
	b.subs[channel] = ch
	return ch, nil
}

func (b *chanBus) channel(name string) (chan []byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.subs[name]
	return ch, ok
}

type staticViews map[view.FeedID]any

func (s staticViews) Get(f view.FeedID) (any, bool) {
	v, ok := s[f]
	return v, ok
}

func TestHubSendsSnapshotThenBusMessages(t *testing.T) {
	bus := &chanBus{subs: make(map[string]chan []byte)}
	views := staticViews{view.FeedStatus: map[string]bool{"connected": true}}
	hub := NewHub(bus, views, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var env struct {
		Feed  string          `json:"feed"`
		Model map[string]bool `json:"model"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "status", env.Feed)
	assert.True(t, env.Model["connected"])

	var book chan []byte
	require.Eventually(t, func() bool {
		ch, ok := bus.channel(view.Channel(view.FeedBook))
		book = ch
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	book <- []byte(`{"feed":"book","model":{}}`)
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"feed":"book","model":{}}`, string(data))
}

func TestClientSubscriptionFilter(t *testing.T) {
	c := &client{subs: map[string]bool{"view:*": true}}
	assert.True(t, c.isSubscribed("view:book"))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"*"}})
	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"orders", "view:status"}})
	assert.False(t, c.isSubscribed("view:book"))
	assert.True(t, c.isSubscribed("view:orders"))
	assert.True(t, c.isSubscribed("view:status"))
}
