// Package ws pushes published views to dashboard websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	sendBufferSize = 256
)

// ViewSource returns the latest published view of a feed.
type ViewSource interface {
	Get(feed view.FeedID) (any, bool)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one websocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // subscribed channels, "view:*" for all
	mu   sync.RWMutex
}

// subscribeMsg changes a client's channel set. Channels may be given as bus
// channels ("view:book") or bare feed names ("book").
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// Hub relays views from the signal bus to connected clients. Each client
// receives only the channels it subscribed to; new clients start with every
// channel and a snapshot of the views published so far.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	views      ViewSource
	mu         sync.RWMutex
	logger     *slog.Logger
}

type broadcastMsg struct {
	channel string
	data    []byte
}

// NewHub creates a hub reading from bus. views may be nil, in which case
// clients get no snapshot on connect.
func NewHub(bus domain.SignalBus, views ViewSource, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		views:      views,
		logger:     logger.With(slog.String("component", "ws")),
	}
}

// Run subscribes to every view channel and serves the client registry until
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for _, f := range view.AllFeeds() {
		go h.subscribeToChannel(ctx, view.Channel(f))
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", total))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", total))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(msg.channel) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("ws: dropping message for slow client", slog.String("channel", msg.channel))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) subscribeToChannel(ctx context.Context, channel string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to channel",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: channel subscription closed", slog.String("channel", channel))
				return
			}
			select {
			case h.broadcast <- broadcastMsg{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{"view:*": true},
	}

	h.register <- c
	c.sendSnapshot()

	go c.writePump()
	go c.readPump()
}

// sendSnapshot queues the latest view of every feed that has published, so
// a client renders without waiting for the next cycle.
func (c *client) sendSnapshot() {
	if c.hub.views == nil {
		return
	}
	for _, f := range view.AllFeeds() {
		model, ok := c.hub.views.Get(f)
		if !ok {
			continue
		}
		data, err := json.Marshal(view.Envelope{Feed: f, Model: model})
		if err != nil {
			c.hub.logger.Warn("ws: snapshot encode failed",
				slog.String("feed", string(f)),
				slog.String("error", err.Error()),
			)
			continue
		}
		select {
		case c.send <- data:
		default:
			return
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range msg.Channels {
		ch = normalizeChannel(ch)
		switch msg.Action {
		case "subscribe":
			c.subs[ch] = true
		case "unsubscribe":
			delete(c.subs, ch)
		}
	}
}

func normalizeChannel(ch string) string {
	ch = strings.TrimSpace(ch)
	switch {
	case ch == "*":
		return "view:*"
	case strings.HasPrefix(ch, "view:"):
		return ch
	}
	return "view:" + ch
}

// isSubscribed matches exact channels and trailing-star prefixes.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// writePump sends queued views as text frames plus periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
