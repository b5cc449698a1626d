// Package notify delivers operator alerts (lost engine connection, order
// fills and rejections) to Telegram and Discord. Events can be filtered by
// name and repeated events are throttled so a flapping connection does not
// flood the channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Message is one alert as handed to a Sender.
type Message struct {
	Event string
	Title string
	Body  string
}

// Sender delivers a message over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier fans an alert out to every Sender.
type Notifier struct {
	senders  []Sender
	events   map[string]bool
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewNotifier creates a Notifier. An empty events list allows every event.
// A positive cooldown drops an event repeated within that interval.
func NewNotifier(senders []Sender, events []string, cooldown time.Duration, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		cooldown: cooldown,
		logger:   logger.With(slog.String("component", "notifier")),
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends an alert for event unless it is filtered or throttled.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "notifier: event filtered", slog.String("event", event))
		return nil
	}
	if n.throttled(event) {
		n.logger.DebugContext(ctx, "notifier: event throttled", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, Message{Event: event, Title: title, Body: message})
}

func (n *Notifier) throttled(event string) bool {
	if n.cooldown <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if last, ok := n.last[event]; ok && now.Sub(last) < n.cooldown {
		return true
	}
	n.last[event] = now
	return false
}

// dispatch delivers to every sender. One sender failing does not stop the
// others; the failures are joined.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "notifier: sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", msg.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notifier: sent",
			slog.String("sender", s.Name()),
			slog.String("event", msg.Event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
