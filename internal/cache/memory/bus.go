// Package memory provides in-process implementations of the domain cache
// interfaces for running without Redis.
package memory

import (
	"context"
	"path"
	"sync"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

const subscriberBuffer = 128

type subscriber struct {
	pattern string
	ch      chan []byte
}

// Bus is an in-process domain.SignalBus. Channels are matched with
// path.Match, so "view:*" receives every view. A subscriber that falls
// behind loses messages rather than blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]subscriber
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Publish delivers payload to every matching subscriber.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, domain.InvalidRequestf("channel pattern %q: %v", channel, err)
	}

	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscriber{pattern: channel, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

var _ domain.SignalBus = (*Bus)(nil)
