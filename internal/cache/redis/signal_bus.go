package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// subscriberBuffer is the per-subscription delivery buffer.
const subscriberBuffer = 128

// SignalBus implements domain.SignalBus over Redis Pub/Sub, so published
// views reach every client process sharing the Redis instance.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by c.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends payload to channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel, which may be
// a glob pattern such as "view:*". The returned channel is closed when ctx
// is done.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// hasPattern reports whether channel contains glob wildcards, which need
// PSubscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

var _ domain.SignalBus = (*SignalBus)(nil)
