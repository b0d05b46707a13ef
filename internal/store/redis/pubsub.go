package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// InvalidateChannel carries cache keys deleted on one instance so every
// other instance can drop its process-local copies.
const InvalidateChannel = "quoteserve:cache:invalidate"

// PublishInvalidation announces deleted cache keys to all instances.
func (c *Client) PublishInvalidation(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Publish(ctx, InvalidateChannel, strings.Join(keys, "\n")).Err(); err != nil {
		return fmt.Errorf("redis publish invalidation: %w", err)
	}
	return nil
}

// ListenInvalidations subscribes to InvalidateChannel and calls fn with the
// keys of every announcement until ctx is cancelled. It returns once the
// subscription is confirmed.
func (c *Client) ListenInvalidations(ctx context.Context, fn func(keys []string)) error {
	pubsub := c.client.Subscribe(ctx, InvalidateChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("redis subscribe %s: %w", InvalidateChannel, err)
	}
	slog.Info("listening for cache invalidations", "component", "redis", "channel", InvalidateChannel)

	go func() {
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
				if msg.Payload == "" {
					continue
				}
				fn(strings.Split(msg.Payload, "\n"))
			}
		}
	}()
	return nil
}
