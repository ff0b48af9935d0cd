package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/uvci/resto/pkg/logger"
)

// Bridge fans change notifications out through a Redis channel so every
// instance's local bus sees them. Local subscribers are reached through the
// Redis echo, never directly, so a change is delivered exactly once.
type Bridge struct {
	rdb     *redis.Client
	bus     *Bus
	channel string
}

func NewBridge(rdb *redis.Client, bus *Bus, channel string) *Bridge {
	return &Bridge{rdb: rdb, bus: bus, channel: channel}
}

// PublishChange sends c to the shared channel. On Redis failure it falls
// back to the local bus so this instance still observes the change.
func (b *Bridge) PublishChange(ctx context.Context, c Change) {
	raw, err := json.Marshal(c)
	if err == nil {
		err = b.rdb.Publish(ctx, b.channel, raw).Err()
	}
	if err != nil {
		logger.WithCtx(ctx).Warn("event: bridge publish failed, delivering locally", "table", c.Table, "error", err)
		b.bus.PublishChange(ctx, c)
	}
}

// Run relays channel messages into the local bus until ctx is done.
// ready, if non-nil, is closed once the subscription is active.
func (b *Bridge) Run(ctx context.Context, ready chan<- struct{}) error {
	ps := b.rdb.Subscribe(ctx, b.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("event: bridge subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				logger.Warn("event: bridge dropped malformed change", "error", err)
				continue
			}
			b.bus.PublishChange(ctx, c)
		}
	}
}
