package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/oggyb/muzz-matching/internal/cache"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

// RedisBus fans events out across server instances with Redis pub/sub.
//
// Sequence numbers come from an INCR per channel, so they are shared by
// every instance. Pub/sub itself keeps no history, which matches the
// no-replay contract of the bus.
type RedisBus struct {
	cache  *cache.RedisCache
	buffer int
	logger *slog.Logger
}

func NewRedisBus(c *cache.RedisCache, buffer int, logger *slog.Logger) *RedisBus {
	return &RedisBus{cache: c, buffer: buffer, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) (Event, error) {
	seq, err := b.cache.Incr(ctx, b.cache.KeyForChannelSeq(ev.ChannelID))
	if err != nil {
		return Event{}, svcErr.Transient("next channel seq", err)
	}
	ev.Seq = uint64(seq)

	body, err := json.Marshal(ev)
	if err != nil {
		return Event{}, fmt.Errorf("encode event: %w", err)
	}
	if err := b.cache.Client.Publish(ctx, b.cache.KeyForChannelEvents(ev.ChannelID), body).Err(); err != nil {
		return Event{}, svcErr.Transient("publish event", err)
	}
	return ev, nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channelID uint64) (*Subscription, error) {
	ps := b.cache.Client.Subscribe(ctx, b.cache.KeyForChannelEvents(channelID))
	// wait for the subscribe confirmation so no event published after we
	// return can be missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, svcErr.Transient("subscribe channel", err)
	}

	sub := newSubscription(channelID, b.buffer)
	sub.watch(ctx, func() { _ = ps.Close() })

	go func() {
		defer sub.shutdown(nil)
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("dropping undecodable event", "channel", channelID, "err", err)
				continue
			}
			if !sub.deliver(ev) {
				b.logger.Warn("evicting slow subscriber", "channel", channelID, "subscription", sub.ID)
				sub.shutdown(ErrSlowConsumer)
				_ = ps.Close()
				return
			}
		}
	}()

	return sub, nil
}
