package realtime

import (
	"context"
	"log/slog"
	"sync"
)

// Hub is the in-process Bus. Suitable for a single server instance and for
// tests; use RedisBus when several instances share channels.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]map[string]*Subscription
	seq    map[uint64]uint64
	buffer int
	logger *slog.Logger
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[uint64]map[string]*Subscription),
		seq:    make(map[uint64]uint64),
		buffer: buffer,
		logger: logger,
	}
}

func (h *Hub) Publish(_ context.Context, ev Event) (Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq[ev.ChannelID]++
	ev.Seq = h.seq[ev.ChannelID]

	for id, sub := range h.subs[ev.ChannelID] {
		if sub.deliver(ev) {
			continue
		}
		h.logger.Warn("evicting slow subscriber", "channel", ev.ChannelID, "subscription", id)
		delete(h.subs[ev.ChannelID], id)
		sub.shutdown(ErrSlowConsumer)
	}
	return ev, nil
}

func (h *Hub) Subscribe(ctx context.Context, channelID uint64) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := newSubscription(channelID, h.buffer)

	h.mu.Lock()
	if h.subs[channelID] == nil {
		h.subs[channelID] = make(map[string]*Subscription)
	}
	h.subs[channelID][sub.ID] = sub
	h.mu.Unlock()

	sub.watch(ctx, func() { h.remove(channelID, sub.ID) })
	h.logger.Debug("hub subscription added", "channel", channelID, "subscribers", h.Subscribers(channelID))
	return sub, nil
}

// Subscribers returns the number of live subscriptions on a channel.
func (h *Hub) Subscribers(channelID uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channelID])
}

func (h *Hub) remove(channelID uint64, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[channelID], id)
	if len(h.subs[channelID]) == 0 {
		delete(h.subs, channelID)
	}
}
