package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const defaultBuffer = 64

// Subscription is a caller-owned handle on one channel's event stream.
// Close must be called (or the subscribe context cancelled) to release it.
type Subscription struct {
	ID        string
	ChannelID uint64

	events  chan Event
	done    chan struct{}
	release func()

	mu     sync.Mutex
	closed bool
	err    error

	closeOnce sync.Once
}

func newSubscription(channelID uint64, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Subscription{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		events:    make(chan Event, buffer),
		done:      make(chan struct{}),
	}
}

// watch arms the subscription: release runs once on Close, and ctx
// cancellation closes it. Call after the subscription is registered.
func (s *Subscription) watch(ctx context.Context, release func()) {
	s.release = release
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}

// Events is closed when the subscription ends; check Err afterwards.
func (s *Subscription) Events() <-chan Event { return s.events }

// Err reports why the subscription ended: nil after Close or context
// cancellation, ErrSlowConsumer after eviction.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops delivery immediately. Safe to call more than once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		if s.release != nil {
			s.release()
		}
		s.shutdown(nil)
	})
	return nil
}

// deliver enqueues ev without blocking. It reports false when the buffer is
// full; the caller then evicts the subscriber.
func (s *Subscription) deliver(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) shutdown(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.events)
	close(s.done)
}
