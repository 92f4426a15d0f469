package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/realtime"
)

func recv(t *testing.T, sub *realtime.Subscription) realtime.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return realtime.Event{}
}

func newMessage(channelID, id uint64) realtime.Event {
	return realtime.Event{
		Type:      realtime.EventNewMessage,
		ChannelID: channelID,
		Message:   realtime.Message{ID: id, ChannelID: channelID, Content: "hi"},
	}
}

func TestHubOrderedDeliveryWithSeq(t *testing.T) {
	ctx := context.Background()
	hub := realtime.NewHub(16, logger.Discard())

	sub, err := hub.Subscribe(ctx, 7)
	require.NoError(t, err)
	defer sub.Close()

	other, err := hub.Subscribe(ctx, 8)
	require.NoError(t, err)
	defer other.Close()

	for i := uint64(1); i <= 3; i++ {
		ev, err := hub.Publish(ctx, newMessage(7, i))
		require.NoError(t, err)
		assert.Equal(t, i, ev.Seq)
	}

	for i := uint64(1); i <= 3; i++ {
		ev := recv(t, sub)
		assert.Equal(t, i, ev.Message.ID)
		assert.Equal(t, i, ev.Seq)
	}
	assert.Empty(t, other.Events())
}

func TestHubNoReplay(t *testing.T) {
	ctx := context.Background()
	hub := realtime.NewHub(16, logger.Discard())

	_, err := hub.Publish(ctx, newMessage(1, 1))
	require.NoError(t, err)

	sub, err := hub.Subscribe(ctx, 1)
	require.NoError(t, err)
	defer sub.Close()

	_, err = hub.Publish(ctx, newMessage(1, 2))
	require.NoError(t, err)

	ev := recv(t, sub)
	assert.Equal(t, uint64(2), ev.Message.ID)
	assert.Equal(t, uint64(2), ev.Seq)
}

func TestHubCloseStopsDeliveryImmediately(t *testing.T) {
	ctx := context.Background()
	hub := realtime.NewHub(16, logger.Discard())

	sub, err := hub.Subscribe(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers(1))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, hub.Subscribers(1))

	_, err = hub.Publish(ctx, newMessage(1, 1))
	require.NoError(t, err)

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.NoError(t, sub.Err())
}

// waitClosed drains sub until its event channel is closed.
func waitClosed(t *testing.T, sub *realtime.Subscription) {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("subscription not closed")
		}
	}
}

func TestHubContextCancelCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := realtime.NewHub(16, logger.Discard())

	sub, err := hub.Subscribe(ctx, 1)
	require.NoError(t, err)

	cancel()
	waitClosed(t, sub)
	assert.Eventually(t, func() bool { return hub.Subscribers(1) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubEvictsSlowConsumer(t *testing.T) {
	ctx := context.Background()
	hub := realtime.NewHub(2, logger.Discard())

	slow, err := hub.Subscribe(ctx, 1)
	require.NoError(t, err)
	fast, err := hub.Subscribe(ctx, 1)
	require.NoError(t, err)
	defer fast.Close()

	for i := uint64(1); i <= 3; i++ {
		_, err := hub.Publish(ctx, newMessage(1, i))
		require.NoError(t, err)
		recv(t, fast)
	}

	waitClosed(t, slow)
	assert.ErrorIs(t, slow.Err(), realtime.ErrSlowConsumer)
	assert.Equal(t, 1, hub.Subscribers(1))
}

func TestRedisBus(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)

	// two buses share Redis, like two server instances
	pub := realtime.NewRedisBus(rc, 16, logger.Discard())
	subBus := realtime.NewRedisBus(rc, 16, logger.Discard())

	ctx := context.Background()
	sub, err := subBus.Subscribe(ctx, 3)
	require.NoError(t, err)

	for i := uint64(1); i <= 3; i++ {
		ev, err := pub.Publish(ctx, newMessage(3, i))
		require.NoError(t, err)
		assert.Equal(t, i, ev.Seq)
	}

	for i := uint64(1); i <= 3; i++ {
		ev := recv(t, sub)
		assert.Equal(t, i, ev.Message.ID)
		assert.Equal(t, i, ev.Seq)
		assert.Equal(t, realtime.EventNewMessage, ev.Type)
	}

	require.NoError(t, sub.Close())
	waitClosed(t, sub)
	assert.NoError(t, sub.Err())
}
