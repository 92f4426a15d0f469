package timeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/realtime"
	"github.com/oggyb/muzz-matching/internal/timeline"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func serverMsg(id uint64, clientID, content string, offset time.Duration) realtime.Message {
	return realtime.Message{
		ID:        id,
		ChannelID: 1,
		SenderID:  10,
		ClientID:  clientID,
		Content:   content,
		Type:      "text",
		CreatedAt: base.Add(offset),
	}
}

func statuses(entries []timeline.Entry) []timeline.Status {
	out := make([]timeline.Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Status)
	}
	return out
}

func TestPendingReplacedByClientIDNotContent(t *testing.T) {
	tl := timeline.New(1)

	first := tl.AddPending(10, "same text", "text", "")
	second := tl.AddPending(10, "same text", "text", "")
	require.NotEqual(t, first.ClientID, second.ClientID)

	// echo of the second send arrives first
	tl.Confirm(serverMsg(8, second.ClientID, "same text", 0))

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, timeline.StatusSent, entries[0].Status)
	assert.Equal(t, uint64(8), entries[0].ServerID)
	assert.Equal(t, second.ClientID, entries[0].ClientID)
	assert.Equal(t, timeline.StatusPending, entries[1].Status)
	assert.Equal(t, first.ClientID, entries[1].ClientID)
}

func TestDuplicateEchoesAreDeduplicated(t *testing.T) {
	tl := timeline.New(1)
	p := tl.AddPending(10, "hi", "text", "")

	msg := serverMsg(5, p.ClientID, "hi", 0)
	tl.Confirm(msg) // send response
	tl.Apply(realtime.Event{Type: realtime.EventNewMessage, ChannelID: 1, Seq: 1, Message: msg})
	tl.Apply(realtime.Event{Type: realtime.EventNewMessage, ChannelID: 1, Seq: 1, Message: msg})

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, timeline.StatusSent, entries[0].Status)
}

func TestFailAndRetry(t *testing.T) {
	tl := timeline.New(1)
	p := tl.AddPending(10, "hello?", "text", "")

	require.NoError(t, tl.Fail(p.ClientID, "network down"))
	e := tl.Entries()[0]
	assert.Equal(t, timeline.StatusFailed, e.Status)
	assert.Equal(t, "network down", e.Reason)

	retry, err := tl.Retry(p.ClientID)
	require.NoError(t, err)
	assert.Equal(t, p.ClientID, retry.ClientID)
	assert.Equal(t, timeline.StatusPending, retry.Status)

	tl.Confirm(serverMsg(3, p.ClientID, "hello?", 0))
	assert.Equal(t, []timeline.Status{timeline.StatusSent}, statuses(tl.Entries()))

	_, err = tl.Retry(p.ClientID)
	assert.ErrorIs(t, err, timeline.ErrUnknownEntry)
	assert.ErrorIs(t, tl.Fail("nope", "x"), timeline.ErrUnknownEntry)
}

func TestOrderingAndGapDetection(t *testing.T) {
	tl := timeline.New(1)
	pending := tl.AddPending(10, "typing...", "text", "")

	assert.False(t, tl.Apply(realtime.Event{Type: realtime.EventNewMessage, ChannelID: 1, Seq: 1, Message: serverMsg(2, "", "b", 2*time.Second)}))
	assert.True(t, tl.Apply(realtime.Event{Type: realtime.EventNewMessage, ChannelID: 1, Seq: 3, Message: serverMsg(1, "", "a", time.Second)}))
	// other channels are ignored
	assert.False(t, tl.Apply(realtime.Event{Type: realtime.EventNewMessage, ChannelID: 2, Seq: 9, Message: serverMsg(7, "", "x", 0)}))

	entries := tl.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []uint64{1, 2, 0}, []uint64{entries[0].ServerID, entries[1].ServerID, entries[2].ServerID})
	assert.Equal(t, pending.ClientID, entries[2].ClientID)

	// re-fetch after the gap
	tl.Merge([]realtime.Message{
		serverMsg(1, "", "a", time.Second),
		serverMsg(2, "", "b", 2*time.Second),
		serverMsg(3, "", "c", 3*time.Second),
	})
	entries = tl.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, uint64(3), entries[2].ServerID)

	// sequence tracking restarted
	assert.False(t, tl.Apply(realtime.Event{Type: realtime.EventNewMessage, ChannelID: 1, Seq: 10, Message: serverMsg(4, "", "d", 4*time.Second)}))
}

func TestMessageUpdatedSetsReadAt(t *testing.T) {
	tl := timeline.New(1)
	tl.Confirm(serverMsg(1, "", "a", 0))

	read := base.Add(time.Minute)
	updated := serverMsg(1, "", "a", 0)
	updated.ReadAt = &read
	tl.Apply(realtime.Event{Type: realtime.EventMessageUpdated, ChannelID: 1, Seq: 2, Message: updated})

	entries := tl.Entries()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Message.ReadAt)
	assert.True(t, entries[0].Message.ReadAt.Equal(read))
}
