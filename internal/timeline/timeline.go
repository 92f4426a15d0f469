// Package timeline is the client-side view of one channel's messages.
//
// It implements the reconciliation contract of the realtime bus: messages
// composed locally are inserted immediately as pending under a generated
// client id, and are replaced by the server copy when it arrives (through
// the send response or the bus), matched by client id only. Server ids are
// never listed twice.
package timeline

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oggyb/muzz-matching/internal/realtime"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

var ErrUnknownEntry = errors.New("timeline: no such entry")

// Entry is one row of the timeline.
//
//	pending: ClientID set, ServerID 0
//	sent:    ServerID set
//	failed:  ClientID set, Reason set
type Entry struct {
	Status   Status
	ClientID string
	ServerID uint64
	Reason   string
	Message  realtime.Message
}

// Timeline is safe for concurrent use.
type Timeline struct {
	mu        sync.Mutex
	channelID uint64
	entries   []Entry
	lastSeq   uint64
	now       func() time.Time
}

func New(channelID uint64) *Timeline {
	return &Timeline{channelID: channelID, now: time.Now}
}

// AddPending appends a locally composed message and returns its entry.
// Send it with Entry.ClientID so the server copy can be matched back.
func (t *Timeline) AddPending(senderID uint64, content, typ, fileURL string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := Entry{
		Status:   StatusPending,
		ClientID: uuid.NewString(),
		Message: realtime.Message{
			ChannelID: t.channelID,
			SenderID:  senderID,
			Content:   content,
			Type:      typ,
			FileURL:   fileURL,
			CreatedAt: t.now().UTC(),
		},
	}
	e.Message.ClientID = e.ClientID
	t.entries = append(t.entries, e)
	return e
}

// Confirm records a server message. It replaces the pending or failed
// entry with the same client id, ignores server ids already present, and
// otherwise inserts the message in order.
func (t *Timeline) Confirm(m realtime.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.confirm(m)
}

// Fail marks a pending entry as failed. It stays visible for Retry.
func (t *Timeline) Fail(clientID, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.byClientID(clientID)
	if i < 0 || t.entries[i].Status == StatusSent {
		return ErrUnknownEntry
	}
	t.entries[i].Status = StatusFailed
	t.entries[i].Reason = reason
	return nil
}

// Retry moves a failed entry back to pending and returns it for resending
// with the same client id.
func (t *Timeline) Retry(clientID string) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.byClientID(clientID)
	if i < 0 || t.entries[i].Status != StatusFailed {
		return Entry{}, ErrUnknownEntry
	}
	t.entries[i].Status = StatusPending
	t.entries[i].Reason = ""
	return t.entries[i], nil
}

// Apply consumes a bus event. It reports gap=true when sequence numbers
// show missed events; the caller should re-fetch history and call Merge.
func (t *Timeline) Apply(ev realtime.Event) (gap bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.ChannelID != t.channelID {
		return false
	}
	if ev.Seq != 0 {
		if t.lastSeq != 0 && ev.Seq > t.lastSeq+1 {
			gap = true
		}
		if ev.Seq > t.lastSeq {
			t.lastSeq = ev.Seq
		}
	}

	switch ev.Type {
	case realtime.EventNewMessage:
		t.confirm(ev.Message)
	case realtime.EventMessageUpdated:
		if i := t.byServerID(ev.Message.ID); i >= 0 {
			t.entries[i].Message.ReadAt = ev.Message.ReadAt
		} else {
			t.confirm(ev.Message)
		}
	}
	return gap
}

// Merge folds re-fetched history into the timeline after a reconnect or a
// detected gap, and restarts sequence tracking.
func (t *Timeline) Merge(history []realtime.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range history {
		if i := t.byServerID(m.ID); i >= 0 {
			t.entries[i].Message.ReadAt = m.ReadAt
			continue
		}
		t.confirm(m)
	}
	t.lastSeq = 0
}

// Entries returns a snapshot: sent messages ordered by (createdAt, id),
// followed by unconfirmed ones in the order they were composed.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) confirm(m realtime.Message) {
	if t.byServerID(m.ID) >= 0 {
		return
	}

	sent := Entry{Status: StatusSent, ClientID: m.ClientID, ServerID: m.ID, Message: m}
	if i := t.byClientID(m.ClientID); m.ClientID != "" && i >= 0 {
		t.entries[i] = sent
	} else {
		t.entries = append(t.entries, sent)
	}
	t.sort()
}

func (t *Timeline) sort() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		a, b := t.entries[i], t.entries[j]
		aSent, bSent := a.Status == StatusSent, b.Status == StatusSent
		if aSent != bSent {
			return aSent
		}
		if !aSent {
			return false
		}
		if !a.Message.CreatedAt.Equal(b.Message.CreatedAt) {
			return a.Message.CreatedAt.Before(b.Message.CreatedAt)
		}
		return a.ServerID < b.ServerID
	})
}

func (t *Timeline) byClientID(clientID string) int {
	if clientID == "" {
		return -1
	}
	for i, e := range t.entries {
		if e.ClientID == clientID {
			return i
		}
	}
	return -1
}

func (t *Timeline) byServerID(id uint64) int {
	if id == 0 {
		return -1
	}
	for i, e := range t.entries {
		if e.ServerID == id {
			return i
		}
	}
	return -1
}
