// Package realtime fans chat events out to subscribers of a channel.
//
// Delivery is at-least-once with per-channel ordering. There is no backlog:
// a subscriber only sees events published after Subscribe returned, and
// recovers gaps by re-reading channel history. Every event carries a
// per-channel sequence number so gaps are detectable.
package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/oggyb/muzz-matching/internal/db"
)

type EventType string

const (
	EventNewMessage     EventType = "new_message"
	EventMessageUpdated EventType = "message_updated"
)

// ErrSlowConsumer ends a subscription whose buffer filled up.
var ErrSlowConsumer = errors.New("realtime: subscriber too slow, dropped")

// Message is the wire view of a stored message.
type Message struct {
	ID        uint64     `json:"id"`
	ChannelID uint64     `json:"channel_id"`
	SenderID  uint64     `json:"sender_id"`
	ClientID  string     `json:"client_id,omitempty"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	FileURL   string     `json:"file_url,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

func FromModel(m db.Message) Message {
	out := Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      string(m.Type),
		CreatedAt: m.CreatedAt,
		ReadAt:    m.ReadAt,
	}
	if m.ClientID != nil {
		out.ClientID = *m.ClientID
	}
	if m.FileURL != nil {
		out.FileURL = *m.FileURL
	}
	return out
}

type Event struct {
	Type      EventType `json:"type"`
	ChannelID uint64    `json:"channel_id"`
	// Seq increases by one per event within a channel.
	Seq     uint64  `json:"seq"`
	Message Message `json:"message"`
}

// Bus publishes events and hands out subscriptions.
type Bus interface {
	// Publish assigns the next sequence number of ev.ChannelID and delivers
	// the event to current subscribers. The stamped event is returned.
	Publish(ctx context.Context, ev Event) (Event, error)
	// Subscribe starts receiving events of one channel. The subscription
	// ends when ctx is done or Close is called.
	Subscribe(ctx context.Context, channelID uint64) (*Subscription, error)
}
