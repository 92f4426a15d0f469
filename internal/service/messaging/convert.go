package messaging

import (
	"github.com/oggyb/muzz-matching/internal/api"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/realtime"
)

func toChannel(c db.Channel) api.Channel {
	out := api.Channel{
		ID:                 formatID(c.ID),
		MatchID:            formatID(c.MatchID),
		ParticipantAID:     formatID(c.ParticipantAID),
		ParticipantBID:     formatID(c.ParticipantBID),
		LastMessagePreview: c.LastMessagePreview,
		OnlineA:            c.OnlineA,
		OnlineB:            c.OnlineB,
		CreatedAtMs:        c.CreatedAt.UnixMilli(),
	}
	if c.LastMessageAt != nil {
		out.LastMessageAtMs = c.LastMessageAt.UnixMilli()
	}
	return out
}

func toMessage(m db.Message) api.Message {
	return fromWire(realtime.FromModel(m))
}

func fromWire(m realtime.Message) api.Message {
	out := api.Message{
		ID:          formatID(m.ID),
		ChannelID:   formatID(m.ChannelID),
		SenderID:    formatID(m.SenderID),
		ClientID:    m.ClientID,
		Content:     m.Content,
		Type:        m.Type,
		FileURL:     m.FileURL,
		CreatedAtMs: m.CreatedAt.UnixMilli(),
	}
	if m.ReadAt != nil {
		out.ReadAtMs = m.ReadAt.UnixMilli()
	}
	return out
}

func toEvent(ev realtime.Event) *api.ChannelEvent {
	return &api.ChannelEvent{
		Type:      string(ev.Type),
		ChannelID: formatID(ev.ChannelID),
		Seq:       ev.Seq,
		Message:   fromWire(ev.Message),
	}
}
