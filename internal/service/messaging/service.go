package messaging

import (
	"bytes"
	"context"
	"errors"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/muzz-matching/internal/api"
	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/chat"
	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/media"
	"github.com/oggyb/muzz-matching/internal/presence"
	"github.com/oggyb/muzz-matching/internal/realtime"
)

// Service implements the Chat gRPC API: history, sending, read receipts,
// presence and the realtime event stream.
type Service struct {
	appCtx *app.AppContext
}

var _ api.ChatServiceServer = (*Service)(nil)

// NewChatService creates a new Chat service with dependencies from AppContext.
func NewChatService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// ListChannels returns the user's channels, most recent activity first.
func (s *Service) ListChannels(ctx context.Context, req *api.ListChannelsRequest) (*api.ListChannelsResponse, error) {
	s.appCtx.Logger.Debug("ListChannels called", "user", req.UserID)

	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}

	channels, err := s.appCtx.Chat.ListChannels(ctx, userID, int(req.Limit))
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &api.ListChannelsResponse{Channels: make([]api.Channel, 0, len(channels))}
	for _, c := range channels {
		resp.Channels = append(resp.Channels, toChannel(c))
	}
	return resp, nil
}

// SendMessage persists a message and fans it out to subscribers.
//
// Example:
//
//	svc.SendMessage(ctx, &api.SendMessageRequest{ChannelID: "7", SenderID: "1", Content: "hi", Type: "text"})
func (s *Service) SendMessage(ctx context.Context, req *api.SendMessageRequest) (*api.SendMessageResponse, error) {
	s.appCtx.Logger.Debug("SendMessage called", "channel", req.ChannelID, "sender", req.SenderID, "type", req.Type, "client_id", req.ClientID)

	channelID, err := parseID("channel_id", req.ChannelID)
	if err != nil {
		return nil, err
	}
	senderID, err := parseID("sender_id", req.SenderID)
	if err != nil {
		return nil, err
	}

	typ := db.MessageType(req.Type)
	if typ == "" {
		typ = db.MessageTypeText
	}

	m, err := s.appCtx.Chat.SendMessage(ctx, chat.SendRequest{
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   req.Content,
		Type:      typ,
		FileURL:   req.FileURL,
		ClientID:  req.ClientID,
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &api.SendMessageResponse{Message: toMessage(m)}, nil
}

// ListMessages returns channel history oldest first with cursor pagination.
func (s *Service) ListMessages(ctx context.Context, req *api.ListMessagesRequest) (*api.ListMessagesResponse, error) {
	s.appCtx.Logger.Debug("ListMessages called", "channel", req.ChannelID, "user", req.UserID, "token", req.PaginationToken)

	channelID, err := parseID("channel_id", req.ChannelID)
	if err != nil {
		return nil, err
	}
	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}

	messages, next, err := s.appCtx.Chat.ListMessages(ctx, channelID, userID, req.PaginationToken, int(req.Limit))
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &api.ListMessagesResponse{Messages: make([]api.Message, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, toMessage(m))
	}
	if next != nil {
		resp.NextPaginationToken = next
	}
	return resp, nil
}

// MarkRead stamps read_at on the peer's messages.
func (s *Service) MarkRead(ctx context.Context, req *api.MarkReadRequest) (*api.MarkReadResponse, error) {
	channelID, err := parseID("channel_id", req.ChannelID)
	if err != nil {
		return nil, err
	}
	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	var upTo uint64
	if req.UpToMessageID != "" {
		if upTo, err = parseID("up_to_message_id", req.UpToMessageID); err != nil {
			return nil, err
		}
	}

	updated, err := s.appCtx.Chat.MarkRead(ctx, channelID, userID, upTo)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &api.MarkReadResponse{Updated: make([]api.Message, 0, len(updated))}
	for _, m := range updated {
		resp.Updated = append(resp.Updated, toMessage(m))
	}
	return resp, nil
}

// OpenChannel marks the user as viewing the channel.
func (s *Service) OpenChannel(ctx context.Context, req *api.PresenceRequest) (*api.PresenceResponse, error) {
	channelID, userID, err := s.participant(ctx, req)
	if err != nil {
		return nil, err
	}
	state, err := s.appCtx.Presence.Open(ctx, userID, channelID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &api.PresenceResponse{State: string(state)}, nil
}

// CloseChannel marks the user as no longer viewing the channel.
func (s *Service) CloseChannel(ctx context.Context, req *api.PresenceRequest) (*api.PresenceResponse, error) {
	channelID, userID, err := s.participant(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Presence.Close(ctx, userID, channelID); err != nil {
		return nil, svcErr.Map(err)
	}
	return &api.PresenceResponse{State: string(presence.StateOffline)}, nil
}

// Heartbeat keeps an open channel view alive.
func (s *Service) Heartbeat(ctx context.Context, req *api.PresenceRequest) (*api.PresenceResponse, error) {
	channelID, userID, err := s.participant(ctx, req)
	if err != nil {
		return nil, err
	}
	state, err := s.appCtx.Presence.Heartbeat(ctx, userID, channelID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &api.PresenceResponse{State: string(state)}, nil
}

// GetPresence reports both participants' presence. Only participants may ask.
func (s *Service) GetPresence(ctx context.Context, req *api.PresenceRequest) (*api.GetPresenceResponse, error) {
	channelID, _, err := s.participant(ctx, req)
	if err != nil {
		return nil, err
	}
	snap, err := s.appCtx.Presence.Snapshot(ctx, channelID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &api.GetPresenceResponse{Participants: []api.ParticipantPresence{
		{UserID: formatID(snap.A.UserID), State: string(snap.A.State)},
		{UserID: formatID(snap.B.UserID), State: string(snap.B.State)},
	}}, nil
}

// UploadAttachment stores a file and returns the URL to send in an
// image or file message.
func (s *Service) UploadAttachment(ctx context.Context, req *api.UploadAttachmentRequest) (*api.UploadAttachmentResponse, error) {
	s.appCtx.Logger.Debug("UploadAttachment called", "channel", req.ChannelID, "user", req.UserID, "kind", req.Kind, "size", len(req.Data))

	channelID, err := parseID("channel_id", req.ChannelID)
	if err != nil {
		return nil, err
	}
	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}

	url, err := s.appCtx.Chat.UploadAttachment(ctx, userID, media.Upload{
		ChannelID:   channelID,
		Kind:        media.Kind(req.Kind),
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Size:        int64(len(req.Data)),
		Body:        bytes.NewReader(req.Data),
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &api.UploadAttachmentResponse{URL: url}, nil
}

// Subscribe streams new_message and message_updated events of a channel
// until the client goes away. A slow client is dropped with
// ResourceExhausted and must re-fetch history before subscribing again.
func (s *Service) Subscribe(req *api.SubscribeRequest, stream grpc.ServerStreamingServer[api.ChannelEvent]) error {
	ctx := stream.Context()
	s.appCtx.Logger.Debug("Subscribe called", "channel", req.ChannelID, "user", req.UserID)

	channelID, err := parseID("channel_id", req.ChannelID)
	if err != nil {
		return err
	}
	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		return err
	}

	sub, err := s.appCtx.Chat.Subscribe(ctx, channelID, userID)
	if err != nil {
		return svcErr.Map(err)
	}
	defer sub.Close()

	for ev := range sub.Events() {
		if err := stream.Send(toEvent(ev)); err != nil {
			return err
		}
	}

	if errors.Is(sub.Err(), realtime.ErrSlowConsumer) {
		s.appCtx.Logger.Warn("subscriber dropped", "channel", channelID, "user", userID)
		return status.Error(codes.ResourceExhausted, sub.Err().Error())
	}
	return nil
}

// participant parses a presence request and checks channel membership.
func (s *Service) participant(ctx context.Context, req *api.PresenceRequest) (uint64, uint64, error) {
	channelID, err := parseID("channel_id", req.ChannelID)
	if err != nil {
		return 0, 0, err
	}
	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		return 0, 0, err
	}
	if _, err := s.appCtx.Chat.Authorize(ctx, channelID, userID); err != nil {
		return 0, 0, svcErr.Map(err)
	}
	return channelID, userID, nil
}

func parseID(field, v string) (uint64, error) {
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil || id == 0 {
		return 0, svcErr.InvalidArgument(field + " must be a valid uint64")
	}
	return id, nil
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }
