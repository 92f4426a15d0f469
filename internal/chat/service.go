// Package chat owns conversation channels and their messages.
//
// Messages are append-only; read_at is the only field that changes after
// insert. Within one process, persisting a message and publishing its
// event happen under a per-channel lock so subscribers see events in
// creation order.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/media"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/realtime"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

const (
	maxContentLength  = 4000
	maxClientIDLength = 64
	previewLength     = 120

	defaultChannelLimit = 50
	defaultPageLimit    = 50
	maxPageLimit        = 200
)

// SendRequest is one outgoing message.
type SendRequest struct {
	ChannelID uint64
	SenderID  uint64
	Content   string
	Type      db.MessageType
	FileURL   string
	// ClientID makes retried sends idempotent. Optional.
	ClientID string
}

type Service struct {
	channels *repository.ChannelRepository
	messages *repository.MessageRepository
	bus      realtime.Bus
	uploader media.Uploader
	notifier notify.Notifier
	locks    *keyedMutex
	now      func() time.Time
	logger   *slog.Logger
}

// NewService wires the chat service. uploader and notifier may be nil.
func NewService(
	channels *repository.ChannelRepository,
	messages *repository.MessageRepository,
	bus realtime.Bus,
	uploader media.Uploader,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		channels: channels,
		messages: messages,
		bus:      bus,
		uploader: uploader,
		notifier: notifier,
		locks:    newKeyedMutex(),
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock overrides the time source. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// EnsureChannel creates the channel of a matched match unless it exists.
// Repeated and concurrent calls return the same row.
func (s *Service) EnsureChannel(ctx context.Context, matchID, userA, userB uint64) (db.Channel, error) {
	if matchID == 0 || userA == 0 || userB == 0 {
		return db.Channel{}, svcErr.Validation("match and participant ids are required")
	}
	if userA == userB {
		return db.Channel{}, svcErr.Validation("participants must differ")
	}

	channel, created, err := s.channels.CreateIfAbsent(ctx, matchID, userA, userB)
	if err != nil {
		return db.Channel{}, svcErr.Transient("create channel", err)
	}
	if created {
		s.logger.Info("channel created", "channel", channel.ID, "match", matchID)
	}
	return channel, nil
}

func (s *Service) GetChannel(ctx context.Context, channelID uint64) (db.Channel, error) {
	if channelID == 0 {
		return db.Channel{}, svcErr.Validation("channel id is required")
	}
	channel, err := s.channels.Get(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return db.Channel{}, svcErr.NotFound("channel")
		}
		return db.Channel{}, svcErr.Transient("load channel", err)
	}
	return channel, nil
}

// Authorize loads a channel and checks that userID takes part in it.
func (s *Service) Authorize(ctx context.Context, channelID, userID uint64) (db.Channel, error) {
	channel, err := s.GetChannel(ctx, channelID)
	if err != nil {
		return db.Channel{}, err
	}
	if !channel.HasParticipant(userID) {
		return db.Channel{}, svcErr.Forbidden(fmt.Sprintf("user %d is not in channel %d", userID, channelID))
	}
	return channel, nil
}

// ListChannels returns the user's channels, latest message first; channels
// without messages come last.
func (s *Service) ListChannels(ctx context.Context, userID uint64, limit int) ([]db.Channel, error) {
	if userID == 0 {
		return nil, svcErr.Validation("user id is required")
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultChannelLimit
	}
	channels, err := s.channels.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, svcErr.Transient("list channels", err)
	}
	return channels, nil
}

// SendMessage persists a message and publishes it to channel subscribers.
//
// Behavior:
//   - text requires content and no fileUrl; image and file require a fileUrl.
//   - The sender must be a participant.
//   - The channel preview only moves forward: it is updated using the
//     message's own createdAt, so a late retry never regresses it.
//   - A retried send with the same ClientID returns the stored message; a
//     different body under a used ClientID is a conflict.
//   - A failed publish is logged; the message stays stored and subscribers
//     recover it from history.
//
// Example:
//
//	msg, err := svc.SendMessage(ctx, chat.SendRequest{ChannelID: 1, SenderID: 2, Content: "hi", Type: db.MessageTypeText})
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (db.Message, error) {
	if err := validateSend(req); err != nil {
		return db.Message{}, err
	}

	channel, err := s.Authorize(ctx, req.ChannelID, req.SenderID)
	if err != nil {
		return db.Message{}, err
	}

	unlock := s.locks.Lock(channel.ID)
	defer unlock()

	msg := db.Message{
		ChannelID: channel.ID,
		SenderID:  req.SenderID,
		Content:   req.Content,
		Type:      req.Type,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	if req.FileURL != "" {
		msg.FileURL = &req.FileURL
	}
	if req.ClientID != "" {
		msg.ClientID = &req.ClientID
	}

	stored, created, err := s.messages.CreateIfAbsent(ctx, msg)
	if err != nil {
		return db.Message{}, svcErr.Transient("store message", err)
	}
	if !created {
		if !sameBody(stored, msg) {
			return db.Message{}, svcErr.Conflict("client id already used for a different message")
		}
		s.logger.Debug("duplicate send resolved by client id", "channel", channel.ID, "message", stored.ID)
	}

	if _, err := s.channels.AdvancePreview(ctx, channel.ID, Preview(stored), stored.CreatedAt); err != nil {
		s.logger.Error("preview update failed", "channel", channel.ID, "message", stored.ID, "err", err)
	}

	s.publish(ctx, realtime.EventNewMessage, stored)

	if created {
		s.notifyPeer(ctx, channel, stored)
	}
	return stored, nil
}

// ListMessages returns channel history in ascending createdAt order.
func (s *Service) ListMessages(
	ctx context.Context,
	channelID, userID uint64,
	paginationToken *string,
	limit int,
) ([]db.Message, *string, error) {
	if _, err := s.Authorize(ctx, channelID, userID); err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, next, err := s.messages.List(ctx, channelID, paginationToken, limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidToken) {
			return nil, nil, svcErr.Validation(err.Error())
		}
		return nil, nil, svcErr.Transient("list messages", err)
	}
	return messages, next, nil
}

// MarkRead stamps readAt on messages the reader received, up to and
// including upToID (0 = all), and publishes a message_updated event for
// each one.
func (s *Service) MarkRead(ctx context.Context, channelID, readerID, upToID uint64) ([]db.Message, error) {
	channel, err := s.Authorize(ctx, channelID, readerID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(channel.ID)
	defer unlock()

	updated, err := s.messages.MarkRead(ctx, channel.ID, readerID, upToID, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		return nil, svcErr.Transient("mark read", err)
	}
	for _, m := range updated {
		s.publish(ctx, realtime.EventMessageUpdated, m)
	}
	return updated, nil
}

// SetOnline flips the presence flag of userID's slot on the channel.
// A user who is not a participant is a silent no-op.
func (s *Service) SetOnline(ctx context.Context, userID, channelID uint64, online bool) error {
	channel, err := s.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	slot := repository.SlotOf(channel, userID)
	if slot == 0 {
		return nil
	}
	if err := s.channels.SetOnline(ctx, channel.ID, slot, online); err != nil {
		return svcErr.Transient("set online", err)
	}
	return nil
}

// UploadAttachment stores a file for a later image/file message and
// returns its URL.
func (s *Service) UploadAttachment(ctx context.Context, userID uint64, u media.Upload) (string, error) {
	if s.uploader == nil {
		return "", svcErr.Validation("attachments are not enabled")
	}
	if _, err := s.Authorize(ctx, u.ChannelID, userID); err != nil {
		return "", err
	}
	if err := media.Validate(u); err != nil {
		return "", svcErr.Validation(err.Error())
	}

	url, err := s.uploader.Upload(ctx, u)
	if err != nil {
		return "", svcErr.Transient("upload attachment", err)
	}
	s.logger.Debug("attachment uploaded", "channel", u.ChannelID, "user", userID, "kind", u.Kind)
	return url, nil
}

// Subscribe opens a realtime subscription for a participant.
func (s *Service) Subscribe(ctx context.Context, channelID, userID uint64) (*realtime.Subscription, error) {
	if _, err := s.Authorize(ctx, channelID, userID); err != nil {
		return nil, err
	}
	return s.bus.Subscribe(ctx, channelID)
}

// Preview is the denormalized channel preview of a message.
func Preview(m db.Message) string {
	switch m.Type {
	case db.MessageTypeImage:
		return "[image]"
	case db.MessageTypeFile:
		return "[file]"
	}
	text := strings.Join(strings.Fields(m.Content), " ")
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	return string([]rune(text)[:previewLength-1]) + "…"
}

func validateSend(req SendRequest) error {
	if req.ChannelID == 0 || req.SenderID == 0 {
		return svcErr.Validation("channel and sender ids are required")
	}
	if !req.Type.Valid() {
		return svcErr.Validation(fmt.Sprintf("unknown message type %q", req.Type))
	}
	if len(req.ClientID) > maxClientIDLength {
		return svcErr.Validation("client id too long")
	}
	if utf8.RuneCountInString(req.Content) > maxContentLength {
		return svcErr.Validation("message too long")
	}

	switch req.Type {
	case db.MessageTypeText:
		if req.FileURL != "" {
			return svcErr.Validation("text messages cannot carry a file url")
		}
		if strings.TrimSpace(req.Content) == "" {
			return svcErr.Validation("message is empty")
		}
	default:
		if req.FileURL == "" {
			return svcErr.Validation(fmt.Sprintf("%s messages require a file url", req.Type))
		}
	}
	return nil
}

func sameBody(a, b db.Message) bool {
	return a.Type == b.Type && a.Content == b.Content && ptrEqual(a.FileURL, b.FileURL)
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Service) publish(ctx context.Context, typ realtime.EventType, m db.Message) {
	if s.bus == nil {
		return
	}
	_, err := s.bus.Publish(ctx, realtime.Event{
		Type:      typ,
		ChannelID: m.ChannelID,
		Message:   realtime.FromModel(m),
	})
	if err != nil {
		s.logger.Warn("event publish failed", "type", typ, "channel", m.ChannelID, "message", m.ID, "err", err)
	}
}

// notifyPeer pushes a new_message notification unless the peer has the
// channel open.
func (s *Service) notifyPeer(ctx context.Context, channel db.Channel, m db.Message) {
	if s.notifier == nil {
		return
	}
	peer := channel.Peer(m.SenderID)
	peerOnline := channel.OnlineB
	if peer == channel.ParticipantAID {
		peerOnline = channel.OnlineA
	}
	if peerOnline {
		return
	}
	err := s.notifier.Notify(ctx, notify.Event{
		Kind:        notify.KindNewMessage,
		RecipientID: peer,
		ActorID:     m.SenderID,
		ChannelID:   channel.ID,
		At:          m.CreatedAt,
	})
	if err != nil {
		s.logger.Warn("notification failed", "kind", notify.KindNewMessage, "recipient", peer, "err", err)
	}
}
