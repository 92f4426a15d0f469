package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// MessageRepository provides data access for the append-only messages table.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

// CreateIfAbsent appends a message.
//
// Behavior:
//   - Without a client id the row is always inserted.
//   - With a client id, a retried send (same channel, sender and client id)
//     returns the originally stored message with created=false.
func (r *MessageRepository) CreateIfAbsent(ctx context.Context, msg db.Message) (db.Message, bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "channel_id"}, {Name: "sender_id"}, {Name: "client_id"},
			},
			DoNothing: true,
		}).
		Create(&msg)
	if res.Error != nil {
		return db.Message{}, false, res.Error
	}
	if res.RowsAffected == 1 && msg.ID != 0 {
		return msg, true, nil
	}
	if msg.ClientID == nil {
		return db.Message{}, false, gorm.ErrRecordNotFound
	}

	var existing db.Message
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND sender_id = ? AND client_id = ?", msg.ChannelID, msg.SenderID, *msg.ClientID).
		First(&existing).Error
	if err != nil {
		return db.Message{}, false, err
	}
	return existing, false, nil
}

// List returns a channel's messages in ascending (created_at, id) order.
//
// Behavior:
//   - The pagination token marks the last message already seen; the page
//     continues strictly after it.
//   - Returns a next token when more messages exist.
//
// Example:
//
//	repo.List(ctx, 7, nil, 50) // first 50 messages of channel 7
func (r *MessageRepository) List(
	ctx context.Context,
	channelID uint64,
	paginationToken *string,
	limit int,
) ([]db.Message, *string, error) {
	var messages []db.Message

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at ASC, id ASC").
		Limit(limit + 1)

	if !cursor.IsZero() {
		ts := cursor.At()
		query = query.Where(
			"(created_at > ? OR (created_at = ? AND id > ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&messages).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(messages) > limit {
		messages = messages[:limit]
		last := messages[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:     last.ID,
			AtUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
	}

	return messages, nextToken, nil
}

// MarkRead stamps read_at on unread messages the reader received.
//
// Behavior:
//   - Only messages sent by someone other than readerID are affected.
//   - upToID > 0 limits the update to messages with id <= upToID.
//   - Returns the messages that this call marked, with ReadAt populated.
func (r *MessageRepository) MarkRead(
	ctx context.Context,
	channelID, readerID, upToID uint64,
	at time.Time,
) ([]db.Message, error) {
	var unread []db.Message

	query := r.db.WithContext(ctx).
		Where("channel_id = ? AND sender_id <> ? AND read_at IS NULL", channelID, readerID).
		Order("created_at ASC, id ASC")
	if upToID > 0 {
		query = query.Where("id <= ?", upToID)
	}
	if err := query.Find(&unread).Error; err != nil {
		return nil, err
	}
	if len(unread) == 0 {
		return nil, nil
	}

	ids := make([]uint64, 0, len(unread))
	for _, m := range unread {
		ids = append(ids, m.ID)
	}

	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("id IN ? AND read_at IS NULL", ids).
		Update("read_at", at).Error
	if err != nil {
		return nil, err
	}

	for i := range unread {
		readAt := at
		unread[i].ReadAt = &readAt
	}
	return unread, nil
}
