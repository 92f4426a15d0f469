package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
)

// ChannelRepository provides data access methods for the Channel model.
type ChannelRepository struct {
	db *gorm.DB
}

func NewChannelRepository(database *gorm.DB) *ChannelRepository {
	return &ChannelRepository{db: database}
}

// CreateIfAbsent inserts the channel of a match unless one already exists.
// The unique index on match_id makes repeated calls converge on one row.
func (r *ChannelRepository) CreateIfAbsent(
	ctx context.Context,
	matchID, participantA, participantB uint64,
) (db.Channel, bool, error) {
	channel := db.Channel{
		MatchID:        matchID,
		ParticipantAID: participantA,
		ParticipantBID: participantB,
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "match_id"}},
			DoNothing: true,
		}).
		Create(&channel)
	if res.Error != nil {
		return db.Channel{}, false, res.Error
	}
	if res.RowsAffected == 1 && channel.ID != 0 {
		return channel, true, nil
	}

	existing, err := r.GetByMatch(ctx, matchID)
	if err != nil {
		return db.Channel{}, false, err
	}
	return existing, false, nil
}

func (r *ChannelRepository) Get(ctx context.Context, channelID uint64) (db.Channel, error) {
	var c db.Channel
	err := r.db.WithContext(ctx).First(&c, "id = ?", channelID).Error
	return c, err
}

func (r *ChannelRepository) GetByMatch(ctx context.Context, matchID uint64) (db.Channel, error) {
	var c db.Channel
	err := r.db.WithContext(ctx).First(&c, "match_id = ?", matchID).Error
	return c, err
}

// ListForUser returns the user's channels, most recent message first.
// Channels without any message sort last, newest channel first among them.
func (r *ChannelRepository) ListForUser(ctx context.Context, userID uint64, limit int) ([]db.Channel, error) {
	var channels []db.Channel
	query := r.db.WithContext(ctx).
		Where("participant_a_id = ? OR participant_b_id = ?", userID, userID).
		Order("CASE WHEN last_message_at IS NULL THEN 1 ELSE 0 END").
		Order("last_message_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

// AdvancePreview writes the denormalized preview of a message.
//
// Behavior:
//   - Only applied if the stored last_message_at is NULL or not newer than
//     at, so a late (retried) message never regresses the preview.
//   - Returns true if the row was updated.
func (r *ChannelRepository) AdvancePreview(
	ctx context.Context,
	channelID uint64,
	preview string,
	at time.Time,
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Channel{}).
		Where("id = ?", channelID).
		Where("last_message_at IS NULL OR last_message_at <= ?", at).
		Updates(map[string]any{
			"last_message_preview": preview,
			"last_message_at":      at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Slot identifies a participant column pair on a channel.
type Slot int

const (
	SlotA Slot = iota + 1
	SlotB
)

// SlotOf returns the participant slot of userID, or 0 if not a participant.
func SlotOf(c db.Channel, userID uint64) Slot {
	switch userID {
	case c.ParticipantAID:
		return SlotA
	case c.ParticipantBID:
		return SlotB
	}
	return 0
}

// SetOnline flips the presence flag of one participant slot.
func (r *ChannelRepository) SetOnline(ctx context.Context, channelID uint64, slot Slot, online bool) error {
	column := "online_a"
	if slot == SlotB {
		column = "online_b"
	}
	return r.db.WithContext(ctx).
		Model(&db.Channel{}).
		Where("id = ?", channelID).
		Update(column, online).Error
}

// ListWithOnlineFlags pages through channels that have at least one
// participant flagged online, ordered by id.
func (r *ChannelRepository) ListWithOnlineFlags(ctx context.Context, afterID uint64, limit int) ([]db.Channel, error) {
	var channels []db.Channel
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Where("online_a = ? OR online_b = ?", true, true).
		Order("id ASC").
		Limit(limit).
		Find(&channels).Error
	return channels, err
}
