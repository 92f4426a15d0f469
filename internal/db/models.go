package db

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// User is the read-only profile view owned by the profile subsystem.
// The matching core only reads it for discovery filters and notifications.
type User struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	Username      string `gorm:"uniqueIndex;size:64;not null"`
	Email         string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash  string `gorm:"size:255;not null"`
	Active        bool   `gorm:"default:true"`
	LastLoginAt   time.Time
	Gender        string `gorm:"size:16;not null;index:idx_users_discovery,priority:1"`
	Age           int    `gorm:"not null;index:idx_users_discovery,priority:2"`
	Verified      bool   `gorm:"not null;default:false;index:idx_users_discovery,priority:3"`
	Premium       bool   `gorm:"not null;default:false"`
	PushToken     string `gorm:"size:255"`
	Interests     datatypes.JSONSlice[string]
	PartnerValues datatypes.JSONSlice[string]
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

type MatchStatus string

const (
	MatchStatusPending  MatchStatus = "pending"
	MatchStatusMatched  MatchStatus = "matched"
	MatchStatusRejected MatchStatus = "rejected"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusPending, MatchStatusMatched, MatchStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves this status.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusMatched || s == MatchStatusRejected
}

// Match records a directed like (UserAID liked UserBID) progressing toward
// mutual acceptance.
//
// Unique index:
//   - ux_matches_pair(pair_key)
//     One row per unordered pair regardless of status. PairKey is
//     "min:max" of the two user ids, so concurrent inserts for {A,B} and
//     {B,A} collide at the storage layer.
//
// Indexes:
//   - idx_matches_user_a / idx_matches_user_b for "matches of user X" scans.
type Match struct {
	ID                 uint64      `gorm:"primaryKey;autoIncrement"`
	PairKey            string      `gorm:"size:64;not null;uniqueIndex:ux_matches_pair"`
	UserAID            uint64      `gorm:"not null;index:idx_matches_user_a"`
	UserBID            uint64      `gorm:"not null;index:idx_matches_user_b"`
	CompatibilityScore int         `gorm:"not null"`
	Status             MatchStatus `gorm:"size:16;not null;default:pending"`
	CreatedAt          time.Time   `gorm:"autoCreateTime"`
	UpdatedAt          time.Time   `gorm:"autoUpdateTime"`
}

// PairKey normalizes an unordered pair of user ids.
func PairKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// HasUser reports whether userID is one side of the match.
func (m Match) HasUser(userID uint64) bool {
	return m.UserAID == userID || m.UserBID == userID
}

// Channel is the one-to-one conversation container of a matched Match.
//
// Unique index:
//   - ux_channels_match(match_id): at most one channel per match.
//
// LastMessagePreview/LastMessageAt are denormalized from the newest message
// and only ever move forward in time.
type Channel struct {
	ID                 uint64     `gorm:"primaryKey;autoIncrement"`
	MatchID            uint64     `gorm:"not null;uniqueIndex:ux_channels_match"`
	ParticipantAID     uint64     `gorm:"not null;index:idx_channels_participant_a"`
	ParticipantBID     uint64     `gorm:"not null;index:idx_channels_participant_b"`
	LastMessagePreview string     `gorm:"size:255"`
	LastMessageAt      *time.Time `gorm:"index"`
	OnlineA            bool       `gorm:"not null;default:false"`
	OnlineB            bool       `gorm:"not null;default:false"`
	CreatedAt          time.Time  `gorm:"autoCreateTime"`
}

func (c Channel) HasParticipant(userID uint64) bool {
	return c.ParticipantAID == userID || c.ParticipantBID == userID
}

// Peer returns the other participant, or 0 if userID is not a participant.
func (c Channel) Peer(userID uint64) uint64 {
	switch userID {
	case c.ParticipantAID:
		return c.ParticipantBID
	case c.ParticipantBID:
		return c.ParticipantAID
	}
	return 0
}

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// Message is append-only; ReadAt is the only mutable column.
//
// Indexes:
//   - idx_messages_channel_created(channel_id, created_at, id)
//     Ascending history scans with cursor pagination.
//   - ux_messages_client(channel_id, sender_id, client_id)
//     Retried sends carrying the same client id resolve to one row.
//     NULL client ids never collide.
type Message struct {
	ID        uint64      `gorm:"primaryKey;autoIncrement;index:idx_messages_channel_created,priority:3"`
	ChannelID uint64      `gorm:"not null;index:idx_messages_channel_created,priority:1;uniqueIndex:ux_messages_client,priority:1"`
	SenderID  uint64      `gorm:"not null;uniqueIndex:ux_messages_client,priority:2"`
	ClientID  *string     `gorm:"size:64;uniqueIndex:ux_messages_client,priority:3"`
	Content   string      `gorm:"type:text;not null"`
	Type      MessageType `gorm:"size:16;not null;default:text"`
	FileURL   *string     `gorm:"size:1024"`
	CreatedAt time.Time   `gorm:"not null;index:idx_messages_channel_created,priority:2"`
	ReadAt    *time.Time
}
