package api

// IDs travel as decimal strings and timestamps as unix milliseconds.

//
// Matching
//

type DiscoverRequest struct {
	UserID string `json:"user_id"`
	Limit  int32  `json:"limit,omitempty"`
}

type Candidate struct {
	UserID    string   `json:"user_id"`
	Username  string   `json:"username"`
	Gender    string   `json:"gender"`
	Age       int32    `json:"age"`
	Score     int32    `json:"score"`
	Interests []string `json:"interests,omitempty"`
}

type DiscoverResponse struct {
	Candidates []Candidate `json:"candidates"`
	Requested  int32       `json:"requested"`
	Returned   int32       `json:"returned"`
	// QuotaRemaining is -1 when no daily quota applies.
	QuotaRemaining int32 `json:"quota_remaining"`
}

type Match struct {
	ID          string `json:"id"`
	UserAID     string `json:"user_a_id"`
	UserBID     string `json:"user_b_id"`
	Score       int32  `json:"score"`
	Status      string `json:"status"`
	CreatedAtMs int64  `json:"created_at_ms"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

type CreateMatchRequest struct {
	ActorUserID     string `json:"actor_user_id"`
	RecipientUserID string `json:"recipient_user_id"`
}

type CreateMatchResponse struct {
	Match   Match `json:"match"`
	Created bool  `json:"created"`
}

type UpdateMatchStatusRequest struct {
	MatchID     string `json:"match_id"`
	ActorUserID string `json:"actor_user_id"`
	Status      string `json:"status"`
}

type UpdateMatchStatusResponse struct {
	Match Match `json:"match"`
}

type GetMatchRequest struct {
	MatchID     string `json:"match_id"`
	ActorUserID string `json:"actor_user_id"`
}

type GetMatchResponse struct {
	Match Match `json:"match"`
}

type ListMatchesRequest struct {
	UserID          string  `json:"user_id"`
	Status          string  `json:"status,omitempty"`
	PaginationToken *string `json:"pagination_token,omitempty"`
	Limit           int32   `json:"limit,omitempty"`
}

type ListMatchesResponse struct {
	Matches             []Match `json:"matches"`
	NextPaginationToken *string `json:"next_pagination_token,omitempty"`
}

//
// Chat
//

type Channel struct {
	ID                 string `json:"id"`
	MatchID            string `json:"match_id"`
	ParticipantAID     string `json:"participant_a_id"`
	ParticipantBID     string `json:"participant_b_id"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
	LastMessageAtMs    int64  `json:"last_message_at_ms,omitempty"`
	OnlineA            bool   `json:"online_a"`
	OnlineB            bool   `json:"online_b"`
	CreatedAtMs        int64  `json:"created_at_ms"`
}

type Message struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channel_id"`
	SenderID    string `json:"sender_id"`
	ClientID    string `json:"client_id,omitempty"`
	Content     string `json:"content"`
	Type        string `json:"type"`
	FileURL     string `json:"file_url,omitempty"`
	CreatedAtMs int64  `json:"created_at_ms"`
	ReadAtMs    int64  `json:"read_at_ms,omitempty"`
}

type ListChannelsRequest struct {
	UserID string `json:"user_id"`
	Limit  int32  `json:"limit,omitempty"`
}

type ListChannelsResponse struct {
	Channels []Channel `json:"channels"`
}

type SendMessageRequest struct {
	ChannelID string `json:"channel_id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	FileURL   string `json:"file_url,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
}

type SendMessageResponse struct {
	Message Message `json:"message"`
}

type ListMessagesRequest struct {
	ChannelID       string  `json:"channel_id"`
	UserID          string  `json:"user_id"`
	PaginationToken *string `json:"pagination_token,omitempty"`
	Limit           int32   `json:"limit,omitempty"`
}

type ListMessagesResponse struct {
	Messages            []Message `json:"messages"`
	NextPaginationToken *string   `json:"next_pagination_token,omitempty"`
}

type MarkReadRequest struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	// UpToMessageID limits the update; empty marks everything.
	UpToMessageID string `json:"up_to_message_id,omitempty"`
}

type MarkReadResponse struct {
	Updated []Message `json:"updated"`
}

// PresenceRequest is used by OpenChannel, CloseChannel and Heartbeat.
type PresenceRequest struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

type PresenceResponse struct {
	State string `json:"state"`
}

type ParticipantPresence struct {
	UserID string `json:"user_id"`
	State  string `json:"state"`
}

type GetPresenceResponse struct {
	Participants []ParticipantPresence `json:"participants"`
}

type UploadAttachmentRequest struct {
	ChannelID   string `json:"channel_id"`
	UserID      string `json:"user_id"`
	Kind        string `json:"kind"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

type UploadAttachmentResponse struct {
	URL string `json:"url"`
}

type SubscribeRequest struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

type ChannelEvent struct {
	Type      string  `json:"type"`
	ChannelID string  `json:"channel_id"`
	Seq       uint64  `json:"seq"`
	Message   Message `json:"message"`
}
