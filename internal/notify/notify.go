// Package notify hands user-facing notifications to the push pipeline.
//
// Delivery to devices is owned by a separate worker that drains the Redis
// outbox; this package only enqueues.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/muzz-matching/internal/cache"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

type Kind string

const (
	KindNewLike    Kind = "new_like"
	KindNewMatch   Kind = "new_match"
	KindNewMessage Kind = "new_message"
)

// Event is one notification for one recipient.
type Event struct {
	Kind        Kind      `json:"kind"`
	RecipientID uint64    `json:"recipient_id"`
	ActorID     uint64    `json:"actor_id"`
	MatchID     uint64    `json:"match_id,omitempty"`
	ChannelID   uint64    `json:"channel_id,omitempty"`
	PushToken   string    `json:"push_token,omitempty"`
	At          time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// RedisQueue appends JSON encoded events to a Redis list.
type RedisQueue struct {
	cache *cache.RedisCache
	key   string
}

func NewRedisQueue(c *cache.RedisCache, key string) *RedisQueue {
	if key == "" {
		key = "push:outbox"
	}
	return &RedisQueue{cache: c, key: key}
}

func (q *RedisQueue) Notify(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := q.cache.Client.LPush(ctx, q.key, body).Err(); err != nil {
		return svcErr.Transient("enqueue notification", err)
	}
	return nil
}

// Tokens resolves a recipient's device token.
type Tokens interface {
	PushToken(ctx context.Context, userID uint64) (string, error)
}

// TokenResolver stamps the recipient's push token on events that carry
// none. Wrap it in Async so the lookup stays off the request path.
type TokenResolver struct {
	inner  Notifier
	tokens Tokens
	logger *slog.Logger
}

func NewTokenResolver(inner Notifier, tokens Tokens, logger *slog.Logger) *TokenResolver {
	return &TokenResolver{inner: inner, tokens: tokens, logger: logger}
}

// Notify enqueues ev even when the lookup fails; the push worker then
// skips it or resolves the token itself.
func (r *TokenResolver) Notify(ctx context.Context, ev Event) error {
	if ev.PushToken == "" {
		token, err := r.tokens.PushToken(ctx, ev.RecipientID)
		if err != nil {
			r.logger.Warn("push token lookup failed", "user", ev.RecipientID, "err", err)
		}
		ev.PushToken = token
	}
	return r.inner.Notify(ctx, ev)
}

// Log writes notifications to the logger instead of a queue.
// Selected with NOTIFY_DRIVER=log.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, ev Event) error {
	l.logger.Info("notification",
		"kind", ev.Kind,
		"recipient", ev.RecipientID,
		"actor", ev.ActorID,
		"match", ev.MatchID,
		"channel", ev.ChannelID,
		"has_token", ev.PushToken != "",
	)
	return nil
}

// Async fires notifications in the background so a slow or broken push
// pipeline never fails or delays the request that produced them.
type Async struct {
	inner   Notifier
	timeout time.Duration
	logger  *slog.Logger
}

func NewAsync(inner Notifier, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Async{inner: inner, timeout: timeout, logger: logger}
}

// Notify always returns nil; failures are logged.
func (a *Async) Notify(_ context.Context, ev Event) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.inner.Notify(ctx, ev); err != nil {
			a.logger.Warn("notification dropped", "kind", ev.Kind, "recipient", ev.RecipientID, "err", err)
		}
	}()
	return nil
}
