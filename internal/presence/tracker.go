// Package presence tracks which participants have a channel open.
//
// Each open channel view keeps a heartbeat key alive in Redis:
//
//	online  - last heartbeat younger than StaleAfter
//	stale   - heartbeat missed, key not yet expired
//	offline - closed, or key expired after OfflineAfter
//
// The online_a/online_b flags on the channel row mirror this for readers
// that only see the database; Sweep clears flags whose key has expired.
package presence

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/repository"
)

type State string

const (
	StateOnline  State = "online"
	StateStale   State = "stale"
	StateOffline State = "offline"
)

const sweepPage = 200

// Flags persists the per-slot online flag of a channel.
type Flags interface {
	SetOnline(ctx context.Context, userID, channelID uint64, online bool) error
}

type Config struct {
	StaleAfter   time.Duration
	OfflineAfter time.Duration
}

type Participant struct {
	UserID uint64
	State  State
}

// Snapshot is the presence of both participants of a channel.
type Snapshot struct {
	ChannelID uint64
	A         Participant
	B         Participant
}

type Tracker struct {
	cache    *cache.RedisCache
	channels *repository.ChannelRepository
	flags    Flags
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

func NewTracker(
	c *cache.RedisCache,
	channels *repository.ChannelRepository,
	flags Flags,
	cfg Config,
	logger *slog.Logger,
) *Tracker {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Second
	}
	if cfg.OfflineAfter <= cfg.StaleAfter {
		cfg.OfflineAfter = 3 * cfg.StaleAfter
	}
	return &Tracker{
		cache:    c,
		channels: channels,
		flags:    flags,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock overrides the time source. Used in tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Open marks userID as viewing the channel. Non-participants are ignored.
func (t *Tracker) Open(ctx context.Context, userID, channelID uint64) (State, error) {
	ok, err := t.participant(ctx, userID, channelID)
	if err != nil || !ok {
		return StateOffline, err
	}
	if err := t.beat(ctx, userID, channelID); err != nil {
		return StateOffline, err
	}
	if err := t.flags.SetOnline(ctx, userID, channelID, true); err != nil {
		return StateOffline, err
	}
	return StateOnline, nil
}

// Close marks userID as having left the channel view.
func (t *Tracker) Close(ctx context.Context, userID, channelID uint64) error {
	ok, err := t.participant(ctx, userID, channelID)
	if err != nil || !ok {
		return err
	}
	if err := t.cache.Del(ctx, t.cache.KeyForPresence(channelID, userID)); err != nil {
		return svcErr.Transient("clear presence", err)
	}
	return t.flags.SetOnline(ctx, userID, channelID, false)
}

// Heartbeat keeps an open view alive. A heartbeat after the key expired
// reopens the view.
func (t *Tracker) Heartbeat(ctx context.Context, userID, channelID uint64) (State, error) {
	key := t.cache.KeyForPresence(channelID, userID)
	n, err := t.cache.Client.Exists(ctx, key).Result()
	if err != nil {
		return StateOffline, svcErr.Transient("read presence", err)
	}
	if n == 0 {
		return t.Open(ctx, userID, channelID)
	}
	if err := t.beat(ctx, userID, channelID); err != nil {
		return StateOffline, err
	}
	return StateOnline, nil
}

// State derives the presence of one participant from its heartbeat age.
func (t *Tracker) State(ctx context.Context, userID, channelID uint64) (State, error) {
	raw, err := t.cache.Client.Get(ctx, t.cache.KeyForPresence(channelID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return StateOffline, nil
	}
	if err != nil {
		return StateOffline, svcErr.Transient("read presence", err)
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return StateOffline, nil
	}
	if t.now().Sub(time.UnixMilli(ms)) < t.cfg.StaleAfter {
		return StateOnline, nil
	}
	return StateStale, nil
}

// Snapshot returns the presence of both participants.
func (t *Tracker) Snapshot(ctx context.Context, channelID uint64) (Snapshot, error) {
	channel, err := t.load(ctx, channelID)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		ChannelID: channel.ID,
		A:         Participant{UserID: channel.ParticipantAID},
		B:         Participant{UserID: channel.ParticipantBID},
	}
	if snap.A.State, err = t.State(ctx, snap.A.UserID, channel.ID); err != nil {
		return Snapshot{}, err
	}
	if snap.B.State, err = t.State(ctx, snap.B.UserID, channel.ID); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Sweep clears channel online flags whose heartbeat key has expired and
// returns how many were cleared.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	var cleared int
	var after uint64
	for {
		page, err := t.channels.ListWithOnlineFlags(ctx, after, sweepPage)
		if err != nil {
			return cleared, svcErr.Transient("list online channels", err)
		}
		for _, c := range page {
			for _, p := range []struct {
				userID uint64
				online bool
			}{{c.ParticipantAID, c.OnlineA}, {c.ParticipantBID, c.OnlineB}} {
				if !p.online {
					continue
				}
				state, err := t.State(ctx, p.userID, c.ID)
				if err != nil {
					return cleared, err
				}
				if state != StateOffline {
					continue
				}
				if err := t.flags.SetOnline(ctx, p.userID, c.ID, false); err != nil {
					return cleared, err
				}
				cleared++
			}
			after = c.ID
		}
		if len(page) < sweepPage {
			break
		}
	}
	if cleared > 0 {
		t.logger.Info("presence sweep cleared stale flags", "count", cleared)
	}
	return cleared, nil
}

// Run sweeps every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.Sweep(ctx); err != nil {
				t.logger.Error("presence sweep failed", "err", err)
			}
		}
	}
}

func (t *Tracker) beat(ctx context.Context, userID, channelID uint64) error {
	key := t.cache.KeyForPresence(channelID, userID)
	now := strconv.FormatInt(t.now().UnixMilli(), 10)
	if err := t.cache.Set(ctx, key, now, t.cfg.OfflineAfter); err != nil {
		return svcErr.Transient("write presence", err)
	}
	return nil
}

func (t *Tracker) participant(ctx context.Context, userID, channelID uint64) (bool, error) {
	channel, err := t.load(ctx, channelID)
	if err != nil {
		return false, err
	}
	return channel.HasParticipant(userID), nil
}

func (t *Tracker) load(ctx context.Context, channelID uint64) (db.Channel, error) {
	channel, err := t.channels.Get(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return db.Channel{}, svcErr.NotFound("channel")
		}
		return db.Channel{}, svcErr.Transient("load channel", err)
	}
	return channel, nil
}
