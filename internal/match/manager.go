// Package match owns the Match state machine.
//
//	pending --accept--> matched
//	pending --reject--> rejected
//
// matched and rejected are terminal. The unique pair key on the matches
// table is the only guard against duplicate rows; no application lock is
// taken anywhere in this package.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/scoring"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

const (
	defaultMinScore  = 65
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// ChannelEnsurer creates the conversation channel of a matched pair.
// Implementations must be idempotent per match id.
type ChannelEnsurer interface {
	EnsureChannel(ctx context.Context, matchID, userA, userB uint64) (db.Channel, error)
}

// Users is the profile lookup the manager needs.
type Users interface {
	Get(ctx context.Context, userID uint64) (db.User, error)
}

type Config struct {
	MinScore     int
	ScoreTimeout time.Duration
}

type Manager struct {
	matches  *repository.MatchRepository
	users    Users
	scorer   scoring.Scorer
	channels ChannelEnsurer
	notifier notify.Notifier
	cfg      Config
	logger   *slog.Logger
}

func NewManager(
	matches *repository.MatchRepository,
	users Users,
	scorer scoring.Scorer,
	channels ChannelEnsurer,
	notifier notify.Notifier,
	cfg Config,
	logger *slog.Logger,
) *Manager {
	if cfg.MinScore <= 0 {
		cfg.MinScore = defaultMinScore
	}
	if cfg.ScoreTimeout <= 0 {
		cfg.ScoreTimeout = 2 * time.Second
	}
	return &Manager{
		matches:  matches,
		users:    users,
		scorer:   scorer,
		channels: channels,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// CreateMatch records that actorID liked recipientID.
//
// Behavior:
//   - The score is always recomputed through the scorer; a score below
//     MinScore fails with ErrInvalidScore.
//   - If the pair already has a match (any status, any direction) it is
//     returned with created=false and no error.
//   - Concurrent calls for the same pair converge on one row.
//   - The recipient is notified ("new_like"); notification failures are
//     logged and never fail the call. Wrap the notifier in notify.Async to
//     keep the push pipeline off the request path.
//
// Example:
//
//	m, created, err := mgr.CreateMatch(ctx, 1, 2)
func (m *Manager) CreateMatch(ctx context.Context, actorID, recipientID uint64) (db.Match, bool, error) {
	if actorID == 0 || recipientID == 0 {
		return db.Match{}, false, svcErr.Validation("both user ids are required")
	}
	if actorID == recipientID {
		return db.Match{}, false, svcErr.Validation("cannot match with yourself")
	}

	existing, err := m.matches.GetByPair(ctx, actorID, recipientID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return db.Match{}, false, svcErr.Transient("load match", err)
	}

	for _, id := range []uint64{actorID, recipientID} {
		if _, err := m.users.Get(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return db.Match{}, false, svcErr.NotFound(fmt.Sprintf("user %d", id))
			}
			return db.Match{}, false, svcErr.Transient("load user", err)
		}
	}

	score, err := m.score(ctx, actorID, recipientID)
	if err != nil {
		return db.Match{}, false, err
	}
	if score < m.cfg.MinScore {
		return db.Match{}, false, fmt.Errorf("%w: %d < %d", svcErr.ErrInvalidScore, score, m.cfg.MinScore)
	}

	match, created, err := m.matches.CreateIfAbsent(ctx, actorID, recipientID, score)
	if err != nil {
		return db.Match{}, false, svcErr.Transient("create match", err)
	}

	if created {
		m.logger.Info("match created", "match", match.ID, "actor", actorID, "recipient", recipientID, "score", score)
		m.notify(ctx, notify.Event{
			Kind:        notify.KindNewLike,
			RecipientID: recipientID,
			ActorID:     actorID,
			MatchID:     match.ID,
		})
	}
	return match, created, nil
}

// UpdateStatus moves a pending match to matched or rejected.
//
// Behavior:
//   - Only pending matches transition; anything else is ErrInvalidTransition.
//   - On matched, the conversation channel is ensured. If that fails the
//     match stays matched and the error is returned as transient; calling
//     UpdateStatus(matched) again repairs the channel (and still reports
//     ErrInvalidTransition, since the match is no longer pending).
func (m *Manager) UpdateStatus(ctx context.Context, matchID uint64, to db.MatchStatus) (db.Match, error) {
	if to != db.MatchStatusMatched && to != db.MatchStatusRejected {
		return db.Match{}, svcErr.Validation(fmt.Sprintf("unsupported target status %q", to))
	}

	match, err := m.Get(ctx, matchID)
	if err != nil {
		return db.Match{}, err
	}

	moved, err := m.matches.TransitionFromPending(ctx, matchID, to)
	if err != nil {
		return db.Match{}, svcErr.Transient("update match status", err)
	}

	if !moved {
		// reload: a concurrent call may have won the transition
		current, err := m.Get(ctx, matchID)
		if err != nil {
			return db.Match{}, err
		}
		if current.Status == db.MatchStatusMatched && to == db.MatchStatusMatched {
			if _, err := m.channels.EnsureChannel(ctx, current.ID, current.UserAID, current.UserBID); err != nil {
				m.logger.Error("channel repair failed", "match", current.ID, "err", err)
			}
		}
		return current, svcErr.InvalidTransition(string(current.Status), string(to))
	}

	match.Status = to
	m.logger.Info("match status changed", "match", match.ID, "status", to)

	if to != db.MatchStatusMatched {
		return match, nil
	}

	channel, err := m.channels.EnsureChannel(ctx, match.ID, match.UserAID, match.UserBID)
	if err != nil {
		return match, svcErr.Transient("ensure channel", err)
	}

	for _, pair := range [][2]uint64{{match.UserAID, match.UserBID}, {match.UserBID, match.UserAID}} {
		m.notify(ctx, notify.Event{
			Kind:        notify.KindNewMatch,
			RecipientID: pair[0],
			ActorID:     pair[1],
			MatchID:     match.ID,
			ChannelID:   channel.ID,
		})
	}
	return match, nil
}

func (m *Manager) Get(ctx context.Context, matchID uint64) (db.Match, error) {
	if matchID == 0 {
		return db.Match{}, svcErr.Validation("match id is required")
	}
	match, err := m.matches.Get(ctx, matchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return db.Match{}, svcErr.NotFound("match")
		}
		return db.Match{}, svcErr.Transient("load match", err)
	}
	return match, nil
}

// ListForUser pages through the user's matches, newest activity first.
// An empty status lists every status.
func (m *Manager) ListForUser(
	ctx context.Context,
	userID uint64,
	status db.MatchStatus,
	paginationToken *string,
	limit int,
) ([]db.Match, *string, error) {
	if userID == 0 {
		return nil, nil, svcErr.Validation("user id is required")
	}
	if status != "" && !status.Valid() {
		return nil, nil, svcErr.Validation(fmt.Sprintf("unknown status %q", status))
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	matches, next, err := m.matches.ListForUser(ctx, userID, status, paginationToken, limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidToken) {
			return nil, nil, svcErr.Validation(err.Error())
		}
		return nil, nil, svcErr.Transient("list matches", err)
	}
	return matches, next, nil
}

func (m *Manager) score(ctx context.Context, a, b uint64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ScoreTimeout)
	defer cancel()

	score, err := m.scorer.Score(ctx, a, b)
	if err != nil {
		return 0, svcErr.Transient("score compatibility", err)
	}
	return scoring.Clamp(score), nil
}

func (m *Manager) notify(ctx context.Context, ev notify.Event) {
	if m.notifier == nil {
		return
	}
	ev.At = time.Now().UTC()
	if err := m.notifier.Notify(ctx, ev); err != nil {
		m.logger.Warn("notification failed", "kind", ev.Kind, "recipient", ev.RecipientID, "err", err)
	}
}
