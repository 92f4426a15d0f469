// Package scoring wraps the external compatibility scorer.
//
// The scoring formula itself lives outside this service; everything here is
// plumbing around an opaque Score(a, b) call.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/db"
)

const (
	MinScore = 0
	MaxScore = 100
)

// Scorer returns a 0..100 suitability score for two users.
// Implementations may fail or block; callers bound them with a context.
type Scorer interface {
	Score(ctx context.Context, userA, userB uint64) (int, error)
}

// Func adapts a plain function into a Scorer.
type Func func(ctx context.Context, userA, userB uint64) (int, error)

func (f Func) Score(ctx context.Context, userA, userB uint64) (int, error) {
	return f(ctx, userA, userB)
}

// Clamp forces a raw score into the 0..100 range.
func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Cached memoizes scores per unordered pair in Redis.
//
// Cache failures never fail a score call: a read error falls through to the
// inner scorer and a write error is only logged.
type Cached struct {
	inner  Scorer
	cache  *cache.RedisCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCached(inner Scorer, c *cache.RedisCache, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cached{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func (s *Cached) Score(ctx context.Context, userA, userB uint64) (int, error) {
	key := s.cache.KeyForScore(userA, userB)

	if cached, err := s.cache.Get(ctx, key); err == nil && cached != "" {
		if n, err := strconv.Atoi(cached); err == nil {
			return n, nil
		}
	}

	score, err := s.inner.Score(ctx, userA, userB)
	if err != nil {
		return 0, err
	}
	score = Clamp(score)

	if err := s.cache.Set(ctx, key, strconv.Itoa(score), s.ttl); err != nil {
		s.logger.Warn("score cache write failed", "key", key, "err", err)
	}
	return score, nil
}

// ProfileLoader loads the profiles InterestOverlap scores.
type ProfileLoader interface {
	Get(ctx context.Context, userID uint64) (db.User, error)
}

// InterestOverlap is the development stand-in for the external scorer.
// It scores the Jaccard overlap of interests and partner values, with a
// base of 40 so that profiles sharing anything clear the match threshold.
type InterestOverlap struct {
	profiles ProfileLoader
}

func NewInterestOverlap(profiles ProfileLoader) *InterestOverlap {
	return &InterestOverlap{profiles: profiles}
}

func (s *InterestOverlap) Score(ctx context.Context, userA, userB uint64) (int, error) {
	a, err := s.profiles.Get(ctx, userA)
	if err != nil {
		return 0, fmt.Errorf("load profile %d: %w", userA, err)
	}
	b, err := s.profiles.Get(ctx, userB)
	if err != nil {
		return 0, fmt.Errorf("load profile %d: %w", userB, err)
	}

	left := append(append([]string{}, a.Interests...), a.PartnerValues...)
	right := append(append([]string{}, b.Interests...), b.PartnerValues...)
	return Clamp(40 + int(jaccard(left, right)*60)), nil
}

func jaccard(a, b []string) float64 {
	set := make(map[string]uint8, len(a)+len(b))
	for _, v := range a {
		set[strings.ToLower(v)] |= 1
	}
	for _, v := range b {
		set[strings.ToLower(v)] |= 2
	}
	if len(set) == 0 {
		return 0
	}
	var both int
	for _, mask := range set {
		if mask == 3 {
			both++
		}
	}
	return float64(both) / float64(len(set))
}
