package scoring_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/scoring"
)

func newCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	return cache.NewRedisCache(cfg), mr
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, scoring.Clamp(-5))
	assert.Equal(t, 100, scoring.Clamp(130))
	assert.Equal(t, 65, scoring.Clamp(65))
}

func TestCachedScorerHitsInnerOncePerPair(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	var calls int32
	inner := scoring.Func(func(ctx context.Context, a, b uint64) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 120, nil
	})
	s := scoring.NewCached(inner, c, time.Minute, logger.Discard())

	got, err := s.Score(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 100, got)

	// reversed pair is served from cache
	got, err = s.Score(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, time.Minute, mr.TTL("score:1:2"))
}

func TestCachedScorerDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t)

	inner := scoring.Func(func(ctx context.Context, a, b uint64) (int, error) {
		return 0, errors.New("scorer down")
	})
	s := scoring.NewCached(inner, c, time.Minute, logger.Discard())

	_, err := s.Score(ctx, 1, 2)
	assert.Error(t, err)
	assert.False(t, mr.Exists("score:1:2"))
}

type profiles map[uint64]db.User

func (p profiles) Get(_ context.Context, id uint64) (db.User, error) {
	u, ok := p[id]
	if !ok {
		return db.User{}, gorm.ErrRecordNotFound
	}
	return u, nil
}

func TestInterestOverlap(t *testing.T) {
	ctx := context.Background()
	s := scoring.NewInterestOverlap(profiles{
		1: {ID: 1, Interests: []string{"hiking", "music"}, PartnerValues: []string{"family"}},
		2: {ID: 2, Interests: []string{"Hiking", "music"}, PartnerValues: []string{"family"}},
		3: {ID: 3, Interests: []string{"gaming"}},
	})

	same, err := s.Score(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 100, same)

	none, err := s.Score(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 40, none)

	_, err = s.Score(ctx, 1, 99)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
