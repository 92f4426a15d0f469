package discovery_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/discovery"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/quota"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/scoring"
)

//
// Test helpers
//

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbase, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(dbase))
	return dbase
}

func addUser(t *testing.T, gdb *gorm.DB, id uint64, gender string, age int, verified bool) {
	t.Helper()
	u := db.User{
		ID:           id,
		Username:     fmt.Sprintf("user%d", id),
		Email:        fmt.Sprintf("u%d@test.com", id),
		PasswordHash: "x",
		Active:       true,
		Gender:       gender,
		Age:          age,
		Verified:     verified,
	}
	require.NoError(t, gdb.Create(&u).Error)
}

// fixedScores returns a scorer backed by a candidate -> score table.
// Candidates missing from the table fail.
func fixedScores(table map[uint64]int) scoring.Scorer {
	return scoring.Func(func(ctx context.Context, a, b uint64) (int, error) {
		s, ok := table[b]
		if !ok {
			return 0, errors.New("scorer unavailable")
		}
		return s, nil
	})
}

func newEngine(gdb *gorm.DB, scorer scoring.Scorer, q discovery.Quota) *discovery.Engine {
	return discovery.NewEngine(
		repository.NewUserRepository(gdb),
		scorer,
		q,
		discovery.Config{Workers: 3, ScoreTimeout: 200 * time.Millisecond, OppositeGenderOnly: true},
		logger.Discard(),
	)
}

func newQuota(t *testing.T) *quota.Limiter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	return quota.NewLimiter(cache.NewRedisCache(cfg), quota.Limits{Free: 3, Premium: 50})
}

//
// Tests
//

func TestDiscoverDropsCandidatesBelowMinScore(t *testing.T) {
	ctx := context.Background()
	gdb := setupDB(t)
	addUser(t, gdb, 1, "male", 30, true)   // X
	addUser(t, gdb, 2, "female", 29, true) // Y
	addUser(t, gdb, 3, "female", 31, true) // Z

	e := newEngine(gdb, fixedScores(map[uint64]int{2: 70, 3: 50}), nil)

	res, err := e.Discover(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, uint64(2), res.Candidates[0].Profile.ID)
	assert.Equal(t, 70, res.Candidates[0].Score)
	assert.Equal(t, 1, res.Returned)
	assert.Equal(t, -1, res.QuotaRemaining)
}

func TestExcludesSelfAndHistoryInAnyStatus(t *testing.T) {
	ctx := context.Background()
	gdb := setupDB(t)
	addUser(t, gdb, 1, "male", 30, true)
	for id := uint64(2); id <= 5; id++ {
		addUser(t, gdb, id, "female", 30, true)
	}

	matches := repository.NewMatchRepository(gdb)
	m, _, err := matches.CreateIfAbsent(ctx, 1, 2, 80)
	require.NoError(t, err)
	_, err = matches.TransitionFromPending(ctx, m.ID, db.MatchStatusRejected)
	require.NoError(t, err)
	_, _, err = matches.CreateIfAbsent(ctx, 3, 1, 80) // liked the viewer, still pending
	require.NoError(t, err)

	e := newEngine(gdb, fixedScores(map[uint64]int{1: 99, 2: 99, 3: 99, 4: 90, 5: 80}), nil)
	res, err := e.Discover(ctx, 1, 10)
	require.NoError(t, err)

	var ids []uint64
	for _, c := range res.Candidates {
		ids = append(ids, c.Profile.ID)
		assert.GreaterOrEqual(t, c.Score, 65)
	}
	assert.Equal(t, []uint64{4, 5}, ids)
}

func TestFiltersGenderAgeAndVerification(t *testing.T) {
	ctx := context.Background()
	gdb := setupDB(t)
	addUser(t, gdb, 1, "female", 20, true)
	addUser(t, gdb, 2, "male", 18, true)  // in window (clamped to 18)
	addUser(t, gdb, 3, "male", 31, true)  // too old: 20+10
	addUser(t, gdb, 4, "male", 25, false) // unverified
	addUser(t, gdb, 5, "female", 22, true)

	e := newEngine(gdb, fixedScores(map[uint64]int{2: 80, 3: 80, 4: 80, 5: 80}), nil)
	res, err := e.Discover(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, uint64(2), res.Candidates[0].Profile.ID)
}

func TestScorerFailuresAreDroppedNotRaised(t *testing.T) {
	ctx := context.Background()
	gdb := setupDB(t)
	addUser(t, gdb, 1, "male", 30, true)
	addUser(t, gdb, 2, "female", 30, true)
	addUser(t, gdb, 3, "female", 30, true)
	addUser(t, gdb, 4, "female", 30, true)

	slow := scoring.Func(func(ctx context.Context, a, b uint64) (int, error) {
		switch b {
		case 2:
			return 0, errors.New("boom")
		case 3:
			time.Sleep(2 * time.Second) // ignores ctx on purpose
			return 99, nil
		}
		return 75, nil
	})

	e := newEngine(gdb, slow, nil)
	start := time.Now()
	res, err := e.Discover(ctx, 1, 10)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, uint64(4), res.Candidates[0].Profile.ID)
	assert.Equal(t, 2, res.Dropped)
}

func TestSortedDescendingAndTruncated(t *testing.T) {
	ctx := context.Background()
	gdb := setupDB(t)
	addUser(t, gdb, 1, "male", 30, true)
	for id := uint64(2); id <= 9; id++ {
		addUser(t, gdb, id, "female", 30, true)
	}
	// only 2..7 are fetched (limit 3 x over-fetch 2), so 8 and 9 never rank
	scores := map[uint64]int{2: 70, 3: 90, 4: 80, 5: 95, 6: 66, 7: 85, 8: 99, 9: 99}

	e := newEngine(gdb, fixedScores(scores), nil)
	res, err := e.Discover(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 3)

	var ids []uint64
	for _, c := range res.Candidates {
		ids = append(ids, c.Profile.ID)
	}
	assert.Equal(t, []uint64{5, 3, 7}, ids)
}

func TestBoundedParallelism(t *testing.T) {
	ctx := context.Background()
	gdb := setupDB(t)
	addUser(t, gdb, 1, "male", 30, true)
	for id := uint64(2); id <= 13; id++ {
		addUser(t, gdb, id, "female", 30, true)
	}

	var inFlight, peak int32
	var mu sync.Mutex
	scorer := scoring.Func(func(ctx context.Context, a, b uint64) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 80, nil
	})

	e := newEngine(gdb, scorer, nil)
	res, err := e.Discover(ctx, 1, 6)
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 6)
	assert.LessOrEqual(t, peak, int32(3))
}

func TestQuotaCapsAndRefunds(t *testing.T) {
	ctx := context.Background()
	gdb := setupDB(t)
	addUser(t, gdb, 1, "male", 30, true)
	addUser(t, gdb, 2, "female", 30, true)
	addUser(t, gdb, 3, "female", 30, true)

	q := newQuota(t)
	e := newEngine(gdb, fixedScores(map[uint64]int{2: 90, 3: 40}), q)

	// free tier: 3 reserved, 1 returned, 2 refunded
	res, err := e.Discover(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Returned)
	assert.Equal(t, 2, res.QuotaRemaining)

	remaining, err := q.Remaining(ctx, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

// The candidate pool follows the requested limit, not the granted quota:
// a free user asking for 10 still gets the one good match at position 7.
func TestQuotaCapsResultNotCandidatePool(t *testing.T) {
	ctx := context.Background()
	gdb := setupDB(t)
	addUser(t, gdb, 1, "male", 30, true)
	scores := map[uint64]int{}
	for id := uint64(2); id <= 8; id++ {
		addUser(t, gdb, id, "female", 30, true)
		scores[id] = 40
	}
	scores[8] = 90

	q := newQuota(t)
	e := newEngine(gdb, fixedScores(scores), q)

	res, err := e.Discover(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, uint64(8), res.Candidates[0].Profile.ID)
	assert.Equal(t, 2, res.QuotaRemaining)
}

func TestQuotaTruncatesRankedCandidates(t *testing.T) {
	ctx := context.Background()
	gdb := setupDB(t)
	addUser(t, gdb, 1, "male", 30, true)
	scores := map[uint64]int{}
	for id := uint64(2); id <= 7; id++ {
		addUser(t, gdb, id, "female", 30, true)
		scores[id] = 60 + int(id)*5
	}

	e := newEngine(gdb, fixedScores(scores), newQuota(t))

	res, err := e.Discover(ctx, 1, 10)
	require.NoError(t, err)
	var ids []uint64
	for _, c := range res.Candidates {
		ids = append(ids, c.Profile.ID)
	}
	// best three of all six, not of the first three fetched
	assert.Equal(t, []uint64{7, 6, 5}, ids)
	assert.Equal(t, 0, res.QuotaRemaining)
}

func TestQuotaExhausted(t *testing.T) {
	ctx := context.Background()
	gdb := setupDB(t)
	addUser(t, gdb, 1, "male", 30, true)
	addUser(t, gdb, 2, "female", 30, true)

	q := newQuota(t)
	_, err := q.Reserve(ctx, 1, 3, false)
	require.NoError(t, err)

	e := newEngine(gdb, fixedScores(map[uint64]int{2: 90}), q)
	res, err := e.Discover(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, 0, res.QuotaRemaining)
}

func TestUnknownViewer(t *testing.T) {
	e := newEngine(setupDB(t), fixedScores(nil), nil)
	_, err := e.Discover(context.Background(), 42, 5)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	_, err = e.Discover(context.Background(), 0, 5)
	assert.ErrorIs(t, err, svcErr.ErrValidation)
}
