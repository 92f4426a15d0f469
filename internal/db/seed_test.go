package db_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/db"
)

func TestSeedTestData(t *testing.T) {
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))

	require.NoError(t, db.SeedTestData(database))

	var users int64
	require.NoError(t, database.Model(&db.User{}).Count(&users).Error)
	assert.Equal(t, int64(20), users)

	// every matched match has exactly one channel, pending ones have none
	var matches []db.Match
	require.NoError(t, database.Find(&matches).Error)
	for _, m := range matches {
		var channels int64
		require.NoError(t, database.Model(&db.Channel{}).Where("match_id = ?", m.ID).Count(&channels).Error)
		if m.Status == db.MatchStatusMatched {
			assert.Equal(t, int64(1), channels, "match %d", m.ID)
		} else {
			assert.Equal(t, int64(0), channels, "match %d", m.ID)
		}
	}
}

func TestPairKeyIsUnordered(t *testing.T) {
	assert.Equal(t, "3:7", db.PairKey(7, 3))
	assert.Equal(t, db.PairKey(3, 7), db.PairKey(7, 3))
}

func TestMatchStatusTerminal(t *testing.T) {
	assert.False(t, db.MatchStatusPending.Terminal())
	assert.True(t, db.MatchStatusMatched.Terminal())
	assert.True(t, db.MatchStatusRejected.Terminal())
	assert.False(t, db.MatchStatus("archived").Valid())
}
