package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/muzz-matching/internal/config"
)

func TestDefaults(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DISCOVERY_MIN_SCORE", "")
	t.Setenv("QUOTA_FREE_DAILY", "")
	t.Setenv("PRESENCE_STALE_AFTER", "")
	t.Setenv("REALTIME_BUS", "")
	t.Setenv("NOTIFY_DRIVER", "")

	cfg := config.New()

	assert.Equal(t, 65, cfg.Discovery.MinScore)
	assert.Equal(t, 2, cfg.Discovery.OverFetchFactor)
	assert.Equal(t, 3, cfg.Discovery.FreeDailyQuota)
	assert.Equal(t, 30*time.Second, cfg.Presence.StaleAfter)
	assert.Equal(t, 90*time.Second, cfg.Presence.OfflineAfter)
	assert.True(t, cfg.Discovery.OppositeGenderOnly)
	assert.Contains(t, cfg.DB.DSN, "@tcp(localhost:3306)/")
	assert.Contains(t, cfg.DB.DSN, "parseTime=true")
	assert.Equal(t, "redis", cfg.Realtime.Bus)
	assert.Equal(t, "redis", cfg.Notify.Driver)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MYSQL_DSN", "u:p@tcp(db:3306)/x")
	t.Setenv("DISCOVERY_MIN_SCORE", "70")
	t.Setenv("DISCOVERY_SCORE_TIMEOUT", "250ms")
	t.Setenv("DISCOVERY_OPPOSITE_GENDER", "off")
	t.Setenv("S3_USE_SSL", "yes")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("REALTIME_BUS", "Memory")
	t.Setenv("NOTIFY_DRIVER", "log")

	cfg := config.New()

	assert.Equal(t, "u:p@tcp(db:3306)/x", cfg.DB.DSN)
	assert.Equal(t, 70, cfg.Discovery.MinScore)
	assert.Equal(t, 250*time.Millisecond, cfg.Discovery.ScoreTimeout)
	assert.False(t, cfg.Discovery.OppositeGenderOnly)
	assert.True(t, cfg.S3.UseSSL)
	// unparsable values fall back to the default
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, "memory", cfg.Realtime.Bus)
	assert.Equal(t, "log", cfg.Notify.Driver)
}
