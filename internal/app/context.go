package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/chat"
	"github.com/oggyb/muzz-matching/internal/discovery"
	"github.com/oggyb/muzz-matching/internal/match"
	"github.com/oggyb/muzz-matching/internal/presence"
	"github.com/oggyb/muzz-matching/internal/realtime"
)

// AppContext holds shared dependencies (DB, Redis, Logger) and the domain
// services built on top of them.
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger

	Bus       realtime.Bus
	Discovery *discovery.Engine
	Matches   *match.Manager
	Chat      *chat.Service
	Presence  *presence.Tracker
}

// New creates a new AppContext with infrastructure only. Services are
// attached by the caller once they are wired.
func New(db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	return &AppContext{
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
	}
}
