package app

import (
	"time"

	"github.com/oggyb/muzz-matching/internal/chat"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/discovery"
	"github.com/oggyb/muzz-matching/internal/match"
	"github.com/oggyb/muzz-matching/internal/media"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/presence"
	"github.com/oggyb/muzz-matching/internal/quota"
	"github.com/oggyb/muzz-matching/internal/realtime"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/scoring"
)

const (
	notifyTimeout = 5 * time.Second
	busBuffer     = 64
)

// Options overrides the pluggable collaborators. Zero values pick the
// configured defaults.
type Options struct {
	// Scorer defaults to the interest overlap scorer. Discovery reads it
	// through the Redis score cache; match creation always calls it directly.
	Scorer scoring.Scorer
	// Bus defaults to cfg.Realtime.Bus.
	Bus realtime.Bus
	// Notifier is the push sink and defaults to cfg.Notify.Driver. It is
	// always wrapped so token lookup and delivery run off the request path.
	Notifier notify.Notifier
	// Uploader is optional; nil disables attachments.
	Uploader media.Uploader
}

// Wire builds the domain services on top of DB and Redis and attaches
// them to the context.
func (a *AppContext) Wire(cfg *config.Config, opts Options) *AppContext {
	users := repository.NewUserRepository(a.DB)
	matches := repository.NewMatchRepository(a.DB)
	channels := repository.NewChannelRepository(a.DB)
	messages := repository.NewMessageRepository(a.DB)

	scorer := opts.Scorer
	discoveryScorer := scorer
	if scorer == nil {
		scorer = scoring.NewInterestOverlap(users)
		discoveryScorer = scoring.NewCached(
			scorer,
			a.RedisCache,
			cfg.Discovery.ScoreCacheTTL,
			a.Logger.With("component", "scoring"),
		)
	}

	a.Bus = opts.Bus
	if a.Bus == nil {
		a.Bus = a.newBus(cfg.Realtime.Bus)
	}

	sink := opts.Notifier
	if sink == nil {
		sink = a.newNotifySink(cfg.Notify)
	}
	notifier := notify.NewAsync(
		notify.NewTokenResolver(sink, users, a.Logger.With("component", "notify")),
		notifyTimeout,
		a.Logger.With("component", "notify"),
	)

	limiter := quota.NewLimiter(a.RedisCache, quota.Limits{
		Free:    cfg.Discovery.FreeDailyQuota,
		Premium: cfg.Discovery.PremiumDailyQuota,
	})

	a.Discovery = discovery.NewEngine(users, discoveryScorer, limiter, discovery.Config{
		Workers:            cfg.Discovery.Workers,
		ScoreTimeout:       cfg.Discovery.ScoreTimeout,
		MinScore:           cfg.Discovery.MinScore,
		OverFetchFactor:    cfg.Discovery.OverFetchFactor,
		AgeSpan:            cfg.Discovery.AgeSpan,
		MinAge:             cfg.Discovery.MinAge,
		MaxAge:             cfg.Discovery.MaxAge,
		OppositeGenderOnly: cfg.Discovery.OppositeGenderOnly,
	}, a.Logger.With("component", "discovery"))

	a.Chat = chat.NewService(channels, messages, a.Bus, opts.Uploader, notifier, a.Logger.With("component", "chat"))

	a.Matches = match.NewManager(matches, users, scorer, a.Chat, notifier, match.Config{
		MinScore:     cfg.Discovery.MinScore,
		ScoreTimeout: cfg.Discovery.ScoreTimeout,
	}, a.Logger.With("component", "match"))

	a.Presence = presence.NewTracker(a.RedisCache, channels, a.Chat, presence.Config{
		StaleAfter:   cfg.Presence.StaleAfter,
		OfflineAfter: cfg.Presence.OfflineAfter,
	}, a.Logger.With("component", "presence"))

	return a
}

func (a *AppContext) newBus(kind string) realtime.Bus {
	log := a.Logger.With("component", "realtime")
	switch kind {
	case "memory":
		return realtime.NewHub(busBuffer, log)
	case "redis", "":
	default:
		log.Warn("unknown realtime bus, using redis", "bus", kind)
	}
	return realtime.NewRedisBus(a.RedisCache, busBuffer, log)
}

func (a *AppContext) newNotifySink(cfg config.NotifyConfig) notify.Notifier {
	log := a.Logger.With("component", "notify")
	switch cfg.Driver {
	case "log":
		return notify.NewLog(log)
	case "redis", "":
	default:
		log.Warn("unknown notify driver, using redis", "driver", cfg.Driver)
	}
	return notify.NewRedisQueue(a.RedisCache, cfg.QueueKey)
}
