// Package quota enforces the cap on new discovery candidates per rolling day.
//
// Every granted unit is a member of a per-user sorted set scored by its
// grant time. Reserving trims grants older than the window, counts what is
// left and adds the new grants in one Lua script, so concurrent discovery
// requests from one user can never be granted more than the cap between
// them.
package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oggyb/muzz-matching/internal/cache"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

// Window is the rolling period the cap applies to.
const Window = 24 * time.Hour

// reserveScript grants min(want, limit-used) and returns {granted, used}.
// Members are "<reservation>:<n>" so a refund can find its own grants.
var reserveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local want = tonumber(ARGV[4])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local used = redis.call("ZCARD", KEYS[1])
local grant = limit - used
if grant > want then grant = want end
if grant < 0 then grant = 0 end
for i = 1, grant do
	redis.call("ZADD", KEYS[1], now, ARGV[5] .. ":" .. i)
end
if used + grant > 0 then
	redis.call("PEXPIRE", KEYS[1], window)
end
return {grant, used + grant}
`)

// refundScript removes up to n grants of one reservation. Grants that
// already left the window are gone and refund nothing.
var refundScript = redis.NewScript(`
local n = tonumber(ARGV[2])
for i = 1, n do
	redis.call("ZREM", KEYS[1], ARGV[1] .. ":" .. i)
end
return redis.call("ZCARD", KEYS[1])
`)

type Limits struct {
	Free    int
	Premium int
}

// Reservation is the outcome of one Reserve call.
type Reservation struct {
	// ID identifies the grants for Refund. Empty when nothing was granted.
	ID        string
	Granted   int
	Remaining int
}

type Limiter struct {
	cache  *cache.RedisCache
	limits Limits
	now    func() time.Time
}

func NewLimiter(c *cache.RedisCache, limits Limits) *Limiter {
	if limits.Free <= 0 {
		limits.Free = 3
	}
	if limits.Premium <= 0 {
		limits.Premium = 50
	}
	return &Limiter{cache: c, limits: limits, now: time.Now}
}

// WithClock overrides the time source. Used in tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Limit returns the rolling-day cap of a user's tier.
func (l *Limiter) Limit(premium bool) int {
	if premium {
		return l.limits.Premium
	}
	return l.limits.Free
}

// Reserve atomically takes up to want units of the user's quota.
//
// A user with an exhausted quota gets Granted == 0 and no error.
func (l *Limiter) Reserve(ctx context.Context, userID uint64, want int, premium bool) (Reservation, error) {
	if want <= 0 {
		remaining, err := l.Remaining(ctx, userID, premium)
		return Reservation{Remaining: remaining}, err
	}

	limit := l.Limit(premium)
	id := uuid.NewString()
	args := []any{l.now().UnixMilli(), Window.Milliseconds(), limit, want, id}

	res, err := reserveScript.Run(ctx, l.cache.Client, []string{l.cache.KeyForDiscoveryQuota(userID)}, args...).Int64Slice()
	if err != nil {
		return Reservation{}, svcErr.Transient("reserve quota", err)
	}
	if len(res) != 2 {
		return Reservation{}, svcErr.Transient("reserve quota", fmt.Errorf("unexpected script reply %v", res))
	}

	granted, used := int(res[0]), int(res[1])
	r := Reservation{Granted: granted, Remaining: clampRemaining(limit - used)}
	if granted > 0 {
		r.ID = id
	}
	return r, nil
}

// Refund gives back n units of a reservation.
func (l *Limiter) Refund(ctx context.Context, userID uint64, reservationID string, n int) error {
	if n <= 0 || reservationID == "" {
		return nil
	}
	key := l.cache.KeyForDiscoveryQuota(userID)
	if err := refundScript.Run(ctx, l.cache.Client, []string{key}, reservationID, n).Err(); err != nil {
		return svcErr.Transient("refund quota", err)
	}
	return nil
}

// Remaining reports the unused quota without consuming any.
func (l *Limiter) Remaining(ctx context.Context, userID uint64, premium bool) (int, error) {
	since := l.now().Add(-Window).UnixMilli()
	used, err := l.cache.Client.ZCount(ctx, l.cache.KeyForDiscoveryQuota(userID), "("+strconv.FormatInt(since, 10), "+inf").Result()
	if err != nil {
		return 0, svcErr.Transient("read quota", err)
	}
	return clampRemaining(l.Limit(premium) - int(used)), nil
}

func clampRemaining(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
