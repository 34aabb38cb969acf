package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a per-key sliding window limiter. Each admitted request is
// a member of a Redis sorted set scored by its arrival time in milliseconds.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
	window      time.Duration
}

// Decision is the outcome of one Reserve call. Remaining is -1 when the
// limiter did not count the request.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Returns {admitted, used, ms until the oldest entry leaves the window}.
var reserveScript = redis.NewScript(`
local now, window, limit = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - window)

local used = redis.call('ZCARD', KEYS[1])
if used >= limit then
    local reset = window
    local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
    if oldest[2] then
        reset = tonumber(oldest[2]) + window - now
    end
    return {0, used, reset}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, used + 1, 0}
`)

// NewRateLimiter creates a limiter counting requests over window. A
// non-positive window means one second.
func NewRateLimiter(redisClient *redis.Client, window time.Duration, logger *slog.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      reserveScript,
		window:      window,
	}
}

func rlKey(key string) string {
	return fmt.Sprintf("relay:rl:%s", key)
}

// Reserve tries to admit one request for key. A non-positive limit admits
// everything. Redis failures fail open.
func (rl *RateLimiter) Reserve(ctx context.Context, key string, limit int) Decision {
	open := Decision{Allowed: true, Remaining: -1}
	if limit <= 0 {
		return open
	}

	res, err := rl.script.Run(ctx, rl.redisClient, []string{rlKey(key)},
		time.Now().UnixMilli(), rl.window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil || len(res) != 3 {
		rl.logger.Error("rate limiter script failed", "error", err, "key", key)
		return open
	}

	d := Decision{
		Allowed:   res[0] == 1,
		Remaining: max(limit-int(res[1]), 0),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(max(res[2], 0)) * time.Millisecond
		rl.logger.Debug("rate limited", "key", key, "limit", limit, "retry_after", d.RetryAfter)
	}
	return d
}
