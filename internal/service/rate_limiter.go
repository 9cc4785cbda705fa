package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// rateLimitScript is a sliding window over a sorted set, in milliseconds.
// It returns {allowed, retryAfterMs}.
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local retry = window
    if #oldest >= 2 then
        retry = tonumber(oldest[2]) + window - now
    end
    return {0, retry}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('PEXPIRE', key, window + 1000)
return {1, 0}
`)

// RateLimiter is a Redis sliding-window limiter shared by all instances.
type RateLimiter struct {
	client   redis.Scripter
	failOpen bool
}

// NewRateLimiter denies requests when Redis cannot be reached, which is the
// safe default for code guessing endpoints.
func NewRateLimiter(client redis.Scripter) *RateLimiter {
	return &RateLimiter{client: client}
}

// FailOpen returns a limiter sharing the client that allows requests when
// Redis is unavailable. Use it where availability matters more than
// throttling.
func (rl *RateLimiter) FailOpen() *RateLimiter {
	return &RateLimiter{client: rl.client, failOpen: true}
}

// CheckLimit records one request against key and reports whether it is
// within limit for the trailing window.
func (rl *RateLimiter) CheckLimit(
	ctx context.Context,
	key string,
	limit int,
	window time.Duration,
) (allowed bool, retryAfter time.Duration) {
	fullKey := fmt.Sprintf("ratelimit:%s", key)

	result, err := rateLimitScript.Run(
		ctx,
		rl.client,
		[]string{fullKey},
		time.Now().UnixMilli(),
		window.Milliseconds(),
		limit,
	).Int64Slice()

	if err == nil && len(result) != 2 {
		err = fmt.Errorf("unexpected result length %d", len(result))
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Bool("failOpen", rl.failOpen).
			Msg("rate limit check failed")
		return rl.failOpen, window
	}

	return result[0] == 1, time.Duration(result[1]) * time.Millisecond
}
