package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Limiter is a sliding-window rate limit check keyed by an arbitrary string.
type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, resetAt time.Time)
}

// rateLimitScript is a Lua script for sliding window rate limiting
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

local resetAt = now + window
return {1, resetAt}
`)

// RateLimiter provides redis-backed rate limiting shared across processes
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter creates a new redis-backed rate limiter
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// CheckLimit checks if a request is allowed under the rate limit
func (rl *RateLimiter) CheckLimit(
	ctx context.Context,
	key string,
	limit int,
	window time.Duration,
) (allowed bool, resetAt time.Time) {
	now := time.Now().Unix()

	result, err := rateLimitScript.Run(ctx, rl.client, []string{key}, now, int64(window.Seconds()), limit).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis rate limit check failed, allowing request")
		return true, time.Unix(now+int64(window.Seconds()), 0)
	}

	if len(result) != 2 {
		log.Warn().Str("key", key).Msg("unexpected redis rate limit result")
		return true, time.Unix(now+int64(window.Seconds()), 0)
	}

	return result[0] == 1, time.Unix(result[1], 0)
}

// MemoryRateLimiter is the in-process fallback used when no redis is
// configured. Same sliding-window semantics, one process only.
type MemoryRateLimiter struct {
	mu          sync.Mutex
	store       map[string][]time.Time
	lastCleanup time.Time
}

const memoryLimiterCleanupInterval = time.Minute

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		store:       make(map[string][]time.Time),
		lastCleanup: time.Now(),
	}
}

func (rl *MemoryRateLimiter) CheckLimit(
	ctx context.Context,
	key string,
	limit int,
	window time.Duration,
) (allowed bool, resetAt time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.cleanup(now, window)
	windowStart := now.Add(-window)

	timestamps := rl.store[key]
	filtered := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(windowStart) {
			filtered = append(filtered, ts)
		}
	}

	if len(filtered) >= limit {
		rl.store[key] = filtered
		return false, filtered[0].Add(window)
	}

	rl.store[key] = append(filtered, now)
	return true, now.Add(window)
}

// cleanup drops keys whose whole window has passed. Caller holds rl.mu.
func (rl *MemoryRateLimiter) cleanup(now time.Time, window time.Duration) {
	if now.Sub(rl.lastCleanup) < memoryLimiterCleanupInterval {
		return
	}
	rl.lastCleanup = now

	cutoff := now.Add(-window)
	for key, timestamps := range rl.store {
		stale := true
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(rl.store, key)
		}
	}
}
