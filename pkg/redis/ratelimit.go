package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements sliding window rate limiting using Redis
// ⭐ SSOT: API 레이트 리밋은 여기서만 (여러 API 인스턴스가 한도 공유)
type RateLimiter struct {
	client *Client
	prefix string
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit requests per window per key
func NewRateLimiter(client *Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Limit returns the configured request limit
func (r *RateLimiter) Limit() int { return r.limit }

var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])
	local member = ARGV[5]

	-- Remove old entries outside the window
	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)
	if count < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window_ms)
		return {1, limit - count - 1}
	end
	return {0, 0}
`)

// Allow checks if a request from key is allowed
// Returns (allowed, remaining, error)
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	if !r.client.Enabled() || r.limit <= 0 {
		// Redis 비활성 / 한도 미설정 → 모두 허용
		return true, r.limit, nil
	}

	fullKey := fmt.Sprintf("%s:ratelimit:%s", r.prefix, key)
	now := time.Now()
	windowStart := now.Add(-r.window).UnixMilli()

	result, err := slidingWindow.Run(ctx, r.client.Redis(), []string{fullKey},
		now.UnixMilli(),
		windowStart,
		r.limit,
		r.window.Milliseconds(),
		now.UnixNano(),
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script failed: %w", err)
	}

	allowed := result[0].(int64) == 1
	remaining := int(result[1].(int64))

	return allowed, remaining, nil
}
