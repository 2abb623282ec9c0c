package ai

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"tripconcierge/pkg/errors"
)

// RedisRateLimiter implements a distributed token bucket shared by all replicas
type RedisRateLimiter struct {
	client      *redis.Client
	backend     string
	rate        float64 // requests per second
	burst       int
	key         string
	tokenScript *redis.Script
}

// KEYS[1] = bucket key
// ARGV[1] = rate (tokens per second), ARGV[2] = burst, ARGV[3] = now (seconds)
// Returns 1 if a token was taken, 0 otherwise
const luaTokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call('HMGET', key, 'tokens', 'last_update')
local tokens = tonumber(data[1])
local last_update = tonumber(data[2])

if not tokens then
    tokens = burst
    last_update = now
end

tokens = math.min(burst, tokens + (now - last_update) * rate)

local allowed = 0
if tokens >= 1.0 then
    tokens = tokens - 1.0
    allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_update', now)
redis.call('EXPIRE', key, 3600)
return allowed
`

// NewRedisRateLimiter creates a Redis-backed limiter for backend
func NewRedisRateLimiter(client *redis.Client, backend string, reqPerMinute float64, burst int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:      client,
		backend:     backend,
		rate:        reqPerMinute / 60.0,
		burst:       defaultBurst(reqPerMinute, burst),
		key:         "concierge:ratelimit:ai:" + backend,
		tokenScript: redis.NewScript(luaTokenBucketScript),
	}
}

// Wait blocks until a token is available or context is cancelled
func (l *RedisRateLimiter) Wait(ctx context.Context) error {
	for {
		allowed, err := l.tryAcquire(ctx)
		if err != nil {
			return errors.Wrapf(err, "redis rate limiter error for backend %s", l.backend)
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "rate limiter wait cancelled")
		case <-time.After(time.Duration(float64(time.Second) / l.rate)):
		}
	}
}

// Limit returns the rate limit in requests per minute
func (l *RedisRateLimiter) Limit() float64 {
	return l.rate * 60.0
}

// Reset clears the bucket
func (l *RedisRateLimiter) Reset(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}

func (l *RedisRateLimiter) tryAcquire(ctx context.Context) (bool, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)

	result, err := l.tokenScript.Run(ctx, l.client, []string{l.key}, l.rate, l.burst, now).Int()
	if err != nil {
		return false, errors.Wrap(err, "failed to execute token bucket script")
	}
	return result == 1, nil
}
