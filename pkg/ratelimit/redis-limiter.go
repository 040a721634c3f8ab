package ratelimit

import (
	"context"
	"fmt"
	"time"

	"tarpit/pkg/models"
	"tarpit/pkg/utils/logger"

	"github.com/redis/go-redis/v9"
)

const DEFAULT_REDIS_NAMESPACE = "tarpit:ratelimit:"

// tokenBucketScript mirrors MemoryRateLimiter.Allow. Times are milliseconds.
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

if limit <= 0 then
	return {0, 0, window_ms}
end

local rate = limit / window_ms

local state = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(state[1]) or limit
local last_refill = tonumber(state[2]) or now

if now > last_refill then
	tokens = math.min(limit, tokens + (now - last_refill) * rate)
	last_refill = now
end

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	retry_ms = math.ceil((1 - tokens) / rate)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', last_refill)
redis.call('PEXPIRE', key, window_ms * 2)

return {allowed, math.floor(tokens), retry_ms}
`)

// RedisRateLimiter shares token buckets between tarpit instances through redis.
type RedisRateLimiter struct {
	client    *redis.Client
	namespace string
	limit     int64
	window    time.Duration
	failOpen  bool
	logger    *logger.Logger
}

func NewRedisRateLimiter(config *models.RedisConfig, limit int64, window time.Duration, logger *logger.Logger) *RedisRateLimiter {
	db := 0
	if config.DB != nil {
		db = *config.DB
	}

	client := redis.NewClient(&redis.Options{
		Addr:        config.Address,
		Password:    config.Password,
		DB:          db,
		DialTimeout: 2 * time.Second,
	})

	namespace := config.KeyNamespace
	if namespace == "" {
		namespace = DEFAULT_REDIS_NAMESPACE
	} else if namespace[len(namespace)-1] != ':' {
		namespace += ":"
	}

	failOpen := true
	if config.FailOpen != nil {
		failOpen = *config.FailOpen
	}

	return &RedisRateLimiter{
		client:    client,
		namespace: namespace,
		limit:     limit,
		window:    window,
		failOpen:  failOpen,
		logger:    logger,
	}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, int64, time.Time) {
	now := time.Now()

	result, err := tokenBucketScript.Run(ctx, r.client, []string{r.key(key)},
		r.limit,
		r.window.Milliseconds(),
		now.UnixMilli(),
	).Int64Slice()
	if err != nil || len(result) < 3 {
		if err == nil {
			err = fmt.Errorf("unexpected script result %v", result)
		}
		return r.fallback(now, err)
	}

	allowed := result[0] == 1
	remaining := result[1]
	retryAt := now.Add(time.Duration(result[2]) * time.Millisecond)

	return allowed, remaining, retryAt
}

func (r *RedisRateLimiter) fallback(now time.Time, err error) (bool, int64, time.Time) {
	if r.failOpen {
		r.logger.Warn(fmt.Sprintf("Redis rate limiter unavailable, allowing request: %v", err))
		return true, r.limit, now
	}
	r.logger.Error(fmt.Sprintf("Redis rate limiter unavailable, denying request: %v", err))
	return false, 0, now.Add(r.window)
}

func (r *RedisRateLimiter) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRateLimiter) key(k string) string {
	return r.namespace + k
}

func (r *RedisRateLimiter) Close() error {
	return r.client.Close()
}
