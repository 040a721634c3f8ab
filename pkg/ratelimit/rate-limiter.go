package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tarpit/pkg/models"
	"tarpit/pkg/utils/logger"

	"github.com/valyala/fasthttp"
)

const (
	STORAGE_MEMORY = "memory"
	STORAGE_REDIS  = "redis"
)

const (
	KEY_TYPE_IP     = "ip"
	KEY_TYPE_HEADER = "header"
)

// IRateLimiter consumes one token for key. retryAt is the earliest time a
// denied key gets a token back; for allowed requests it is the call time.
type IRateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int64, retryAt time.Time)
	Health(ctx context.Context) error
	Close() error
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	RetryAt   time.Time
	Limit     int64
	Key       string
}

// SetDefaults fills nil or empty fields of an enabled config.
func SetDefaults(config *models.RateLimitConfig) {
	if config == nil {
		return
	}

	if config.Requests == nil {
		requests := int64(10)
		config.Requests = &requests
	}
	if config.Window == nil {
		window := time.Minute
		config.Window = &window
	}
	if config.Storage == "" {
		config.Storage = STORAGE_MEMORY
	}
	if len(config.KeyBy) == 0 {
		config.KeyBy = []string{KEY_TYPE_IP}
	}
}

// NewRateLimiter returns nil without error when rate limiting is disabled.
func NewRateLimiter(config *models.RateLimitConfig, logger *logger.Logger) (IRateLimiter, error) {
	if config == nil || !config.Enabled {
		return nil, nil
	}

	SetDefaults(config)

	if *config.Window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", *config.Window)
	}

	switch strings.ToLower(config.Storage) {
	case STORAGE_MEMORY:
		return NewMemoryRateLimiter(*config.Requests, *config.Window, logger), nil
	case STORAGE_REDIS:
		if config.Redis == nil {
			return nil, fmt.Errorf("redis configuration required for redis rate limiter")
		}
		return NewRedisRateLimiter(config.Redis, *config.Requests, *config.Window, logger), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit storage type: %s", config.Storage)
	}
}

// BuildKey builds a rate limit key based on the configuration
func BuildKey(ctx *fasthttp.RequestCtx, config *models.RateLimitConfig) string {
	if config == nil || len(config.KeyBy) == 0 {
		return getClientIP(ctx)
	}

	var parts []string
	for _, keyType := range config.KeyBy {
		if keyType == KEY_TYPE_IP {
			parts = append(parts, getClientIP(ctx))
		} else if strings.HasPrefix(keyType, KEY_TYPE_HEADER+":") {
			headerName := strings.TrimPrefix(keyType, KEY_TYPE_HEADER+":")
			headerValue := string(ctx.Request.Header.Peek(headerName))
			if headerValue != "" {
				parts = append(parts, headerValue)
			} else {
				// Missing header; fall back to IP to avoid one shared bucket
				parts = append(parts, getClientIP(ctx))
			}
		} else {
			parts = append(parts, keyType)
		}
	}

	return strings.Join(parts, ":")
}

func getClientIP(ctx *fasthttp.RequestCtx) string {
	xff := string(ctx.Request.Header.Peek("X-Forwarded-For"))
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	xri := string(ctx.Request.Header.Peek("X-Real-IP"))
	if xri != "" {
		return xri
	}

	return ctx.RemoteIP().String()
}
