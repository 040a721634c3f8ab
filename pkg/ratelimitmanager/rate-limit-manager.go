package ratelimitmanager

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"tarpit/pkg/models"
	"tarpit/pkg/ratelimit"
	"tarpit/pkg/utils/logger"

	"github.com/valyala/fasthttp"
)

const (
	healthCheckInterval = 30 * time.Second
	backendTimeout      = 2 * time.Second
)

// RateLimitManager decides whether a request is throttled into the blocked
// scenario. A nil manager allows everything.
type RateLimitManager struct {
	limiter      ratelimit.IRateLimiter
	config       *models.RateLimitConfig
	logger       *logger.Logger
	healthTicker *time.Ticker
	stopChan     chan struct{}
	closeOnce    sync.Once
}

// NewRateLimitManager wraps limiter and starts periodic health monitoring.
func NewRateLimitManager(limiter ratelimit.IRateLimiter, config *models.RateLimitConfig, logger *logger.Logger) *RateLimitManager {
	manager := &RateLimitManager{
		limiter:  limiter,
		config:   config,
		logger:   logger,
		stopChan: make(chan struct{}),
	}

	manager.startHealthMonitoring()

	return manager
}

// Check consumes a token for the client behind ctx.
func (rlm *RateLimitManager) Check(ctx *fasthttp.RequestCtx) *ratelimit.RateLimitResult {
	if rlm == nil || rlm.limiter == nil || rlm.config == nil || !rlm.config.Enabled {
		return &ratelimit.RateLimitResult{Allowed: true, Remaining: -1, Limit: -1}
	}

	key := ratelimit.BuildKey(ctx, rlm.config)
	if key == "" {
		rlm.logger.Warn("Cannot derive rate limit key, allowing request")
		return &ratelimit.RateLimitResult{Allowed: true, Remaining: -1, Limit: -1}
	}

	backendCtx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	allowed, remaining, retryAt := rlm.limiter.Allow(backendCtx, key)
	cancel()
	limit := *rlm.config.Requests

	if allowed {
		rlm.logger.Debug(fmt.Sprintf("Rate limit check passed for key '%s': %d/%d remaining", key, remaining, limit))
	} else {
		rlm.logger.Warn(fmt.Sprintf("Rate limit exceeded for key '%s', retry at %s", key, retryAt.Format(time.RFC3339)))
	}

	return &ratelimit.RateLimitResult{
		Allowed:   allowed,
		Remaining: remaining,
		RetryAt:   retryAt,
		Limit:     limit,
		Key:       key,
	}
}

// SetHeaders writes the rate limit headers. Retry-After is only set on
// denied requests and is rounded up to whole seconds.
func (rlm *RateLimitManager) SetHeaders(ctx *fasthttp.RequestCtx, result *ratelimit.RateLimitResult) {
	if result == nil || result.Limit < 0 {
		return
	}

	ctx.Response.Header.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
	ctx.Response.Header.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

	if !result.Allowed {
		secs := max(int(math.Ceil(time.Until(result.RetryAt).Seconds())), 0)
		ctx.Response.Header.Set("Retry-After", strconv.Itoa(secs))
	}
}

func (rlm *RateLimitManager) startHealthMonitoring() {
	if rlm.limiter == nil {
		return
	}

	rlm.healthTicker = time.NewTicker(healthCheckInterval)

	go func() {
		for {
			select {
			case <-rlm.healthTicker.C:
				rlm.performHealthCheck()
			case <-rlm.stopChan:
				return
			}
		}
	}()
}

func (rlm *RateLimitManager) performHealthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()

	if err := rlm.limiter.Health(ctx); err != nil {
		rlm.logger.Error(fmt.Sprintf("Rate limiter health check failed: %v", err))
	}
}

func (rlm *RateLimitManager) Close() error {
	if rlm == nil {
		return nil
	}

	var err error
	rlm.closeOnce.Do(func() {
		if rlm.healthTicker != nil {
			rlm.healthTicker.Stop()
		}
		close(rlm.stopChan)
		if rlm.limiter != nil {
			err = rlm.limiter.Close()
		}
	})
	return err
}
