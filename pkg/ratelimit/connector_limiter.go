// Package ratelimit guards outbound provider API calls against quota exhaustion.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Provider Quota Protection
// Order: Semaphore -> Rate Limiter -> API
// =============================================================================

// Config holds quota guard configuration.
type Config struct {
	// Semaphore: limit on concurrent in-flight calls
	MaxConcurrent int

	// Rate Limiter: calls per second, per key (usually per user email)
	RequestsPerSecond int
	BurstSize         int
}

// DefaultConfig returns defaults sized for Google per-user quotas.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:     100,
		RequestsPerSecond: 10,
		BurstSize:         20,
	}
}

// =============================================================================
// QuotaGuard
// =============================================================================

// QuotaGuard combines a concurrency semaphore with a Redis sliding window
// limiter. Keys are per principal so one mailbox cannot starve another.
type QuotaGuard struct {
	config      *Config
	semaphore   chan struct{}
	rateLimiter *SlidingWindowLimiter
	redis       *redis.Client
	mu          sync.RWMutex
}

// NewQuotaGuard creates a new quota guard.
func NewQuotaGuard(redisClient *redis.Client, config *Config) *QuotaGuard {
	if config == nil {
		config = DefaultConfig()
	}

	return &QuotaGuard{
		config:      config,
		semaphore:   make(chan struct{}, config.MaxConcurrent),
		rateLimiter: NewSlidingWindowLimiter(redisClient, config.RequestsPerSecond, config.BurstSize),
		redis:       redisClient,
	}
}

// AcquireResult contains the result of an acquire attempt.
type AcquireResult struct {
	Allowed      bool
	Reason       string
	ShouldWait   bool
	WaitDuration time.Duration
}

// Acquire tries to acquire permission for one provider call.
// Returns a release function that must be called after the call completes.
func (g *QuotaGuard) Acquire(ctx context.Context, key string) (*AcquireResult, func()) {
	// 1. Semaphore check (concurrent call limit)
	select {
	case g.semaphore <- struct{}{}:
		// acquired
	default:
		return &AcquireResult{
			Allowed: false,
			Reason:  "too many concurrent requests",
		}, nil
	}

	releaseFunc := func() {
		<-g.semaphore
	}

	// 2. Rate limiter check (calls per second per key)
	allowed, waitDuration := g.rateLimiter.Allow(ctx, key)
	if !allowed {
		releaseFunc()
		return &AcquireResult{
			Allowed:      false,
			Reason:       "rate limit exceeded",
			ShouldWait:   waitDuration > 0,
			WaitDuration: waitDuration,
		}, nil
	}

	return &AcquireResult{Allowed: true}, releaseFunc
}

// AcquireWithWait tries to acquire, waiting out the limiter once if needed.
func (g *QuotaGuard) AcquireWithWait(ctx context.Context, key string, maxWait time.Duration) (*AcquireResult, func()) {
	result, release := g.Acquire(ctx, key)

	if !result.Allowed && result.ShouldWait && result.WaitDuration <= maxWait {
		select {
		case <-time.After(result.WaitDuration):
			return g.Acquire(ctx, key)
		case <-ctx.Done():
			return &AcquireResult{
				Allowed: false,
				Reason:  "context cancelled",
			}, nil
		}
	}

	return result, release
}

// =============================================================================
// SlidingWindowLimiter - Redis-backed sliding window
// =============================================================================

// SlidingWindowLimiter implements sliding window rate limiting using Redis.
type SlidingWindowLimiter struct {
	redis     *redis.Client
	rate      int           // requests per window
	window    time.Duration // window size
	burstSize int           // allowed burst
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
func NewSlidingWindowLimiter(redisClient *redis.Client, requestsPerSecond, burstSize int) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:     redisClient,
		rate:      requestsPerSecond,
		window:    time.Second,
		burstSize: burstSize,
	}
}

// Allow checks if a call is allowed and returns the wait duration if not.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l.redis == nil {
		// No Redis: allow (fallback)
		return true, 0
	}

	now := time.Now()
	windowStart := now.Add(-l.window)
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	// Lua script for atomic sliding window check
	script := redis.NewScript(`
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local max_requests = tonumber(ARGV[3])
		local window_ms = tonumber(ARGV[4])

		-- Remove old entries
		redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

		-- Count current requests
		local count = redis.call('ZCARD', key)

		if count < max_requests then
			-- Add new request
			redis.call('ZADD', key, now, now .. '-' .. math.random())
			redis.call('PEXPIRE', key, window_ms * 2)
			return 1
		else
			-- Get oldest entry to calculate wait time
			local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
			if #oldest > 0 then
				return -(oldest[2] + window_ms - now)
			end
			return 0
		end
	`)

	result, err := script.Run(ctx, l.redis, []string{redisKey},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		l.rate+l.burstSize,
		l.window.Milliseconds(),
	).Int64()

	if err != nil {
		// Allow on Redis errors (fallback)
		return true, 0
	}

	if result == 1 {
		return true, 0
	}

	// result is negative wait time in milliseconds
	if result < 0 {
		return false, time.Duration(-result) * time.Millisecond
	}

	return false, l.window
}
