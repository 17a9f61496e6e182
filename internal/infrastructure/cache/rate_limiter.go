package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisRateLimiter counts requests per key in a fixed window shared across
// API replicas. The window opens with the first request for a key and
// closes when its counter expires.
type redisRateLimiter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisRateLimiter creates a new Redis-based rate limiter
func NewRedisRateLimiter(client *redis.Client, logger *zap.Logger) RateLimiter {
	return &redisRateLimiter{client: client, logger: logger}
}

// Allow counts the request and reports whether it fits in the window
func (r *redisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rateLimitKey := RateLimitPrefix + key

	pipe := r.client.TxPipeline()
	countCmd := pipe.Incr(ctx, rateLimitKey)
	ttlCmd := pipe.PTTL(ctx, rateLimitKey)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("rate limiter pipeline failed",
			zap.String("key", key),
			zap.Int("limit", limit),
			zap.Duration("window", window),
			zap.Error(err))
		return false, fmt.Errorf("rate limiter pipeline failed: %w", err)
	}

	// a new counter, or one whose expiry was never set, opens the window
	if ttlCmd.Val() < 0 {
		if err := r.client.PExpire(ctx, rateLimitKey, window).Err(); err != nil {
			r.logger.Error("rate limiter expire failed", zap.String("key", key), zap.Error(err))
			return false, fmt.Errorf("rate limiter expire failed: %w", err)
		}
	}

	if countCmd.Val() > int64(limit) {
		r.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("current_count", countCmd.Val()),
			zap.Int("limit", limit))
		return false, nil
	}
	return true, nil
}

// Remaining returns how many requests are left in the current window
func (r *redisRateLimiter) Remaining(ctx context.Context, key string, limit int, _ time.Duration) (int, error) {
	count, err := r.client.Get(ctx, RateLimitPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rate limiter count failed: %w", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
