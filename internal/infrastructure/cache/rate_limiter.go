package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitPrefix = "ratelimit:"

// BidRateLimiter throttles bid submissions per bidder with a sliding
// window over a redis sorted set, so every API instance shares the same
// window.
type BidRateLimiter struct {
	client *redis.Client
	logger *zap.Logger
	limit  int
	window time.Duration
}

// NewBidRateLimiter builds a limiter allowing limit submissions per
// window per key.
func NewBidRateLimiter(client *redis.Client, logger *zap.Logger, limit int, window time.Duration) *BidRateLimiter {
	return &BidRateLimiter{client: client, logger: logger, limit: limit, window: window}
}

// Allow records an attempt and reports whether it fits in the window.
func (r *BidRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-r.window)
	rateLimitKey := rateLimitPrefix + key

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, rateLimitKey, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, rateLimitKey)
	member := fmt.Sprintf("%d-%d", now.UnixNano(), now.Nanosecond()%1000)
	pipe.ZAdd(ctx, rateLimitKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	})
	pipe.Expire(ctx, rateLimitKey, r.window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter pipeline: %w", err)
	}

	// countCmd ran before the ZAdd, so it is the count excluding this
	// attempt.
	if countCmd.Val() >= int64(r.limit) {
		r.client.ZRem(ctx, rateLimitKey, member)
		r.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", countCmd.Val()),
			zap.Int("limit", r.limit))
		return false, nil
	}
	return true, nil
}
