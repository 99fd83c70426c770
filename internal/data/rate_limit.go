package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// RateLimitRepo implements biz.RateLimitRepo interface.
// Following Kratos v2 DDD architecture, interface is defined in biz layer.
// Counters are keyed by provider name so each upstream provider's RPM
// ceiling is enforced independently.
type RateLimitRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewRateLimitRepo creates a new rate limit repository.
func NewRateLimitRepo(rdb *redis.Client, logger log.Logger) *RateLimitRepo {
	return &RateLimitRepo{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// IncrementRPM increments the RPM (Requests Per Minute) counter for a provider.
// Uses Redis INCR with automatic expiration (60 seconds) on first increment.
// Returns the new count and any error.
func (r *RateLimitRepo) IncrementRPM(ctx context.Context, provider string) (int32, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	key := getRateLimitKey(provider, "rpm")

	// Increment counter
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment RPM: %w", err)
	}

	// Set expiration on first increment (atomic operation)
	if count == 1 {
		if err := r.rdb.Expire(ctx, key, 60*time.Second).Err(); err != nil {
			r.logger.Warnf("Failed to set RPM expiration for provider %s: %v", provider, err)
			// Don't return error, counter is still incremented
		}
	}

	// Prevent overflow when converting int64 to int32
	if count > 2147483647 {
		count = 2147483647
	}

	return int32(count), nil // #nosec G115 -- overflow is handled above
}

// GetRPMCount retrieves the current RPM count for a provider.
// Returns 0 if key doesn't exist.
func (r *RateLimitRepo) GetRPMCount(ctx context.Context, provider string) (int32, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	key := getRateLimitKey(provider, "rpm")

	count, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		// Key doesn't exist, return 0
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get RPM count: %w", err)
	}

	// Parse count
	countInt, err := strconv.ParseInt(count, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse RPM count: %w", err)
	}

	return int32(countInt), nil
}

// AddInFlight records an in-flight payment against a provider.
// Uses Redis ZADD with the start timestamp as score so stale entries
// can be swept by age.
func (r *RateLimitRepo) AddInFlight(ctx context.Context, provider, transactionID string, timestamp int64) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	key := getInFlightKey(provider)

	if err := r.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(timestamp),
		Member: transactionID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add in-flight payment: %w", err)
	}

	return nil
}

// RemoveInFlight clears an in-flight payment once it reaches a final
// status. Uses Redis ZREM.
func (r *RateLimitRepo) RemoveInFlight(ctx context.Context, provider, transactionID string) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	key := getInFlightKey(provider)

	if err := r.rdb.ZRem(ctx, key, transactionID).Err(); err != nil {
		return fmt.Errorf("failed to remove in-flight payment: %w", err)
	}

	return nil
}

// GetInFlightCount retrieves the current in-flight payment count for a
// provider. Uses Redis ZCARD.
func (r *RateLimitRepo) GetInFlightCount(ctx context.Context, provider string) (int32, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	key := getInFlightKey(provider)

	count, err := r.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get in-flight count: %w", err)
	}

	// Prevent overflow when converting int64 to int32
	if count > 2147483647 {
		count = 2147483647
	}

	return int32(count), nil // #nosec G115 -- overflow is handled above
}

// CleanupStaleInFlight removes in-flight entries older than
// expiredBefore. Reconciliation runs this so payments abandoned
// mid-flight do not pin the concurrency count forever.
// Uses Redis ZREMRANGEBYSCORE.
func (r *RateLimitRepo) CleanupStaleInFlight(ctx context.Context, provider string, expiredBefore int64) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	key := getInFlightKey(provider)

	removedCount, err := r.rdb.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(expiredBefore, 10)).Result()
	if err != nil {
		return fmt.Errorf("failed to cleanup stale in-flight payments: %w", err)
	}

	if removedCount > 0 {
		r.logger.Debugw("Cleaned up stale in-flight payments",
			"provider", provider,
			"removed_count", removedCount)
	}

	return nil
}

// getRateLimitKey generates a Redis key for rate limiting.
// Format: rate:{provider}:{type}
// Example: rate:mpesa:rpm
func getRateLimitKey(provider, limitType string) string {
	return fmt.Sprintf("rate:%s:%s", provider, limitType)
}

// getInFlightKey generates a Redis key for in-flight payment tracking.
// Format: inflight:{provider}
// Example: inflight:mpesa
func getInFlightKey(provider string) string {
	return fmt.Sprintf("inflight:%s", provider)
}
