// Package data provides data access layer implementations.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache key prefixes. Every Redis key used by the gateway is built
// from one of these through BuildCacheKey.
const (
	// CacheKeyPayment is the prefix for payment status caches: payment:{reference}
	CacheKeyPayment = "payment"
	// CacheKeyIdempotency is the prefix for idempotency locks: idem:{reference}
	CacheKeyIdempotency = "idem"
	// CacheKeyRate is the prefix for rate limit counters: rate:{provider}:{window}
	CacheKeyRate = "rate"
	// CacheKeyProviderHealth is the prefix for provider health snapshots: provhealth:{name}
	CacheKeyProviderHealth = "provhealth"
	// CacheKeyReconcile is the prefix for reconciliation bookmarks: reconcile:{provider}
	CacheKeyReconcile = "reconcile"
)

// Cache TTL durations.
const (
	// TTLPayment is the TTL for payment status caches (2 minutes).
	// Status polling goes to the provider when the cache misses, so a
	// short TTL keeps pending payments fresh.
	TTLPayment = 2 * time.Minute
	// TTLFinalPayment is the TTL for payments in a final state (1 hour).
	TTLFinalPayment = 1 * time.Hour
	// TTLIdempotency is the TTL for idempotency locks (24 hours)
	TTLIdempotency = 24 * time.Hour
	// TTLRate is the TTL for rate limit counters (1 minute)
	TTLRate = 1 * time.Minute
	// TTLProviderHealth is the TTL for provider health snapshots (1 minute)
	TTLProviderHealth = 1 * time.Minute
)

// ErrCacheNotFound is returned when a cache key does not exist
var ErrCacheNotFound = errors.New("cache: key not found")

// CacheClient defines the interface for cache operations.
// Implementations must be thread-safe and handle serialization/deserialization.
type CacheClient interface {
	// Get retrieves a value from cache and deserializes it into dest.
	// Returns ErrCacheNotFound if key doesn't exist.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value in cache with the specified TTL.
	// The value is serialized to JSON before storage.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key from cache.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache.
	Exists(ctx context.Context, key string) (bool, error)
}

// redisCache is the Redis-based implementation of CacheClient.
type redisCache struct {
	client *redis.Client
}

// NewCacheClient creates a new Redis-based cache client.
// If the Redis client is nil, cache operations will gracefully fail.
func NewCacheClient(rdb *redis.Client) CacheClient {
	return &redisCache{
		client: rdb,
	}
}

// Get retrieves a value from cache and deserializes it into dest.
// Returns ErrCacheNotFound if the key doesn't exist (redis.Nil).
func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache: failed to get key %s: %w", key, err)
	}

	// Deserialize JSON into dest
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}

	return nil
}

// Set stores a value in cache with the specified TTL.
// The value is serialized to JSON before storage.
func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	// Serialize value to JSON
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}

	// Store in Redis with TTL
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set key %s: %w", key, err)
	}

	return nil
}

// Delete removes a key from cache.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete key %s: %w", key, err)
	}

	return nil
}

// Exists checks if a key exists in cache.
func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.client == nil {
		return false, errors.New("cache: redis client is nil")
	}

	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to check existence of key %s: %w", key, err)
	}

	return count > 0, nil
}

// BuildCacheKey constructs a cache key with the appropriate prefix.
// Examples:
//   - BuildCacheKey(CacheKeyPayment, "ORDER-001") -> "payment:ORDER-001"
//   - BuildCacheKey(CacheKeyRate, "mpesa", "rpm") -> "rate:mpesa:rpm"
func BuildCacheKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}
