package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// IdempotencyRepo claims merchant references atomically so the same
// payment request submitted twice never reaches a provider twice.
// Claims expire after TTLIdempotency; the unique index on
// transactions.reference remains the durable backstop.
type IdempotencyRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewIdempotencyRepo creates a new idempotency repository.
func NewIdempotencyRepo(rdb *redis.Client, logger log.Logger) *IdempotencyRepo {
	return &IdempotencyRepo{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// Claim atomically claims a reference and records the transaction ID
// that owns it. Uses SetNX; returns false if the reference was already
// claimed. A nil Redis client claims nothing and defers entirely to
// the database unique index.
func (r *IdempotencyRepo) Claim(ctx context.Context, reference, transactionID string) (bool, error) {
	if r.rdb == nil {
		return true, nil
	}

	key := BuildCacheKey(CacheKeyIdempotency, reference)
	ok, err := r.rdb.SetNX(ctx, key, transactionID, TTLIdempotency).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim reference %s: %w", reference, err)
	}

	if !ok {
		r.logger.Debugw("reference already claimed", "reference", reference)
	}
	return ok, nil
}

// Owner returns the transaction ID that claimed a reference, or empty
// when no claim exists.
func (r *IdempotencyRepo) Owner(ctx context.Context, reference string) (string, error) {
	if r.rdb == nil {
		return "", nil
	}

	key := BuildCacheKey(CacheKeyIdempotency, reference)
	val, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up reference %s: %w", reference, err)
	}
	return val, nil
}

// Release frees a claim. Called when the provider call fails before a
// transaction row was written, so the client may retry the reference.
func (r *IdempotencyRepo) Release(ctx context.Context, reference string) error {
	if r.rdb == nil {
		return nil
	}

	key := BuildCacheKey(CacheKeyIdempotency, reference)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release reference %s: %w", reference, err)
	}
	return nil
}
