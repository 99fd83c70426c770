package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// RateLimiterUseCase enforces per-provider request ceilings.
// Providers publish RPM limits for their sandbox and production tiers;
// tripping them upstream burns the whole gateway, so the limit is
// enforced here before a request leaves the process. Counters live in
// Redis so all gateway instances share one window.
type RateLimiterUseCase struct {
	repo   RateLimitRepo
	logger *log.Helper
}

// NewRateLimiterUseCase creates a new rate limiter use case.
func NewRateLimiterUseCase(repo RateLimitRepo, logger log.Logger) *RateLimiterUseCase {
	return &RateLimiterUseCase{
		repo:   repo,
		logger: log.NewHelper(logger),
	}
}

// RateLimitExceededError represents a rate limit exceeded error with retry information.
type RateLimitExceededError struct {
	LimitType    string // "RPM" or "InFlight"
	CurrentCount int32  // Current count
	Limit        int32  // Configured limit
	RetryAfter   int64  // Seconds until retry is allowed
}

// Error implements the error interface.
func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s current=%d limit=%d retry_after=%ds",
		e.LimitType, e.CurrentCount, e.Limit, e.RetryAfter)
}

// newRateLimitExceededError creates a kratos 429 error from the limit details.
func newRateLimitExceededError(limitType string, current, limit int32, retryAfter int64) error {
	return errors.New(
		429, // HTTP 429 Too Many Requests
		fmt.Sprintf("RATE_LIMIT_EXCEEDED_%s", limitType),
		fmt.Sprintf("rate limit exceeded: %s current=%d limit=%d retry_after=%ds",
			limitType, current, limit, retryAfter),
	)
}

// CheckRPM checks if the provider has exceeded its RPM (Requests Per Minute) limit.
// It uses Redis INCR with fixed window rate limiting algorithm.
// Returns error if limit is exceeded, nil otherwise.
// Redis degradation: on Redis failure, logs warning and allows request (graceful degradation).
func (uc *RateLimiterUseCase) CheckRPM(ctx context.Context, provider string, rpmLimit int32) error {
	if rpmLimit <= 0 {
		// No limit configured, allow request
		return nil
	}

	// Increment RPM counter
	count, err := uc.repo.IncrementRPM(ctx, provider)
	if err != nil {
		// Redis failure: log warning and allow request (graceful degradation)
		uc.logger.Warnf("Redis RPM check failed for provider %s: %v (request allowed)", provider, err)
		return nil
	}

	// Check if limit exceeded
	if count > rpmLimit {
		uc.logger.Warnw("RPM limit exceeded",
			"provider", provider,
			"current", count,
			"limit", rpmLimit,
			"type", "rate_limit")
		return newRateLimitExceededError("RPM", count, rpmLimit, 60)
	}

	return nil
}

// TrackInFlight records a pending payment against a provider. The
// entry is cleared by ReleaseInFlight when the payment reaches a final
// status, or swept by reconciliation when abandoned.
// Redis degradation: tracking is best-effort and never blocks a payment.
func (uc *RateLimiterUseCase) TrackInFlight(ctx context.Context, provider, transactionID string) {
	timestamp := time.Now().Unix()
	if err := uc.repo.AddInFlight(ctx, provider, transactionID, timestamp); err != nil {
		uc.logger.Warnf("Redis in-flight add failed for provider %s: %v", provider, err)
	}
}

// ReleaseInFlight clears a finished payment from the in-flight set.
func (uc *RateLimiterUseCase) ReleaseInFlight(ctx context.Context, provider, transactionID string) {
	if err := uc.repo.RemoveInFlight(ctx, provider, transactionID); err != nil {
		uc.logger.Warnf("Redis in-flight remove failed for provider %s: %v", provider, err)
	}
}

// InFlightCount returns the number of pending payments on a provider.
// Status reporting uses this; a Redis failure reports zero.
func (uc *RateLimiterUseCase) InFlightCount(ctx context.Context, provider string) int32 {
	count, err := uc.repo.GetInFlightCount(ctx, provider)
	if err != nil {
		uc.logger.Warnf("Redis in-flight count failed for provider %s: %v", provider, err)
		return 0
	}
	return count
}

// SweepStaleInFlight drops in-flight entries older than maxAge.
// Called from the reconciliation task.
func (uc *RateLimiterUseCase) SweepStaleInFlight(ctx context.Context, provider string, maxAge time.Duration) {
	expiredBefore := time.Now().Add(-maxAge).Unix()
	if err := uc.repo.CleanupStaleInFlight(ctx, provider, expiredBefore); err != nil {
		uc.logger.Warnf("Redis in-flight sweep failed for provider %s: %v", provider, err)
	}
}
