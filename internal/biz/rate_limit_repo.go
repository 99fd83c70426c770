package biz

import (
	"context"
)

// RateLimitRepo defines the interface for rate limiting operations.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer.
// Implementation is in data layer (data.RateLimitRepo).
type RateLimitRepo interface {
	// RPM (Requests Per Minute) operations, keyed by provider name
	IncrementRPM(ctx context.Context, provider string) (int32, error)
	GetRPMCount(ctx context.Context, provider string) (int32, error)

	// In-flight payment tracking
	AddInFlight(ctx context.Context, provider, transactionID string, timestamp int64) error
	RemoveInFlight(ctx context.Context, provider, transactionID string) error
	GetInFlightCount(ctx context.Context, provider string) (int32, error)
	CleanupStaleInFlight(ctx context.Context, provider string, expiredBefore int64) error
}
