package biz

import (
	"context"

	"PesaGate/internal/model"
)

// WebhookService defines the interface for webhook notifications
type WebhookService interface {
	// NotifyCircuitBroken sends notification when circuit breaker is triggered
	NotifyCircuitBroken(ctx context.Context, event *model.CircuitBrokenEvent) error

	// NotifyCircuitRecovered sends notification when circuit breaker recovers
	NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error

	// NotifyFailover sends notification when traffic is redirected to a backup
	NotifyFailover(ctx context.Context, event *model.FailoverEvent) error
}
