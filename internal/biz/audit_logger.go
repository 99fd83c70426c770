package biz

import (
	"context"
	"time"

	"PesaGate/internal/model"
)

// AuditLogger defines the interface for audit logging
type AuditLogger interface {
	// LogPaymentInitiated logs a newly accepted payment
	LogPaymentInitiated(ctx context.Context, reference, provider, transactionID, amount, currency string)

	// LogPaymentFinalized logs a payment reaching a final status
	LogPaymentFinalized(ctx context.Context, reference, provider string, status model.PaymentStatus, failureReason string)

	// LogRefundRequested logs a refund request
	LogRefundRequested(ctx context.Context, reference, provider, amount, reason string)

	// LogCircuitBroken logs circuit breaker triggered event
	LogCircuitBroken(ctx context.Context, provider string, failureCount int, brokenAt time.Time)

	// LogCircuitRecovered logs circuit breaker recovered event
	LogCircuitRecovered(ctx context.Context, provider string, healingAttempts int, recoveredAt time.Time)

	// LogFailoverSignaled logs a failover signal toward a backup provider
	LogFailoverSignaled(ctx context.Context, provider, targetBackup string, signaledAt time.Time)

	// LogHealingReset logs a manual reset of a provider's healing budget
	LogHealingReset(ctx context.Context, provider, operator string, previousAttempts int)
}
