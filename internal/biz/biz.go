// Package biz contains business logic layer implementations.
// This layer holds the core business rules and domain models.
package biz

import (
	"PesaGate/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewPaymentUsecase,
	NewRateLimiterUseCase,
	NewSelfHealer,
	NewReconcileTask,
	NewBreakerRegistry,
	NewHealthMonitor,
	NewResilience,
	// Import data layer providers
	data.NewTransactionRepo,
	data.NewRateLimitRepo,
	data.NewIdempotencyRepo,
	data.NewAuditLogger,
	data.NewWebhookService,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(TransactionRepo), new(*data.TransactionRepo)),
	wire.Bind(new(RateLimitRepo), new(*data.RateLimitRepo)),
	wire.Bind(new(IdempotencyRepo), new(*data.IdempotencyRepo)),
	wire.Bind(new(AuditLogger), new(*data.AuditLoggerImpl)),
	NewWebhookAdapter,
)

// NewWebhookAdapter exposes the data layer webhook service under the
// biz interface. data.NewWebhookService already returns an interface,
// which wire.Bind cannot bind, so a pass-through provider does it.
func NewWebhookAdapter(svc data.WebhookService) WebhookService {
	return svc
}
