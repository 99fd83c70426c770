package biz

import (
	"context"

	"PesaGate/internal/model"
)

// TransactionRepo defines the transaction repository interface.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer.
// Implementation is in data layer (data.TransactionRepo).
type TransactionRepo interface {
	Create(ctx context.Context, req *model.PaymentRequest, providerRef string, status model.PaymentStatus) (*model.PaymentResponse, error)
	GetByID(ctx context.Context, id string) (*model.PaymentResponse, error)
	GetByReference(ctx context.Context, reference string) (*model.PaymentResponse, error)
	GetProviderRef(ctx context.Context, id string) (provider string, providerRef string, err error)
	UpdateStatus(ctx context.Context, id string, status model.PaymentStatus, failureReason, receiptURL string) error
	List(ctx context.Context, q *model.TransactionQuery) (*model.TransactionHistory, error)
}

// IdempotencyRepo claims merchant references so a retried request maps
// to the transaction that first claimed it.
type IdempotencyRepo interface {
	Claim(ctx context.Context, reference, transactionID string) (bool, error)
	Owner(ctx context.Context, reference string) (string, error)
	Release(ctx context.Context, reference string) error
}
