package biz

import (
	"context"
	"errors"
	"fmt"

	"PesaGate/internal/adapter"
	"PesaGate/internal/conf"
	"PesaGate/internal/data"
	"PesaGate/internal/model"
	"PesaGate/pkg/breaker"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// claimPending marks a reference whose transaction has not been
// persisted yet. Lookup falls back to the reference itself.
const claimPending = "pending"

// RefundResponse is the gateway's answer to a refund request.
type RefundResponse struct {
	TransactionID string              `json:"transactionId"`
	RefundRef     string              `json:"refundRef"`
	Status        model.PaymentStatus `json:"status"`
	Amount        decimal.Decimal     `json:"amount"`
	Provider      string              `json:"provider"`
}

func errUnknownProvider(name string) error {
	return kerrors.New(400, "UNKNOWN_PROVIDER", fmt.Sprintf("no adapter registered for provider %q", name))
}

func errProviderUnavailable(provider string, cause error) error {
	return kerrors.New(503, "PROVIDER_UNAVAILABLE", fmt.Sprintf("provider %s unavailable: %v", provider, cause))
}

func errTransactionNotFound(id string) error {
	return kerrors.New(404, "TRANSACTION_NOT_FOUND", fmt.Sprintf("transaction %s not found", id))
}

// PaymentUsecase orchestrates the payment lifecycle: provider
// selection, idempotency claims, rate limiting, the breaker-wrapped
// adapter call and persistence. Every external hop it makes is owned
// by a collaborator; this type only sequences them.
type PaymentUsecase struct {
	adapters *adapter.Registry
	breakers *breaker.Registry
	healer   *SelfHealer
	repo     TransactionRepo
	idem     IdempotencyRepo
	limiter  *RateLimiterUseCase
	audit    AuditLogger
	logger   *log.Helper

	defaultProvider string
	rpmLimits       map[string]int32
}

// NewPaymentUsecase creates the payment orchestrator.
func NewPaymentUsecase(
	c *conf.Bootstrap,
	adapters *adapter.Registry,
	breakers *breaker.Registry,
	healer *SelfHealer,
	repo TransactionRepo,
	idem IdempotencyRepo,
	limiter *RateLimiterUseCase,
	audit AuditLogger,
	logger log.Logger,
) *PaymentUsecase {
	rpmLimits := make(map[string]int32)
	for _, p := range c.Providers {
		rpmLimits[p.Name] = p.RpmLimit
	}

	return &PaymentUsecase{
		adapters:        adapters,
		breakers:        breakers,
		healer:          healer,
		repo:            repo,
		idem:            idem,
		limiter:         limiter,
		audit:           audit,
		logger:          log.NewHelper(logger),
		defaultProvider: c.Gateway.DefaultProvider,
		rpmLimits:       rpmLimits,
	}
}

// Initiate accepts a payment request, routes it to a provider and
// persists the resulting transaction. Retried requests carrying an
// already-claimed reference return the transaction that first claimed
// it instead of charging the customer twice.
func (uc *PaymentUsecase) Initiate(ctx context.Context, req *model.PaymentRequest) (*model.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, kerrors.New(400, "INVALID_REQUEST", err.Error())
	}

	provider, err := uc.resolveProvider(req.Provider)
	if err != nil {
		return nil, err
	}
	// Persisted rows carry the provider that actually took the payment.
	req.Provider = provider

	if err := uc.limiter.CheckRPM(ctx, provider, uc.rpmLimits[provider]); err != nil {
		return nil, err
	}

	won, err := uc.idem.Claim(ctx, req.Reference, claimPending)
	if err != nil {
		return nil, kerrors.New(500, "IDEMPOTENCY_ERROR", err.Error())
	}
	if !won {
		return uc.existingTransaction(ctx, req.Reference)
	}

	ad, err := uc.adapters.Get(provider)
	if err != nil {
		uc.releaseClaim(ctx, req.Reference)
		return nil, errUnknownProvider(provider)
	}

	result, err := uc.callInitiate(ctx, provider, ad, req)
	if err != nil {
		return uc.initiateFailed(ctx, req, provider, err)
	}

	resp, err := uc.repo.Create(ctx, req, result.ProviderRef, result.Status)
	if err != nil {
		// Duplicate key means another instance persisted the reference
		// between our claim and our insert.
		if existing, lookupErr := uc.repo.GetByReference(ctx, req.Reference); lookupErr == nil {
			return existing, nil
		}
		return nil, kerrors.New(500, "PERSIST_FAILED", err.Error())
	}

	if resp.Status == model.StatusPending {
		uc.limiter.TrackInFlight(ctx, provider, resp.TransactionID)
	}
	uc.audit.LogPaymentInitiated(ctx, resp.Reference, provider, resp.TransactionID, resp.Amount.String(), resp.Currency)

	uc.logger.Infow("payment initiated",
		"transaction_id", resp.TransactionID,
		"reference", resp.Reference,
		"provider", provider,
		"amount", resp.Amount.String(),
		"currency", resp.Currency,
		"type", "success")

	return resp, nil
}

// resolveProvider picks the effective provider: the requested one (or
// the configured default), redirected to its signaled backup when the
// self-healer has failed it over.
func (uc *PaymentUsecase) resolveProvider(requested string) (string, error) {
	name := requested
	if name == "" {
		name = uc.defaultProvider
	}
	if !uc.adapters.Has(name) {
		return "", errUnknownProvider(name)
	}

	if target, ok := uc.healer.FailoverTarget(name); ok && uc.adapters.Has(target) {
		uc.logger.Warnw("routing to backup provider",
			"provider", name,
			"target_backup", target,
			"type", "failover")
		return target, nil
	}

	return name, nil
}

// callInitiate runs the adapter call through the provider's circuit
// breaker. Business rejections from the provider do not open the
// breaker; only transient failures count as outages.
func (uc *PaymentUsecase) callInitiate(ctx context.Context, provider string, ad adapter.Adapter, req *model.PaymentRequest) (*adapter.InitiateResult, error) {
	cb := uc.breakers.GetOrCreate(provider)

	var businessErr error
	out, err := cb.Execute(ctx, func(ctx context.Context) (any, error) {
		res, callErr := ad.Initiate(ctx, req)
		if callErr != nil && !adapter.IsTransient(callErr) {
			businessErr = callErr
			return nil, nil
		}
		return res, callErr
	})
	if err != nil {
		return nil, err
	}
	if businessErr != nil {
		return nil, businessErr
	}

	return out.(*adapter.InitiateResult), nil
}

// existingTransaction resolves an already-claimed reference to its
// transaction.
func (uc *PaymentUsecase) existingTransaction(ctx context.Context, reference string) (*model.PaymentResponse, error) {
	owner, err := uc.idem.Owner(ctx, reference)
	if err == nil && owner != "" && owner != claimPending {
		if resp, lookupErr := uc.repo.GetByID(ctx, owner); lookupErr == nil {
			return resp, nil
		}
	}

	resp, err := uc.repo.GetByReference(ctx, reference)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, data.ErrTransactionNotFound) {
		// Claimed but not yet persisted: another request is mid-flight.
		return nil, kerrors.New(409, "DUPLICATE_REFERENCE", fmt.Sprintf("payment with reference %q is already in progress", reference))
	}
	return nil, kerrors.New(500, "LOOKUP_FAILED", err.Error())
}

// initiateFailed maps a provider failure. Transient outages and open
// breakers release the claim so a retry can go through; definitive
// business rejections are persisted as failed transactions so they
// appear in the merchant's history.
func (uc *PaymentUsecase) initiateFailed(ctx context.Context, req *model.PaymentRequest, provider string, err error) (*model.PaymentResponse, error) {
	var openErr *breaker.OpenError
	if errors.As(err, &openErr) {
		uc.releaseClaim(ctx, req.Reference)
		e := kerrors.New(503, "CIRCUIT_OPEN", fmt.Sprintf("provider %s circuit open, retry after %s", provider, openErr.RetryAfter))
		return nil, e.WithMetadata(map[string]string{"retryAfter": openErr.RetryAfter.String()})
	}

	if adapter.IsTransient(err) {
		uc.releaseClaim(ctx, req.Reference)
		uc.logger.Errorw("provider call failed",
			"provider", provider,
			"reference", req.Reference,
			"error", err.Error(),
			"type", "circuit")
		return nil, errProviderUnavailable(provider, err)
	}

	if errors.Is(err, adapter.ErrInvalidRequest) || errors.Is(err, adapter.ErrInsufficientFunds) {
		resp, persistErr := uc.repo.Create(ctx, req, "", model.StatusFailed)
		if persistErr != nil {
			uc.releaseClaim(ctx, req.Reference)
			return nil, kerrors.New(500, "PERSIST_FAILED", persistErr.Error())
		}
		resp.FailureReason = err.Error()
		uc.audit.LogPaymentInitiated(ctx, resp.Reference, provider, resp.TransactionID, resp.Amount.String(), resp.Currency)
		uc.audit.LogPaymentFinalized(ctx, resp.Reference, provider, model.StatusFailed, err.Error())
		return resp, nil
	}

	// Credentials or anything else unexpected: our problem, not the
	// customer's.
	uc.releaseClaim(ctx, req.Reference)
	uc.logger.Errorw("provider rejected call",
		"provider", provider,
		"reference", req.Reference,
		"error", err.Error(),
		"type", "error")
	return nil, kerrors.New(502, "PROVIDER_ERROR", err.Error())
}

func (uc *PaymentUsecase) releaseClaim(ctx context.Context, reference string) {
	if err := uc.idem.Release(ctx, reference); err != nil {
		uc.logger.Warnw("failed to release idempotency claim", "reference", reference, "error", err.Error(), "type", "warning")
	}
}

// GetStatus returns the current state of a transaction. Pending
// transactions are refreshed against the provider; if the provider
// cannot be reached the stored state is returned as-is.
func (uc *PaymentUsecase) GetStatus(ctx context.Context, transactionID string) (*model.PaymentResponse, error) {
	resp, err := uc.repo.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, data.ErrTransactionNotFound) {
			return nil, errTransactionNotFound(transactionID)
		}
		return nil, kerrors.New(500, "LOOKUP_FAILED", err.Error())
	}

	if resp.Status.IsFinal() {
		return resp, nil
	}

	refreshed, err := uc.refreshFromProvider(ctx, resp)
	if err != nil {
		// Stale-but-available beats an error for a status read.
		uc.logger.Warnw("provider status refresh failed",
			"transaction_id", transactionID,
			"provider", resp.Provider,
			"error", err.Error(),
			"type", "warning")
		return resp, nil
	}
	return refreshed, nil
}

// refreshFromProvider polls the provider for a pending transaction and
// persists any status change.
func (uc *PaymentUsecase) refreshFromProvider(ctx context.Context, resp *model.PaymentResponse) (*model.PaymentResponse, error) {
	provider, providerRef, err := uc.repo.GetProviderRef(ctx, resp.TransactionID)
	if err != nil {
		return nil, err
	}
	if providerRef == "" {
		return resp, nil
	}

	ad, err := uc.adapters.Get(provider)
	if err != nil {
		return nil, err
	}

	cb := uc.breakers.GetOrCreate(provider)
	out, err := cb.Execute(ctx, func(ctx context.Context) (any, error) {
		return ad.Status(ctx, providerRef)
	})
	if err != nil {
		return nil, err
	}
	result := out.(*adapter.StatusResult)

	if result.Status == resp.Status || !result.Status.IsFinal() {
		return resp, nil
	}

	failureReason := ""
	if result.Status == model.StatusFailed {
		failureReason = result.Message
	}
	if err := uc.repo.UpdateStatus(ctx, resp.TransactionID, result.Status, failureReason, ""); err != nil {
		return nil, err
	}

	uc.limiter.ReleaseInFlight(ctx, provider, resp.TransactionID)
	uc.audit.LogPaymentFinalized(ctx, resp.Reference, provider, result.Status, failureReason)

	uc.logger.Infow("payment finalized",
		"transaction_id", resp.TransactionID,
		"reference", resp.Reference,
		"provider", provider,
		"status", string(result.Status),
		"type", "success")

	updated := *resp
	updated.Status = result.Status
	updated.FailureReason = failureReason
	return &updated, nil
}

// List returns a filtered page of transaction history.
func (uc *PaymentUsecase) List(ctx context.Context, q *model.TransactionQuery) (*model.TransactionHistory, error) {
	q.Normalize()

	history, err := uc.repo.List(ctx, q)
	if err != nil {
		return nil, kerrors.New(500, "LOOKUP_FAILED", err.Error())
	}
	return history, nil
}

// Refund reverses a successful payment, fully or partially. Only
// transactions that reached success can be refunded.
func (uc *PaymentUsecase) Refund(ctx context.Context, req *model.RefundRequest) (*RefundResponse, error) {
	resp, err := uc.repo.GetByID(ctx, req.TransactionID)
	if err != nil {
		if errors.Is(err, data.ErrTransactionNotFound) {
			return nil, errTransactionNotFound(req.TransactionID)
		}
		return nil, kerrors.New(500, "LOOKUP_FAILED", err.Error())
	}

	if resp.Status != model.StatusSuccess {
		return nil, kerrors.New(400, "REFUND_NOT_ALLOWED", fmt.Sprintf("transaction %s is %s, only successful payments can be refunded", req.TransactionID, resp.Status))
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = resp.Amount
	}
	if !amount.IsPositive() || amount.GreaterThan(resp.Amount) {
		return nil, kerrors.New(400, "INVALID_REFUND_AMOUNT", fmt.Sprintf("refund amount %s must be positive and at most %s", amount, resp.Amount))
	}

	provider, providerRef, err := uc.repo.GetProviderRef(ctx, req.TransactionID)
	if err != nil {
		return nil, kerrors.New(500, "LOOKUP_FAILED", err.Error())
	}

	ad, err := uc.adapters.Get(provider)
	if err != nil {
		return nil, errUnknownProvider(provider)
	}

	cb := uc.breakers.GetOrCreate(provider)
	out, err := cb.Execute(ctx, func(ctx context.Context) (any, error) {
		return ad.Refund(ctx, providerRef, amount, req.Reason)
	})
	if err != nil {
		var openErr *breaker.OpenError
		if errors.As(err, &openErr) || adapter.IsTransient(err) {
			return nil, errProviderUnavailable(provider, err)
		}
		return nil, kerrors.New(502, "REFUND_FAILED", err.Error())
	}
	result := out.(*adapter.RefundResult)

	uc.audit.LogRefundRequested(ctx, resp.Reference, provider, amount.String(), req.Reason)

	uc.logger.Infow("refund requested",
		"transaction_id", req.TransactionID,
		"reference", resp.Reference,
		"provider", provider,
		"amount", amount.String(),
		"type", "success")

	return &RefundResponse{
		TransactionID: req.TransactionID,
		RefundRef:     result.RefundRef,
		Status:        result.Status,
		Amount:        amount,
		Provider:      provider,
	}, nil
}
