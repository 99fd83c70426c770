package biz

import (
	"context"
	"fmt"
	"time"

	"PesaGate/internal/adapter"
	"PesaGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	// reconcileBatchSize caps the pending transactions examined per run.
	reconcileBatchSize = 100
	// pendingMinAge leaves freshly initiated payments alone; the mobile
	// money prompt usually takes a minute or two to settle.
	pendingMinAge = 2 * time.Minute
	// abandonAfter is how long a payment may stay pending before it is
	// expired. STK pushes time out upstream long before this.
	abandonAfter = 24 * time.Hour
	// staleInFlightAge bounds the in-flight tracking entries.
	staleInFlightAge = 30 * time.Minute
)

// ReconcileTask re-queries pending transactions against their provider
// and expires the ones abandoned by the customer. Providers in this
// corridor miss callbacks routinely, so polling is the source of truth
// of last resort.
type ReconcileTask struct {
	repo     TransactionRepo
	payments *PaymentUsecase
	limiter  *RateLimiterUseCase
	adapters *adapter.Registry
	audit    AuditLogger
	logger   *log.Helper
}

// NewReconcileTask creates the reconciliation task.
func NewReconcileTask(
	repo TransactionRepo,
	payments *PaymentUsecase,
	limiter *RateLimiterUseCase,
	adapters *adapter.Registry,
	audit AuditLogger,
	logger log.Logger,
) *ReconcileTask {
	return &ReconcileTask{
		repo:     repo,
		payments: payments,
		limiter:  limiter,
		adapters: adapters,
		audit:    audit,
		logger:   log.NewHelper(logger),
	}
}

// ReconcilePending polls the provider for every pending transaction
// old enough to have settled, then sweeps stale in-flight counters.
func (t *ReconcileTask) ReconcilePending(ctx context.Context) error {
	history, err := t.repo.List(ctx, &model.TransactionQuery{
		Status: model.StatusPending,
		Limit:  reconcileBatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to list pending transactions: %w", err)
	}

	if len(history.Transactions) == 0 {
		t.logger.Debug("no pending transactions to reconcile")
		t.sweepInFlight(ctx)
		return nil
	}

	now := time.Now()
	resolved := 0
	expired := 0
	stillPending := 0

	for _, txn := range history.Transactions {
		age := now.Sub(txn.CreatedAt)
		if age < pendingMinAge {
			stillPending++
			continue
		}

		if age > abandonAfter {
			if err := t.expire(ctx, txn); err != nil {
				t.logger.Errorw("failed to expire abandoned transaction",
					"transaction_id", txn.TransactionID,
					"error", err.Error(),
					"type", "error")
				continue
			}
			expired++
			continue
		}

		refreshed, err := t.payments.GetStatus(ctx, txn.TransactionID)
		if err != nil {
			t.logger.Warnw("reconcile poll failed",
				"transaction_id", txn.TransactionID,
				"provider", txn.Provider,
				"error", err.Error(),
				"type", "warning")
			continue
		}
		if refreshed.Status.IsFinal() {
			resolved++
		} else {
			stillPending++
		}
	}

	t.logger.Infow("reconciliation run completed",
		"examined", len(history.Transactions),
		"resolved", resolved,
		"expired", expired,
		"still_pending", stillPending,
		"type", "success")

	t.sweepInFlight(ctx)
	return nil
}

// expire marks an abandoned pending transaction cancelled.
func (t *ReconcileTask) expire(ctx context.Context, txn *model.PaymentResponse) error {
	reason := "expired by reconciliation after 24h pending"
	if err := t.repo.UpdateStatus(ctx, txn.TransactionID, model.StatusCancelled, reason, ""); err != nil {
		return err
	}

	t.limiter.ReleaseInFlight(ctx, txn.Provider, txn.TransactionID)
	t.audit.LogPaymentFinalized(ctx, txn.Reference, txn.Provider, model.StatusCancelled, reason)

	t.logger.Warnw("abandoned transaction expired",
		"transaction_id", txn.TransactionID,
		"reference", txn.Reference,
		"provider", txn.Provider,
		"type", "warning")
	return nil
}

func (t *ReconcileTask) sweepInFlight(ctx context.Context) {
	for _, provider := range t.adapters.Names() {
		t.limiter.SweepStaleInFlight(ctx, provider, staleInFlightAge)
	}
}
