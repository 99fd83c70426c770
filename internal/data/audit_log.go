package data

import (
	"context"
	"encoding/json"
	"time"

	"PesaGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// AuditLog is the GORM model for payment_audit_logs table
type AuditLog struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	Reference  string    `gorm:"column:reference;size:100;not null;index"`
	Provider   string    `gorm:"column:provider;size:32;not null;index"`
	ActionType string    `gorm:"column:action_type;type:varchar(50);not null"`
	Details    string    `gorm:"column:details;type:json"` // JSON string
	Actor      string    `gorm:"column:actor;size:64;default:'system';not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "payment_audit_logs"
}

// AuditLoggerImpl implements biz.AuditLogger interface
type AuditLoggerImpl struct {
	db      *gorm.DB
	logChan chan *AuditLog
	logger  *log.Helper
}

// NewAuditLogger creates a new audit logger with async channel
func NewAuditLogger(db *gorm.DB, logger log.Logger) *AuditLoggerImpl {
	al := &AuditLoggerImpl{
		db:      db,
		logChan: make(chan *AuditLog, 1000), // Buffer size 1000 to prevent blocking
		logger:  log.NewHelper(logger),
	}

	// Start background goroutine for async logging
	go al.start()

	return al
}

// start processes audit log events from channel
func (a *AuditLoggerImpl) start() {
	for event := range a.logChan {
		ctx := context.Background()
		if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
			a.logger.Errorw("failed to write audit log",
				"reference", event.Reference,
				"action_type", event.ActionType,
				"error", err)
		} else {
			a.logger.Debugw("audit log written",
				"reference", event.Reference,
				"action_type", event.ActionType)
		}
	}
}

// enqueue sends an event to the channel without blocking the caller.
func (a *AuditLoggerImpl) enqueue(event *AuditLog) {
	select {
	case a.logChan <- event:
		// Successfully queued
	default:
		a.logger.Warnw("audit log channel full, dropping event",
			"reference", event.Reference,
			"action_type", event.ActionType)
	}
}

// LogPaymentInitiated logs a newly accepted payment
func (a *AuditLoggerImpl) LogPaymentInitiated(ctx context.Context, reference, provider, transactionID, amount, currency string) {
	details := map[string]interface{}{
		"transaction_id": transactionID,
		"amount":         amount,
		"currency":       currency,
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	a.enqueue(&AuditLog{
		Reference:  reference,
		Provider:   provider,
		ActionType: model.AuditEventPaymentInitiated,
		Details:    string(detailsJSON),
		Actor:      "system",
	})
}

// LogPaymentFinalized logs a payment reaching a final status
func (a *AuditLoggerImpl) LogPaymentFinalized(ctx context.Context, reference, provider string, status model.PaymentStatus, failureReason string) {
	details := map[string]interface{}{
		"status": string(status),
	}
	if failureReason != "" {
		details["failure_reason"] = failureReason
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	a.enqueue(&AuditLog{
		Reference:  reference,
		Provider:   provider,
		ActionType: model.AuditEventPaymentFinalized,
		Details:    string(detailsJSON),
		Actor:      "system",
	})
}

// LogRefundRequested logs a refund request
func (a *AuditLoggerImpl) LogRefundRequested(ctx context.Context, reference, provider, amount, reason string) {
	details := map[string]interface{}{
		"amount": amount,
		"reason": reason,
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	a.enqueue(&AuditLog{
		Reference:  reference,
		Provider:   provider,
		ActionType: model.AuditEventRefundRequested,
		Details:    string(detailsJSON),
		Actor:      "system",
	})
}

// LogCircuitBroken logs circuit breaker triggered event
func (a *AuditLoggerImpl) LogCircuitBroken(ctx context.Context, provider string, failureCount int, brokenAt time.Time) {
	details := map[string]interface{}{
		"failure_count":     failureCount,
		"circuit_broken_at": brokenAt.Format(time.RFC3339),
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	a.enqueue(&AuditLog{
		Provider:   provider,
		ActionType: model.AuditEventCircuitBroken,
		Details:    string(detailsJSON),
		Actor:      "system",
	})
}

// LogCircuitRecovered logs circuit breaker recovered event
func (a *AuditLoggerImpl) LogCircuitRecovered(ctx context.Context, provider string, healingAttempts int, recoveredAt time.Time) {
	details := map[string]interface{}{
		"healing_attempts": healingAttempts,
		"recovered_at":     recoveredAt.Format(time.RFC3339),
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	a.enqueue(&AuditLog{
		Provider:   provider,
		ActionType: model.AuditEventCircuitRecovered,
		Details:    string(detailsJSON),
		Actor:      "system",
	})
}

// LogFailoverSignaled logs a failover signal toward a backup provider
func (a *AuditLoggerImpl) LogFailoverSignaled(ctx context.Context, provider, targetBackup string, signaledAt time.Time) {
	details := map[string]interface{}{
		"target_backup": targetBackup,
		"signaled_at":   signaledAt.Format(time.RFC3339),
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	a.enqueue(&AuditLog{
		Provider:   provider,
		ActionType: model.AuditEventFailoverSignaled,
		Details:    string(detailsJSON),
		Actor:      "system",
	})
}

// LogHealingReset logs a manual reset of a provider's healing budget
func (a *AuditLoggerImpl) LogHealingReset(ctx context.Context, provider, operator string, previousAttempts int) {
	details := map[string]interface{}{
		"previous_attempts": previousAttempts,
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	actor := operator
	if actor == "" {
		actor = "system"
	}

	a.enqueue(&AuditLog{
		Provider:   provider,
		ActionType: model.AuditEventHealingReset,
		Details:    string(detailsJSON),
		Actor:      actor,
	})
}
