package model

// Audit event type constants
const (
	AuditEventPaymentInitiated = "PAYMENT_INITIATED"
	AuditEventPaymentFinalized = "PAYMENT_FINALIZED"
	AuditEventRefundRequested  = "REFUND_REQUESTED"
	AuditEventCircuitBroken    = "CIRCUIT_BROKEN"
	AuditEventCircuitRecovered = "CIRCUIT_RECOVERED"
	AuditEventFailoverSignaled = "FAILOVER_SIGNALED"
	AuditEventHealingReset     = "HEALING_RESET"
)
