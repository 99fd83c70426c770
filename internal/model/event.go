package model

import "time"

// HealingAction is the kind of recovery action the self-healer took.
type HealingAction string

const (
	// ActionRetryReset clears breaker counters and allows a new trial.
	ActionRetryReset HealingAction = "retry-reset"
	// ActionRestart recreates the provider's breaker from scratch.
	ActionRestart HealingAction = "restart"
	// ActionFailover signals traffic redirection to a backup provider.
	ActionFailover HealingAction = "failover"
)

// HealingOutcome is the result of a healing action.
type HealingOutcome string

const (
	OutcomeSuccess HealingOutcome = "success"
	OutcomeFailure HealingOutcome = "failure"
)

// HealingEvent is an immutable record of one healing or failover
// action. Events are retained in a bounded in-memory log.
type HealingEvent struct {
	Timestamp    time.Time      `json:"timestamp"`
	Provider     string         `json:"provider"`
	Action       HealingAction  `json:"action"`
	Outcome      HealingOutcome `json:"outcome"`
	TargetBackup string         `json:"targetBackup,omitempty"`
	Detail       string         `json:"detail,omitempty"`
}

// CircuitBrokenEvent notifies that a provider's circuit opened.
type CircuitBrokenEvent struct {
	Provider     string    `json:"provider"`
	FailureCount int       `json:"failureCount"`
	BrokenAt     time.Time `json:"brokenAt"`
}

// CircuitRecoveredEvent notifies that a provider recovered.
type CircuitRecoveredEvent struct {
	Provider        string    `json:"provider"`
	HealingAttempts int       `json:"healingAttempts"`
	RecoveredAt     time.Time `json:"recoveredAt"`
}

// FailoverEvent notifies that traffic for a provider was redirected to
// a backup. The routing layer consumes this signal; the self-healer
// itself never moves traffic.
type FailoverEvent struct {
	Provider     string    `json:"provider"`
	TargetBackup string    `json:"targetBackup"`
	SignaledAt   time.Time `json:"signaledAt"`
}
