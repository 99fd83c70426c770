// Package model contains domain models shared across layers.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment transaction.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSuccess   PaymentStatus = "success"
	StatusFailed    PaymentStatus = "failed"
	StatusCancelled PaymentStatus = "cancelled"
)

// Provider keys. Every adapter registers under one of these names and
// every circuit breaker, recovery state and health check is keyed by
// the same string.
const (
	ProviderMpesa    = "mpesa"
	ProviderPaystack = "paystack"
	ProviderMTN      = "mtn"
	ProviderAirtel   = "airtel"
	ProviderOrange   = "orange"
	ProviderWave     = "wave"
	ProviderStellar  = "stellar-usdc"
	ProviderIntaSend = "intasend"
)

// PaymentRequest is the unified call shape translated by each provider
// adapter into its provider-specific REST call.
type PaymentRequest struct {
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	PhoneNumber string            `json:"phoneNumber"`
	Reference   string            `json:"reference"`
	Description string            `json:"description,omitempty"`
	CallbackURL string            `json:"callbackUrl,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	// Provider is the preferred provider key; empty lets the gateway
	// pick the configured default.
	Provider string `json:"provider,omitempty"`
}

// Validate checks the request and normalizes the phone number and
// currency in place.
func (r *PaymentRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", r.Amount)
	}

	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if len(r.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code, got %q", r.Currency)
	}

	normalized, err := NormalizePhoneNumber(r.PhoneNumber)
	if err != nil {
		return err
	}
	r.PhoneNumber = normalized

	if strings.TrimSpace(r.Reference) == "" {
		return fmt.Errorf("reference is required")
	}

	return nil
}

// NormalizePhoneNumber strips non-digit characters and validates the
// resulting length (9-15 digits, E.164 without the plus sign).
func NormalizePhoneNumber(raw string) (string, error) {
	var b strings.Builder
	for _, c := range raw {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}

	cleaned := b.String()
	if len(cleaned) < 9 || len(cleaned) > 15 {
		return "", fmt.Errorf("invalid phone number length: %d digits", len(cleaned))
	}

	return cleaned, nil
}

// PaymentResponse is the unified response shape returned by adapters
// and by the gateway API.
type PaymentResponse struct {
	TransactionID string          `json:"transactionId"`
	Status        PaymentStatus   `json:"status"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PhoneNumber   string          `json:"phoneNumber"`
	Provider      string          `json:"provider"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	ReceiptURL    string          `json:"receiptUrl,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
}

// IsFinal reports whether the status cannot change anymore.
func (s PaymentStatus) IsFinal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// TransactionQuery filters transaction history lookups.
type TransactionQuery struct {
	Reference string        `json:"reference,omitempty"`
	Provider  string        `json:"provider,omitempty"`
	Status    PaymentStatus `json:"status,omitempty"`
	StartDate *time.Time    `json:"startDate,omitempty"`
	EndDate   *time.Time    `json:"endDate,omitempty"`
	Limit     int           `json:"limit"`
	Offset    int           `json:"offset"`
}

// Normalize clamps pagination to sane bounds (limit 1..100).
func (q *TransactionQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// TransactionHistory is a paginated history response.
type TransactionHistory struct {
	Transactions []*PaymentResponse `json:"transactions"`
	Total        int64              `json:"total"`
	HasMore      bool               `json:"hasMore"`
}

// RefundRequest asks for a full or partial refund of a transaction.
type RefundRequest struct {
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}
