package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrProviderUnavailable indicates the provider could not be reached or
	// returned a server error. Transient.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderTimeout indicates the provider did not answer in time. Transient.
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrRateLimited indicates the provider rejected the call for rate
	// limiting. Transient.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrAuthFailed indicates the provider rejected our credentials.
	ErrAuthFailed = errors.New("provider authentication failed")
	// ErrInvalidRequest indicates the provider rejected the request payload.
	ErrInvalidRequest = errors.New("provider rejected request")
	// ErrInsufficientFunds indicates the customer wallet could not cover the
	// amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrTransactionNotFound indicates the provider has no record of the
	// transaction.
	ErrTransactionNotFound = errors.New("transaction not found at provider")
	// ErrUnknownProvider indicates no adapter is registered under the name.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ProviderError wraps a provider failure with classification information.
// Transient errors count against the provider's circuit breaker; permanent
// (business) rejections do not.
type ProviderError struct {
	Provider   string
	StatusCode int
	Reason     error
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %v (HTTP %d): %s", e.Provider, e.Reason, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %v: %s", e.Provider, e.Reason, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Reason
}

// Transient reports whether the failure should count as a provider outage.
func (e *ProviderError) Transient() bool {
	return errors.Is(e.Reason, ErrProviderUnavailable) ||
		errors.Is(e.Reason, ErrProviderTimeout) ||
		errors.Is(e.Reason, ErrRateLimited)
}

// IsTransient reports whether err represents a transient provider failure.
// Network errors and timeouts are transient even when not wrapped in a
// ProviderError.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrProviderTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// classifyStatus maps an HTTP response to the error taxonomy. Returns nil
// for 2xx responses.
func classifyStatus(provider string, status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 401 || status == 403:
		return &ProviderError{Provider: provider, StatusCode: status, Reason: ErrAuthFailed, Message: body}
	case status == 404:
		return &ProviderError{Provider: provider, StatusCode: status, Reason: ErrTransactionNotFound, Message: body}
	case status == 429:
		return &ProviderError{Provider: provider, StatusCode: status, Reason: ErrRateLimited, Message: body}
	case status >= 500:
		return &ProviderError{Provider: provider, StatusCode: status, Reason: ErrProviderUnavailable, Message: body}
	default:
		return &ProviderError{Provider: provider, StatusCode: status, Reason: ErrInvalidRequest, Message: body}
	}
}
