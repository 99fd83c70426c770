package adapter

import (
	"context"
	"sync"

	"PesaGate/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockAdapter is an in-memory adapter used in tests and local sandboxes.
// Its failure behavior can be toggled at runtime.
type MockAdapter struct {
	name string

	mu           sync.Mutex
	healthy      bool
	initiateErr  error
	statusByRef  map[string]model.PaymentStatus
	initiated    []string
	healthChecks int
}

// NewMockAdapter creates a healthy mock adapter registered under name.
func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{
		name:        name,
		healthy:     true,
		statusByRef: make(map[string]model.PaymentStatus),
	}
}

func (m *MockAdapter) Name() string { return m.name }

// SetHealthy toggles health check behavior.
func (m *MockAdapter) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// SetInitiateError makes Initiate fail with err until reset with nil.
func (m *MockAdapter) SetInitiateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initiateErr = err
}

// SetStatus fixes the status returned for a provider reference.
func (m *MockAdapter) SetStatus(providerRef string, status model.PaymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusByRef[providerRef] = status
}

// Initiated returns the references initiated so far.
func (m *MockAdapter) Initiated() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.initiated))
	copy(out, m.initiated)
	return out
}

// HealthCheckCount returns how many times HealthCheck ran.
func (m *MockAdapter) HealthCheckCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthChecks
}

func (m *MockAdapter) Initiate(ctx context.Context, req *model.PaymentRequest) (*InitiateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initiateErr != nil {
		return nil, m.initiateErr
	}

	ref := uuid.NewString()
	m.initiated = append(m.initiated, req.Reference)
	m.statusByRef[ref] = model.StatusPending

	return &InitiateResult{
		ProviderRef: ref,
		Status:      model.StatusPending,
		Message:     "accepted",
	}, nil
}

func (m *MockAdapter) Status(ctx context.Context, providerRef string) (*StatusResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, ok := m.statusByRef[providerRef]
	if !ok {
		return nil, &ProviderError{Provider: m.name, StatusCode: 404, Reason: ErrTransactionNotFound}
	}

	return &StatusResult{Status: status, ProviderRef: providerRef}, nil
}

func (m *MockAdapter) Refund(ctx context.Context, providerRef string, amount decimal.Decimal, reason string) (*RefundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.statusByRef[providerRef]; !ok {
		return nil, &ProviderError{Provider: m.name, StatusCode: 404, Reason: ErrTransactionNotFound}
	}

	return &RefundResult{
		RefundRef: uuid.NewString(),
		Status:    model.StatusPending,
	}, nil
}

func (m *MockAdapter) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.healthChecks++
	if !m.healthy {
		return &ProviderError{Provider: m.name, StatusCode: 503, Reason: ErrProviderUnavailable}
	}
	return nil
}
