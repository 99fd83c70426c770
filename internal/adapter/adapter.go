// Package adapter contains the provider adapters that translate PesaGate
// payment operations into each upstream payment API.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"PesaGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// InitiateResult is the provider's answer to a payment initiation.
type InitiateResult struct {
	ProviderRef string
	Status      model.PaymentStatus
	Message     string
}

// StatusResult is the provider's answer to a status query.
type StatusResult struct {
	Status      model.PaymentStatus
	ProviderRef string
	Message     string
}

// RefundResult is the provider's answer to a refund request.
type RefundResult struct {
	RefundRef string
	Status    model.PaymentStatus
	Message   string
}

// Adapter is implemented by every provider integration.
type Adapter interface {
	// Name returns the provider key, e.g. "mpesa".
	Name() string
	// Initiate starts a payment with the provider.
	Initiate(ctx context.Context, req *model.PaymentRequest) (*InitiateResult, error)
	// Status queries the provider for the current state of a payment.
	Status(ctx context.Context, providerRef string) (*StatusResult, error)
	// Refund reverses a completed payment, fully or partially.
	Refund(ctx context.Context, providerRef string, amount decimal.Decimal, reason string) (*RefundResult, error)
	// HealthCheck probes provider availability.
	HealthCheck(ctx context.Context) error
}

// Registry manages the provider adapters registered at startup.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	logger   *log.Helper
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(logger log.Logger) *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		logger:   log.NewHelper(logger),
	}
}

// Register adds an adapter under its provider name. Registering the same
// name twice replaces the earlier adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
	r.logger.Infof("Registered payment adapter for provider: %s", a.Name())
}

// Get returns the adapter for a provider name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return a, nil
}

// Has reports whether an adapter is registered for the name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[name]
	return ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
