// Package service exposes the payment and resilience use cases over
// the HTTP transport.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewPaymentService, NewResilienceService)
