package adapter

import (
	"fmt"

	"PesaGate/internal/conf"
	"PesaGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// NewRegistryFromConfig builds the adapter registry from the
// configured provider list. Providers without a native integration get
// the mock adapter, which keeps sandbox deployments and corridor
// rollouts working before the real integration lands.
func NewRegistryFromConfig(c *conf.Bootstrap, logger log.Logger) (*Registry, error) {
	registry := NewRegistry(logger)
	helper := log.NewHelper(logger)

	for _, p := range c.Providers {
		if !p.Enabled {
			helper.Infof("Provider %s is disabled, skipping adapter registration", p.Name)
			continue
		}

		ad, err := newAdapter(p, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build adapter for provider %s: %w", p.Name, err)
		}
		registry.Register(ad)
	}

	return registry, nil
}

func newAdapter(p *conf.Provider, logger log.Logger) (Adapter, error) {
	switch p.Name {
	case model.ProviderMpesa:
		return NewMpesaAdapter(p, logger)
	case model.ProviderMTN:
		return NewMTNAdapter(p, logger)
	case model.ProviderPaystack:
		return NewPaystackAdapter(p, logger)
	default:
		return NewMockAdapter(p.Name), nil
	}
}
