package biz

import (
	"context"
	"time"

	"PesaGate/internal/adapter"
	"PesaGate/internal/conf"
	"PesaGate/pkg/breaker"
	"PesaGate/pkg/health"

	"github.com/go-kratos/kratos/v2/log"
)

// NewBreakerRegistry creates the per-provider circuit breaker registry
// from the resilience configuration.
func NewBreakerRegistry(c *conf.Bootstrap) *breaker.Registry {
	threshold := int(c.Resilience.FailureThreshold)
	if threshold <= 0 {
		threshold = 5
	}
	resetTimeout := c.Resilience.ResetTimeout.AsDuration()
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}

	return breaker.NewRegistry(breaker.Config{
		FailureThreshold: threshold,
		ResetTimeout:     resetTimeout,
	})
}

// NewHealthMonitor creates the provider health monitor from the
// resilience configuration.
func NewHealthMonitor(c *conf.Bootstrap, logger log.Logger) (*health.Monitor, error) {
	interval := c.Resilience.CheckInterval.AsDuration()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := c.Resilience.HealthCheckTimeout.AsDuration()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return health.NewMonitor(interval, timeout, logger)
}

// Resilience ties the adapter registry, the health monitor and the
// self-healer together: every enabled provider gets a health probe, a
// recovery state and its configured backup chain. Start and Stop are
// hooked into the application lifecycle.
type Resilience struct {
	monitor *health.Monitor
	healer  *SelfHealer
	logger  *log.Helper
}

// NewResilience registers every configured provider with the monitor
// and the self-healer.
func NewResilience(
	c *conf.Bootstrap,
	adapters *adapter.Registry,
	monitor *health.Monitor,
	healer *SelfHealer,
	logger log.Logger,
) *Resilience {
	helper := log.NewHelper(logger)

	for _, p := range c.Providers {
		if !p.Enabled || !adapters.Has(p.Name) {
			continue
		}

		ad, err := adapters.Get(p.Name)
		if err != nil {
			continue
		}
		monitor.Register(p.Name, func(ctx context.Context) error {
			return ad.HealthCheck(ctx)
		})

		healer.RegisterProvider(p.Name)
		if len(p.Backups) > 0 {
			healer.SetBackupProviders(p.Name, p.Backups)
		}

		helper.Infow("provider wired into resilience layer",
			"provider", p.Name,
			"backups", p.Backups,
			"type", "healing")
	}

	return &Resilience{
		monitor: monitor,
		healer:  healer,
		logger:  helper,
	}
}

// Start launches the health check loop and the self-healer tick loop.
func (r *Resilience) Start(ctx context.Context) error {
	// Seed results so the first healer tick sees real probe outcomes.
	r.monitor.RunChecks(ctx)
	r.monitor.Start()
	r.healer.Start()
	r.logger.Infow("resilience layer started", "type", "success")
	return nil
}

// Stop shuts both loops down.
func (r *Resilience) Stop(ctx context.Context) error {
	r.healer.Stop()
	r.monitor.Stop()
	r.logger.Infow("resilience layer stopped", "type", "success")
	return nil
}
