package biz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PesaGate/internal/conf"
	"PesaGate/internal/model"
	"PesaGate/pkg/breaker"
	"PesaGate/pkg/health"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

type webhookRecorder struct {
	mu        sync.Mutex
	broken    []*model.CircuitBrokenEvent
	recovered []*model.CircuitRecoveredEvent
	failovers []*model.FailoverEvent
}

func (w *webhookRecorder) NotifyCircuitBroken(_ context.Context, event *model.CircuitBrokenEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.broken = append(w.broken, event)
	return nil
}

func (w *webhookRecorder) NotifyCircuitRecovered(_ context.Context, event *model.CircuitRecoveredEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recovered = append(w.recovered, event)
	return nil
}

func (w *webhookRecorder) NotifyFailover(_ context.Context, event *model.FailoverEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failovers = append(w.failovers, event)
	return nil
}

type auditRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (a *auditRecorder) record(entry string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *auditRecorder) has(entry string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries {
		if e == entry {
			return true
		}
	}
	return false
}

func (a *auditRecorder) LogPaymentInitiated(_ context.Context, _, _, _, _, _ string) {
	a.record("payment_initiated")
}

func (a *auditRecorder) LogPaymentFinalized(_ context.Context, _, _ string, _ model.PaymentStatus, _ string) {
	a.record("payment_finalized")
}

func (a *auditRecorder) LogRefundRequested(_ context.Context, _, _, _, _ string) {
	a.record("refund_requested")
}

func (a *auditRecorder) LogCircuitBroken(_ context.Context, provider string, _ int, _ time.Time) {
	a.record("circuit_broken:" + provider)
}

func (a *auditRecorder) LogCircuitRecovered(_ context.Context, provider string, _ int, _ time.Time) {
	a.record("circuit_recovered:" + provider)
}

func (a *auditRecorder) LogFailoverSignaled(_ context.Context, provider, target string, _ time.Time) {
	a.record("failover:" + provider + "->" + target)
}

func (a *auditRecorder) LogHealingReset(_ context.Context, provider, operator string, _ int) {
	a.record("healing_reset:" + provider + ":" + operator)
}

type healerFixture struct {
	healer   *SelfHealer
	breakers *breaker.Registry
	monitor  *health.Monitor
	webhook  *webhookRecorder
	audit    *auditRecorder
}

func newHealerFixture(t *testing.T, mutate func(r *conf.Resilience)) *healerFixture {
	t.Helper()

	resilience := &conf.Resilience{
		CheckInterval:       durationpb.New(30 * time.Second),
		FailureThreshold:    3,
		ResetTimeout:        durationpb.New(30 * time.Second),
		MaxHealingAttempts:  3,
		AutoRestartEnabled:  true,
		AutoFailoverEnabled: true,
		HealthCheckTimeout:  durationpb.New(time.Second),
		EventLogCapacity:    500,
	}
	if mutate != nil {
		mutate(resilience)
	}

	registry := breaker.NewRegistry(breaker.Config{
		FailureThreshold: int(resilience.FailureThreshold),
		ResetTimeout:     resilience.ResetTimeout.AsDuration(),
	})
	monitor, err := health.NewMonitor(time.Minute, time.Second, log.DefaultLogger)
	require.NoError(t, err)

	webhook := &webhookRecorder{}
	audit := &auditRecorder{}

	healer := NewSelfHealer(
		&conf.Bootstrap{Resilience: resilience},
		registry, monitor, webhook, audit,
		log.DefaultLogger,
	)

	return &healerFixture{
		healer:   healer,
		breakers: registry,
		monitor:  monitor,
		webhook:  webhook,
		audit:    audit,
	}
}

// tripBreaker records enough failures to open a provider's breaker.
func tripBreaker(t *testing.T, registry *breaker.Registry, name string, threshold int) {
	t.Helper()

	cb := registry.GetOrCreate(name)
	for i := 0; i < threshold; i++ {
		_, err := cb.Execute(context.Background(), func(context.Context) (any, error) {
			return nil, errors.New("provider timeout")
		})
		require.Error(t, err)
	}
	require.Equal(t, breaker.StateOpen, cb.State())
}

// failHealthCheck registers a failing check for the provider and runs
// the monitor once so Healthy reports false.
func failHealthCheck(t *testing.T, monitor *health.Monitor, name string) {
	t.Helper()

	monitor.Register(name, func(context.Context) error {
		return errors.New("probe failed")
	})
	monitor.RunChecks(context.Background())
	require.False(t, monitor.Healthy(name))
}

func TestSelfHealer_RegisterProviderIdempotent(t *testing.T) {
	f := newHealerFixture(t, nil)

	f.healer.RegisterProvider("mpesa")
	f.healer.SetBackupProviders("mpesa", []string{"paystack"})

	tripBreaker(t, f.breakers, "mpesa", 3)
	f.healer.Tick(context.Background())

	before, ok := f.healer.GetRecoveryState("mpesa")
	require.True(t, ok)
	assert.True(t, before.IsInRecovery)
	assert.Equal(t, 1, before.HealingAttempts)

	// Re-registration keeps counters and backups intact.
	f.healer.RegisterProvider("mpesa")

	after, ok := f.healer.GetRecoveryState("mpesa")
	require.True(t, ok)
	assert.Equal(t, before.HealingAttempts, after.HealingAttempts)
	assert.Equal(t, before.IsInRecovery, after.IsInRecovery)
	assert.Equal(t, []string{"paystack"}, after.BackupProviders)
}

func TestSelfHealer_HealthyProviderStaysStable(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")

	for i := 0; i < 5; i++ {
		f.healer.Tick(context.Background())
	}

	st, ok := f.healer.GetRecoveryState("mpesa")
	require.True(t, ok)
	assert.False(t, st.IsInRecovery)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, 0, st.HealingAttempts)
	assert.Empty(t, f.healer.GetHealingEvents("", 0))
	assert.Empty(t, f.webhook.broken)
}

func TestSelfHealer_OpenBreakerBeginsHealing(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")

	tripBreaker(t, f.breakers, "mpesa", 3)
	f.healer.Tick(context.Background())

	st, ok := f.healer.GetRecoveryState("mpesa")
	require.True(t, ok)
	assert.True(t, st.IsInRecovery)
	assert.Equal(t, 1, st.HealingAttempts)
	require.NotNil(t, st.LastHealedAt)

	// Healing resets the breaker so the next call is a fresh trial.
	assert.Equal(t, breaker.StateClosed, f.breakers.State("mpesa"))

	events := f.healer.GetHealingEvents("mpesa", 0)
	require.Len(t, events, 1)
	assert.Equal(t, model.ActionRetryReset, events[0].Action)
	// No probe is registered, so the last known health is passing and
	// the reset counts as a successful attempt.
	assert.Equal(t, model.OutcomeSuccess, events[0].Outcome)

	require.Len(t, f.webhook.broken, 1)
	assert.Equal(t, "mpesa", f.webhook.broken[0].Provider)
	assert.True(t, f.audit.has("circuit_broken:mpesa"))
}

func TestSelfHealer_ConsecutiveFailuresBeginHealing(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mtn")

	// Breaker stays closed but the health probe keeps failing; after
	// the threshold of ticks the provider enters recovery.
	failHealthCheck(t, f.monitor, "mtn")

	f.healer.Tick(context.Background())
	f.healer.Tick(context.Background())
	st, _ := f.healer.GetRecoveryState("mtn")
	assert.False(t, st.IsInRecovery)
	assert.Equal(t, 2, st.ConsecutiveFailures)

	f.healer.Tick(context.Background())
	st, _ = f.healer.GetRecoveryState("mtn")
	assert.True(t, st.IsInRecovery)
	assert.Equal(t, 1, st.HealingAttempts)
}

func TestSelfHealer_ExhaustedBudgetSignalsFailover(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")
	f.healer.SetBackupProviders("mpesa", []string{"paystack", "mtn"})

	// Keep the provider unhealthy across ticks even after resets.
	failHealthCheck(t, f.monitor, "mpesa")
	tripBreaker(t, f.breakers, "mpesa", 3)

	// Ticks 1-3 spend the healing budget.
	for i := 1; i <= 3; i++ {
		f.healer.Tick(context.Background())
		st, _ := f.healer.GetRecoveryState("mpesa")
		assert.Equal(t, i, st.HealingAttempts, "tick %d", i)
		assert.Empty(t, st.FailoverTarget, "tick %d", i)
	}

	// Tick 4 fails over to the first backup in order.
	f.healer.Tick(context.Background())
	target, ok := f.healer.FailoverTarget("mpesa")
	require.True(t, ok)
	assert.Equal(t, "paystack", target)

	require.Len(t, f.webhook.failovers, 1)
	assert.Equal(t, "paystack", f.webhook.failovers[0].TargetBackup)
	assert.True(t, f.audit.has("failover:mpesa->paystack"))

	// Tick 5 moves to the next untried backup.
	f.healer.Tick(context.Background())
	target, _ = f.healer.FailoverTarget("mpesa")
	assert.Equal(t, "mtn", target)

	// Tick 6 finds the list exhausted and records that exactly once.
	f.healer.Tick(context.Background())
	f.healer.Tick(context.Background())

	events := f.healer.GetHealingEvents("mpesa", 0)
	exhausted := 0
	for _, e := range events {
		if e.Action == model.ActionFailover && e.Outcome == model.OutcomeFailure {
			exhausted++
		}
	}
	assert.Equal(t, 1, exhausted)
}

func TestSelfHealer_HealingActionSequence(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")

	failHealthCheck(t, f.monitor, "mpesa")
	tripBreaker(t, f.breakers, "mpesa", 3)

	for i := 0; i < 3; i++ {
		f.healer.Tick(context.Background())
	}

	// Newest first: restarts, then the initial retry-reset. The probe
	// failed throughout, so every attempt is recorded as failed.
	events := f.healer.GetHealingEvents("mpesa", 0)
	require.Len(t, events, 3)
	assert.Equal(t, model.ActionRestart, events[0].Action)
	assert.Equal(t, model.ActionRestart, events[1].Action)
	assert.Equal(t, model.ActionRetryReset, events[2].Action)
	for _, e := range events {
		assert.Equal(t, model.OutcomeFailure, e.Outcome)
	}
}

func TestSelfHealer_HealOutcomeTracksHealthCheck(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")
	f.healer.RegisterProvider("mtn")

	// mpesa: breaker open, probe failing. mtn: breaker open, no probe
	// registered, so its last known health is passing.
	tripBreaker(t, f.breakers, "mpesa", 3)
	failHealthCheck(t, f.monitor, "mpesa")
	tripBreaker(t, f.breakers, "mtn", 3)

	f.healer.Tick(context.Background())

	failed := f.healer.GetHealingEvents("mpesa", 0)
	require.Len(t, failed, 1)
	assert.Equal(t, model.ActionRetryReset, failed[0].Action)
	assert.Equal(t, model.OutcomeFailure, failed[0].Outcome)

	healed := f.healer.GetHealingEvents("mtn", 0)
	require.Len(t, healed, 1)
	assert.Equal(t, model.OutcomeSuccess, healed[0].Outcome)
}

func TestSelfHealer_RecoveredResetsState(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")
	f.healer.SetBackupProviders("mpesa", []string{"paystack"})

	tripBreaker(t, f.breakers, "mpesa", 3)
	f.healer.Tick(context.Background())

	st, _ := f.healer.GetRecoveryState("mpesa")
	require.True(t, st.IsInRecovery)

	// The reset closed the breaker and no health check fails, so the
	// next tick observes a healthy provider.
	f.healer.Tick(context.Background())

	st, _ = f.healer.GetRecoveryState("mpesa")
	assert.False(t, st.IsInRecovery)
	assert.Equal(t, 0, st.HealingAttempts)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Empty(t, st.FailoverTarget)

	require.Len(t, f.webhook.recovered, 1)
	assert.Equal(t, "mpesa", f.webhook.recovered[0].Provider)
	assert.Equal(t, 1, f.webhook.recovered[0].HealingAttempts)
	assert.True(t, f.audit.has("circuit_recovered:mpesa"))

	stats := f.healer.GetStats()
	assert.Equal(t, 1, stats.SuccessfulHealings)
}

func TestSelfHealer_RecoveryClearsFailoverTarget(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")
	f.healer.SetBackupProviders("mpesa", []string{"paystack"})

	failHealthCheck(t, f.monitor, "mpesa")
	tripBreaker(t, f.breakers, "mpesa", 3)

	for i := 0; i < 4; i++ {
		f.healer.Tick(context.Background())
	}
	_, ok := f.healer.FailoverTarget("mpesa")
	require.True(t, ok)

	// Probe starts passing again.
	f.monitor.Register("mpesa", func(context.Context) error { return nil })
	f.monitor.RunChecks(context.Background())
	f.breakers.Reset("mpesa")
	f.healer.Tick(context.Background())

	_, ok = f.healer.FailoverTarget("mpesa")
	assert.False(t, ok)
}

func TestSelfHealer_AutoRestartDisabledGoesStraightToFailover(t *testing.T) {
	f := newHealerFixture(t, func(r *conf.Resilience) {
		r.AutoRestartEnabled = false
	})
	f.healer.RegisterProvider("mpesa")
	f.healer.SetBackupProviders("mpesa", []string{"paystack"})

	tripBreaker(t, f.breakers, "mpesa", 3)
	f.healer.Tick(context.Background())

	st, _ := f.healer.GetRecoveryState("mpesa")
	assert.Equal(t, 0, st.HealingAttempts)

	target, ok := f.healer.FailoverTarget("mpesa")
	require.True(t, ok)
	assert.Equal(t, "paystack", target)
}

func TestSelfHealer_BothActionsDisabled(t *testing.T) {
	f := newHealerFixture(t, func(r *conf.Resilience) {
		r.AutoRestartEnabled = false
		r.AutoFailoverEnabled = false
	})
	f.healer.RegisterProvider("mpesa")
	f.healer.SetBackupProviders("mpesa", []string{"paystack"})

	tripBreaker(t, f.breakers, "mpesa", 3)
	f.healer.Tick(context.Background())
	f.healer.Tick(context.Background())

	st, _ := f.healer.GetRecoveryState("mpesa")
	assert.True(t, st.IsInRecovery)
	assert.Equal(t, 0, st.HealingAttempts)
	_, ok := f.healer.FailoverTarget("mpesa")
	assert.False(t, ok)
	assert.Empty(t, f.healer.GetHealingEvents("", 0))
	// Incident start is still observed and notified.
	assert.Len(t, f.webhook.broken, 1)

	// With both actions off the healer will not heal or fail over, so
	// the reported phase is degraded, not healing.
	status, ok := f.healer.ProviderStatus("mpesa")
	require.True(t, ok)
	assert.Equal(t, PhaseDegraded, status.Phase)
}

func TestSelfHealer_ExhaustedBudgetWithFailoverDisabledReportsDegraded(t *testing.T) {
	f := newHealerFixture(t, func(r *conf.Resilience) {
		r.AutoFailoverEnabled = false
		r.MaxHealingAttempts = 2
	})
	f.healer.RegisterProvider("mpesa")
	f.healer.SetBackupProviders("mpesa", []string{"paystack"})

	tripBreaker(t, f.breakers, "mpesa", 3)
	failHealthCheck(t, f.monitor, "mpesa")

	// Two ticks spend the budget, a third finds nothing left to do.
	for i := 0; i < 3; i++ {
		f.healer.Tick(context.Background())
	}

	st, _ := f.healer.GetRecoveryState("mpesa")
	require.True(t, st.IsInRecovery)
	require.Equal(t, 2, st.HealingAttempts)
	_, ok := f.healer.FailoverTarget("mpesa")
	assert.False(t, ok)

	// No failover will ever be signaled, so the phase must not claim
	// one is coming.
	status, ok := f.healer.ProviderStatus("mpesa")
	require.True(t, ok)
	assert.Equal(t, PhaseDegraded, status.Phase)
}

func TestSelfHealer_ResetHealingAttempts(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")
	f.healer.SetBackupProviders("mpesa", []string{"paystack"})

	failHealthCheck(t, f.monitor, "mpesa")
	tripBreaker(t, f.breakers, "mpesa", 3)

	for i := 0; i < 4; i++ {
		f.healer.Tick(context.Background())
	}
	st, _ := f.healer.GetRecoveryState("mpesa")
	require.Equal(t, 3, st.HealingAttempts)

	f.healer.ResetHealingAttempts("mpesa", "ops@example.com")

	st, _ = f.healer.GetRecoveryState("mpesa")
	assert.Equal(t, 0, st.HealingAttempts)
	assert.False(t, st.IsInRecovery)
	assert.Empty(t, st.FailoverTarget)
	assert.True(t, f.audit.has("healing_reset:mpesa:ops@example.com"))

	// The healing budget is available again on the next incident.
	f.healer.Tick(context.Background())
	f.healer.Tick(context.Background())
	f.healer.Tick(context.Background())
	st, _ = f.healer.GetRecoveryState("mpesa")
	assert.True(t, st.IsInRecovery)
	assert.Equal(t, 1, st.HealingAttempts)
}

func TestSelfHealer_ResetHealingAttemptsUnknownProvider(t *testing.T) {
	f := newHealerFixture(t, nil)

	// No panic, no audit entry.
	f.healer.ResetHealingAttempts("unknown", "ops")
	assert.Empty(t, f.audit.entries)
}

func TestSelfHealer_GetRecoveryStateUnknownProvider(t *testing.T) {
	f := newHealerFixture(t, nil)

	_, ok := f.healer.GetRecoveryState("unknown")
	assert.False(t, ok)
}

func TestSelfHealer_GetRecoveryStateReturnsCopy(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")
	f.healer.SetBackupProviders("mpesa", []string{"paystack", "mtn"})

	st, _ := f.healer.GetRecoveryState("mpesa")
	st.BackupProviders[0] = "tampered"
	st.HealingAttempts = 99

	fresh, _ := f.healer.GetRecoveryState("mpesa")
	assert.Equal(t, []string{"paystack", "mtn"}, fresh.BackupProviders)
	assert.Equal(t, 0, fresh.HealingAttempts)
}

func TestSelfHealer_GetHealingEventsFiltering(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")
	f.healer.RegisterProvider("mtn")

	failHealthCheck(t, f.monitor, "mpesa")
	failHealthCheck(t, f.monitor, "mtn")
	tripBreaker(t, f.breakers, "mpesa", 3)
	tripBreaker(t, f.breakers, "mtn", 3)

	for i := 0; i < 3; i++ {
		f.healer.Tick(context.Background())
	}

	all := f.healer.GetHealingEvents("", 0)
	assert.Len(t, all, 6)

	mpesaOnly := f.healer.GetHealingEvents("mpesa", 0)
	require.Len(t, mpesaOnly, 3)
	for _, e := range mpesaOnly {
		assert.Equal(t, "mpesa", e.Provider)
	}

	limited := f.healer.GetHealingEvents("", 2)
	assert.Len(t, limited, 2)

	// Most recent first.
	assert.False(t, all[0].Timestamp.Before(all[len(all)-1].Timestamp))
}

func TestSelfHealer_EventLogBounded(t *testing.T) {
	l := newEventLog(5)
	for i := 0; i < 8; i++ {
		l.add(model.HealingEvent{
			Provider: "mpesa",
			Action:   model.ActionRetryReset,
			Detail:   string(rune('a' + i)),
		})
	}

	events := l.query("", 0)
	require.Len(t, events, 5)
	// Newest first, oldest three dropped.
	assert.Equal(t, "h", events[0].Detail)
	assert.Equal(t, "d", events[4].Detail)
}

func TestSelfHealer_Stats(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")
	f.healer.RegisterProvider("paystack")

	failHealthCheck(t, f.monitor, "mpesa")
	tripBreaker(t, f.breakers, "mpesa", 3)
	f.healer.Tick(context.Background())

	stats := f.healer.GetStats()
	assert.Equal(t, 2, stats.RegisteredProviders)
	assert.Equal(t, 1, stats.ActiveRecoveries)
	assert.Equal(t, 1, stats.TotalHealingEvents)
	assert.Equal(t, 0, stats.SuccessfulHealings)
	assert.False(t, stats.IsRunning)
}

func TestSelfHealer_ProviderStatus(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")
	f.healer.RegisterProvider("paystack")

	failHealthCheck(t, f.monitor, "mpesa")
	tripBreaker(t, f.breakers, "mpesa", 3)
	f.healer.Tick(context.Background())

	status, ok := f.healer.ProviderStatus("mpesa")
	require.True(t, ok)
	assert.Equal(t, PhaseHealing, status.Phase)
	assert.True(t, status.Recovery.IsInRecovery)
	require.NotNil(t, status.HealthCheck)
	assert.False(t, status.HealthCheck.Healthy)

	stable, ok := f.healer.ProviderStatus("paystack")
	require.True(t, ok)
	assert.Equal(t, PhaseStable, stable.Phase)
	assert.Equal(t, "closed", stable.CircuitState)

	all := f.healer.GetStatus()
	assert.Len(t, all, 2)

	_, ok = f.healer.ProviderStatus("unknown")
	assert.False(t, ok)
}

func TestSelfHealer_OverlappingTickDropped(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.RegisterProvider("mpesa")

	failHealthCheck(t, f.monitor, "mpesa")

	// Simulate a tick still in flight.
	f.healer.tickMu.Lock()
	f.healer.Tick(context.Background())
	f.healer.tickMu.Unlock()

	st, _ := f.healer.GetRecoveryState("mpesa")
	assert.Equal(t, 0, st.ConsecutiveFailures)

	f.healer.Tick(context.Background())
	st, _ = f.healer.GetRecoveryState("mpesa")
	assert.Equal(t, 1, st.ConsecutiveFailures)
}

func TestSelfHealer_PanickingWebhookDoesNotAbortTick(t *testing.T) {
	f := newHealerFixture(t, nil)
	f.healer.webhook = panicWebhook{}
	f.healer.RegisterProvider("mpesa")
	f.healer.RegisterProvider("mtn")

	failHealthCheck(t, f.monitor, "mpesa")
	failHealthCheck(t, f.monitor, "mtn")
	tripBreaker(t, f.breakers, "mpesa", 3)
	tripBreaker(t, f.breakers, "mtn", 3)

	f.healer.Tick(context.Background())

	// Both providers still advanced despite the panicking webhook.
	for _, name := range []string{"mpesa", "mtn"} {
		st, ok := f.healer.GetRecoveryState(name)
		require.True(t, ok)
		assert.True(t, st.IsInRecovery, name)
	}
}

type panicWebhook struct{}

func (panicWebhook) NotifyCircuitBroken(context.Context, *model.CircuitBrokenEvent) error {
	panic("webhook down")
}

func (panicWebhook) NotifyCircuitRecovered(context.Context, *model.CircuitRecoveredEvent) error {
	panic("webhook down")
}

func (panicWebhook) NotifyFailover(context.Context, *model.FailoverEvent) error {
	panic("webhook down")
}

func TestSelfHealer_StartStop(t *testing.T) {
	f := newHealerFixture(t, func(r *conf.Resilience) {
		r.CheckInterval = durationpb.New(10 * time.Millisecond)
	})
	f.healer.RegisterProvider("mpesa")

	f.healer.Start()
	assert.True(t, f.healer.Running())
	f.healer.Start() // no-op

	time.Sleep(30 * time.Millisecond)

	f.healer.Stop()
	assert.False(t, f.healer.Running())
	f.healer.Stop() // no-op

	assert.False(t, f.healer.GetStats().IsRunning)
}

func TestSelfHealer_RestartKeepsRecoveryState(t *testing.T) {
	// A long interval keeps the background loop from ticking on its
	// own; state changes come only from the manual Tick below.
	f := newHealerFixture(t, func(r *conf.Resilience) {
		r.CheckInterval = durationpb.New(time.Hour)
	})
	f.healer.RegisterProvider("mpesa")
	f.healer.RegisterProvider("paystack")

	tripBreaker(t, f.breakers, "mpesa", 3)
	failHealthCheck(t, f.monitor, "mpesa")

	f.healer.Start()
	f.healer.Tick(context.Background())

	st, ok := f.healer.GetRecoveryState("mpesa")
	require.True(t, ok)
	require.True(t, st.IsInRecovery)
	require.Equal(t, 1, st.HealingAttempts)

	f.healer.Stop()
	f.healer.Start()
	defer f.healer.Stop()
	assert.True(t, f.healer.Running())

	// A restart is not a reset: counters and registrations carry over.
	st, ok = f.healer.GetRecoveryState("mpesa")
	require.True(t, ok)
	assert.True(t, st.IsInRecovery)
	assert.Equal(t, 1, st.HealingAttempts)
	assert.Equal(t, 2, f.healer.GetStats().RegisteredProviders)
}
