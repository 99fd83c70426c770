package biz

import (
	"context"
	"sync"
	"time"

	"PesaGate/internal/conf"
	"PesaGate/internal/model"
	"PesaGate/pkg/breaker"
	"PesaGate/pkg/health"

	"github.com/go-kratos/kratos/v2/log"
)

// RecoveryPhase is the coarse position of a provider in the healing
// state machine, derived for status reporting.
type RecoveryPhase string

const (
	PhaseStable    RecoveryPhase = "stable"
	PhaseDegraded  RecoveryPhase = "degraded"
	PhaseHealing   RecoveryPhase = "healing"
	PhaseFailover  RecoveryPhase = "failover"
	PhaseRecovered RecoveryPhase = "recovered"
)

// RecoveryState is the per-provider bookkeeping the self-healer
// maintains. Snapshots handed out by GetRecoveryState are copies;
// the live state is mutated only by the tick loop and the manual
// reset operation.
type RecoveryState struct {
	Provider            string     `json:"provider"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	HealingAttempts     int        `json:"healingAttempts"`
	IsInRecovery        bool       `json:"isInRecovery"`
	BackupProviders     []string   `json:"backupProviders"`
	LastHealedAt        *time.Time `json:"lastHealedAt,omitempty"`

	// FailoverTarget is the backup currently signaled, empty when no
	// failover is active.
	FailoverTarget string `json:"failoverTarget,omitempty"`

	// attemptedBackups tracks which backups were already signaled this
	// incident so failover walks the list strictly in order.
	attemptedBackups map[string]bool
}

// Phase derives the reporting phase from the state flags and the
// breaker state. The phase reflects what the healer will actually do
// next: a provider whose configuration disables restarts or failover
// must not report those phases.
func (s *RecoveryState) phase(breakerState breaker.State, maxAttempts int, autoRestart, autoFailover bool) RecoveryPhase {
	switch {
	case s.FailoverTarget != "":
		return PhaseFailover
	case s.IsInRecovery && autoRestart && s.HealingAttempts < maxAttempts:
		return PhaseHealing
	case s.IsInRecovery && autoFailover:
		return PhaseFailover
	case s.IsInRecovery:
		return PhaseDegraded
	case breakerState == breaker.StateOpen:
		return PhaseDegraded
	default:
		return PhaseStable
	}
}

// SelfHealerStats are the aggregate counters exposed for status
// reporting.
type SelfHealerStats struct {
	TotalHealingEvents  int  `json:"totalHealingEvents"`
	SuccessfulHealings  int  `json:"successfulHealings"`
	ActiveRecoveries    int  `json:"activeRecoveries"`
	RegisteredProviders int  `json:"registeredProviders"`
	IsRunning           bool `json:"isRunning"`
}

// ProviderStatus is one provider's full resilience snapshot.
type ProviderStatus struct {
	Provider       string         `json:"provider"`
	Phase          RecoveryPhase  `json:"phase"`
	CircuitState   string         `json:"circuitState"`
	FailureCount   int            `json:"failureCount"`
	HealthCheck    *health.Result `json:"healthCheck,omitempty"`
	Recovery       RecoveryState  `json:"recovery"`
	FailoverTarget string         `json:"failoverTarget,omitempty"`
	LastFailureAt  *time.Time     `json:"lastFailureAt,omitempty"`
}

// SelfHealer watches provider health and drives automated recovery.
// Every tick it reads the breaker registry and the health monitor and
// advances each registered provider's recovery state machine by at
// most one transition: begin healing, attempt another reset, signal
// failover, or mark recovered. Ticks are serialized; a tick due while
// the previous one still runs is dropped, not queued.
type SelfHealer struct {
	mu sync.Mutex

	breakers *breaker.Registry
	monitor  *health.Monitor
	webhook  WebhookService
	audit    AuditLogger
	logger   *log.Helper

	checkInterval       time.Duration
	failureThreshold    int
	maxHealingAttempts  int
	autoRestartEnabled  bool
	autoFailoverEnabled bool

	states map[string]*RecoveryState
	events *eventLog

	totalHealingEvents int
	successfulHealings int

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// tickMu serializes ticks. TryLock gives drop-not-queue semantics.
	tickMu sync.Mutex

	now func() time.Time
}

// NewSelfHealer creates the self-healing controller from the
// resilience configuration.
func NewSelfHealer(c *conf.Bootstrap, breakers *breaker.Registry, monitor *health.Monitor, webhook WebhookService, audit AuditLogger, logger log.Logger) *SelfHealer {
	r := c.Resilience

	checkInterval := r.CheckInterval.AsDuration()
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	maxAttempts := int(r.MaxHealingAttempts)
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	threshold := int(r.FailureThreshold)
	if threshold <= 0 {
		threshold = 5
	}
	capacity := int(r.EventLogCapacity)
	if capacity <= 0 {
		capacity = 500
	}

	return &SelfHealer{
		breakers:            breakers,
		monitor:             monitor,
		webhook:             webhook,
		audit:               audit,
		logger:              log.NewHelper(logger),
		checkInterval:       checkInterval,
		failureThreshold:    threshold,
		maxHealingAttempts:  maxAttempts,
		autoRestartEnabled:  r.AutoRestartEnabled,
		autoFailoverEnabled: r.AutoFailoverEnabled,
		states:              make(map[string]*RecoveryState),
		events:              newEventLog(capacity),
		now:                 time.Now,
	}
}

// RegisterProvider initializes recovery state for a provider.
// Idempotent: registering an already-registered provider keeps the
// existing state and counters untouched.
func (h *SelfHealer) RegisterProvider(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.states[name]; ok {
		return
	}

	h.states[name] = &RecoveryState{
		Provider:         name,
		attemptedBackups: make(map[string]bool),
	}
	// Lazily materialize the breaker so status reporting sees every
	// registered provider.
	h.breakers.GetOrCreate(name)

	h.logger.Infow("provider registered for self-healing", "provider", name, "type", "healing")
}

// SetBackupProviders sets or replaces the ordered failover list for a
// provider. Unknown providers are registered first.
func (h *SelfHealer) SetBackupProviders(name string, backups []string) {
	h.RegisterProvider(name)

	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.states[name]
	st.BackupProviders = append([]string(nil), backups...)
}

// GetRecoveryState returns a copy of the provider's recovery state,
// or false if the provider is not registered.
func (h *SelfHealer) GetRecoveryState(name string) (RecoveryState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.states[name]
	if !ok {
		return RecoveryState{}, false
	}
	return h.snapshotLocked(st), true
}

// FailoverTarget returns the backup provider currently signaled for a
// provider, if any. The routing layer consults this before dispatch.
func (h *SelfHealer) FailoverTarget(name string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.states[name]
	if !ok || st.FailoverTarget == "" {
		return "", false
	}
	return st.FailoverTarget, true
}

// ResetHealingAttempts zeroes the healing budget and recovery flag for
// a provider. Manual override for operators; a no-op for unregistered
// providers.
func (h *SelfHealer) ResetHealingAttempts(name, operator string) {
	h.mu.Lock()
	st, ok := h.states[name]
	if !ok {
		h.mu.Unlock()
		return
	}

	previous := st.HealingAttempts
	st.HealingAttempts = 0
	st.IsInRecovery = false
	st.FailoverTarget = ""
	st.attemptedBackups = make(map[string]bool)
	h.mu.Unlock()

	h.audit.LogHealingReset(context.Background(), name, operator, previous)
	h.logger.Infow("healing attempts reset", "provider", name, "operator", operator, "type", "healing")
}

// GetHealingEvents returns the most-recent-first event log, optionally
// filtered by provider and capped by limit (0 means no cap).
func (h *SelfHealer) GetHealingEvents(provider string, limit int) []model.HealingEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.events.query(provider, limit)
}

// GetStats returns aggregate self-healer counters.
func (h *SelfHealer) GetStats() SelfHealerStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	active := 0
	for _, st := range h.states {
		if st.IsInRecovery {
			active++
		}
	}

	return SelfHealerStats{
		TotalHealingEvents:  h.totalHealingEvents,
		SuccessfulHealings:  h.successfulHealings,
		ActiveRecoveries:    active,
		RegisteredProviders: len(h.states),
		IsRunning:           h.running,
	}
}

// GetStatus returns every registered provider's resilience snapshot.
func (h *SelfHealer) GetStatus() []ProviderStatus {
	h.mu.Lock()
	names := make([]string, 0, len(h.states))
	for name := range h.states {
		names = append(names, name)
	}
	h.mu.Unlock()

	statuses := make([]ProviderStatus, 0, len(names))
	for _, name := range names {
		if s, ok := h.ProviderStatus(name); ok {
			statuses = append(statuses, s)
		}
	}
	return statuses
}

// ProviderStatus returns one provider's resilience snapshot.
func (h *SelfHealer) ProviderStatus(name string) (ProviderStatus, bool) {
	counts := breaker.Counts{State: h.breakers.State(name)}
	if cb, ok := h.breakers.Get(name); ok {
		counts = cb.Counts()
	}

	h.mu.Lock()
	st, ok := h.states[name]
	if !ok {
		h.mu.Unlock()
		return ProviderStatus{}, false
	}
	snap := h.snapshotLocked(st)
	phase := st.phase(counts.State, h.maxHealingAttempts, h.autoRestartEnabled, h.autoFailoverEnabled)
	h.mu.Unlock()

	status := ProviderStatus{
		Provider:       name,
		Phase:          phase,
		CircuitState:   counts.State.String(),
		FailureCount:   counts.FailureCount,
		Recovery:       snap,
		FailoverTarget: snap.FailoverTarget,
	}
	if !counts.LastFailureAt.IsZero() {
		lastFailure := counts.LastFailureAt
		status.LastFailureAt = &lastFailure
	}
	if result, ok := h.monitor.Get(name); ok {
		status.HealthCheck = &result
	}
	return status, true
}

// Start begins the periodic tick loop. Calling Start while running is
// a no-op.
func (h *SelfHealer) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.mu.Unlock()

	h.wg.Add(1)
	go h.loop()

	h.logger.Infow("self-healer started", "interval", h.checkInterval, "type", "healing")
}

// Stop cancels the tick loop and waits for an in-flight tick to
// finish. Idempotent.
func (h *SelfHealer) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.stopCh)
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Infow("self-healer stopped", "type", "healing")
}

// Running reports whether the tick loop is active.
func (h *SelfHealer) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.running
}

func (h *SelfHealer) loop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Tick(context.Background())
		case <-h.stopCh:
			return
		}
	}
}

// Tick evaluates every registered provider once. Exposed so tests and
// startup code can drive the state machine without the timer. If a
// tick is already running the call returns immediately: overlapping
// ticks are dropped, not queued.
func (h *SelfHealer) Tick(ctx context.Context) {
	if !h.tickMu.TryLock() {
		h.logger.Warnw("tick still running, skipping", "type", "healing")
		return
	}
	defer h.tickMu.Unlock()

	h.mu.Lock()
	names := make([]string, 0, len(h.states))
	for name := range h.states {
		names = append(names, name)
	}
	h.mu.Unlock()

	for _, name := range names {
		h.evaluateProvider(ctx, name)
	}
}

// evaluateProvider advances one provider's state machine by at most
// one transition. A panic in one provider's evaluation must not abort
// the remaining providers, so it is contained here.
func (h *SelfHealer) evaluateProvider(ctx context.Context, name string) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("provider evaluation panicked", "provider", name, "panic", r, "type", "healing")
		}
	}()

	breakerState := h.breakers.State(name)
	checkHealthy := h.monitor.Healthy(name)
	healthy := breakerState == breaker.StateClosed && checkHealthy

	h.mu.Lock()
	st, ok := h.states[name]
	if !ok {
		h.mu.Unlock()
		return
	}

	if healthy {
		st.ConsecutiveFailures = 0
	} else {
		st.ConsecutiveFailures++
	}

	switch {
	case st.IsInRecovery && healthy:
		h.recoverLocked(ctx, st)

	case st.IsInRecovery:
		h.continueHealingLocked(ctx, st, checkHealthy)

	case !healthy && (breakerState == breaker.StateOpen || st.ConsecutiveFailures >= h.failureThreshold):
		h.beginHealingLocked(ctx, st, breakerState, checkHealthy)

	default:
		h.mu.Unlock()
		return
	}
}

// beginHealingLocked handles the Degraded observation: the provider
// enters recovery and, depending on configuration, the first reset is
// attempted immediately or failover is considered straight away.
// Releases h.mu.
func (h *SelfHealer) beginHealingLocked(ctx context.Context, st *RecoveryState, breakerState breaker.State, checkHealthy bool) {
	st.IsInRecovery = true

	counts := breaker.Counts{State: breakerState}
	if cb, ok := h.breakers.Get(st.Provider); ok {
		counts = cb.Counts()
	}

	provider := st.Provider
	failureCount := counts.FailureCount
	h.logger.Warnw("provider degraded, entering recovery",
		"provider", provider,
		"circuit_state", breakerState.String(),
		"consecutive_failures", st.ConsecutiveFailures,
		"type", "circuit")

	if h.autoRestartEnabled {
		h.attemptHealLocked(ctx, st, checkHealthy)
	} else if h.autoFailoverEnabled {
		h.signalFailoverLocked(ctx, st)
	} else {
		h.mu.Unlock()
	}

	// Broken notification goes out once, at incident start.
	brokenAt := h.now()
	h.notify(func() {
		_ = h.webhook.NotifyCircuitBroken(ctx, &model.CircuitBrokenEvent{
			Provider:     provider,
			FailureCount: failureCount,
			BrokenAt:     brokenAt,
		})
	})
	h.audit.LogCircuitBroken(ctx, provider, failureCount, brokenAt)
}

// continueHealingLocked handles a provider already in recovery that is
// still unhealthy: attempt another reset while budget remains,
// otherwise signal failover. Releases h.mu.
func (h *SelfHealer) continueHealingLocked(ctx context.Context, st *RecoveryState, checkHealthy bool) {
	if h.autoRestartEnabled && st.HealingAttempts < h.maxHealingAttempts {
		h.attemptHealLocked(ctx, st, checkHealthy)
		return
	}
	if h.autoFailoverEnabled {
		h.signalFailoverLocked(ctx, st)
		return
	}
	h.mu.Unlock()
}

// attemptHealLocked performs one healing action: reset the provider's
// breaker so the next call is a fresh trial. The first attempt of an
// incident is a retry-reset; later ones recreate the breaker state
// from scratch (restart). Releases h.mu.
func (h *SelfHealer) attemptHealLocked(ctx context.Context, st *RecoveryState, checkHealthy bool) {
	action := model.ActionRetryReset
	if st.HealingAttempts > 0 {
		action = model.ActionRestart
	}

	st.HealingAttempts++
	healedAt := h.now()
	st.LastHealedAt = &healedAt

	provider := st.Provider
	attempt := st.HealingAttempts

	// Reset always closes the breaker, so the outcome hinges on the
	// last known health result: a reset while the probe still fails is
	// recorded as a failed attempt.
	outcome := model.OutcomeSuccess
	detail := "breaker reset, awaiting trial call"
	if !checkHealthy {
		outcome = model.OutcomeFailure
		detail = "breaker reset, health check still failing"
	}

	h.recordEventLocked(model.HealingEvent{
		Timestamp: healedAt,
		Provider:  provider,
		Action:    action,
		Outcome:   outcome,
		Detail:    detail,
	})
	h.mu.Unlock()

	h.breakers.Reset(provider)

	h.logger.Warnw("healing attempt",
		"provider", provider,
		"action", string(action),
		"attempt", attempt,
		"max_attempts", h.maxHealingAttempts,
		"type", "healing")
}

// signalFailoverLocked picks the next untried backup in order and
// signals redirection. With the backup list exhausted the failure is
// recorded once and the provider stays parked until a manual reset or
// self-recovery. Releases h.mu.
func (h *SelfHealer) signalFailoverLocked(ctx context.Context, st *RecoveryState) {
	var target string
	for _, backup := range st.BackupProviders {
		if !st.attemptedBackups[backup] {
			target = backup
			break
		}
	}

	provider := st.Provider
	signaledAt := h.now()

	if target == "" {
		// Nothing left to fail over to. Record once per incident.
		if !st.attemptedBackups["*exhausted*"] {
			st.attemptedBackups["*exhausted*"] = true
			h.recordEventLocked(model.HealingEvent{
				Timestamp: signaledAt,
				Provider:  provider,
				Action:    model.ActionFailover,
				Outcome:   model.OutcomeFailure,
				Detail:    "no backup provider available",
			})
			h.mu.Unlock()
			h.logger.Errorw("healing exhausted with no backup available", "provider", provider, "type", "failover")
			return
		}
		h.mu.Unlock()
		return
	}

	st.attemptedBackups[target] = true
	st.FailoverTarget = target

	h.recordEventLocked(model.HealingEvent{
		Timestamp:    signaledAt,
		Provider:     provider,
		Action:       model.ActionFailover,
		Outcome:      model.OutcomeSuccess,
		TargetBackup: target,
	})
	h.mu.Unlock()

	h.logger.Warnw("failover signaled",
		"provider", provider,
		"target_backup", target,
		"type", "failover")

	h.notify(func() {
		_ = h.webhook.NotifyFailover(ctx, &model.FailoverEvent{
			Provider:     provider,
			TargetBackup: target,
			SignaledAt:   signaledAt,
		})
	})
	h.audit.LogFailoverSignaled(ctx, provider, target, signaledAt)
}

// recoverLocked closes out an incident: the provider is healthy again,
// so counters and failover bookkeeping are cleared. Releases h.mu.
func (h *SelfHealer) recoverLocked(ctx context.Context, st *RecoveryState) {
	attempts := st.HealingAttempts
	provider := st.Provider

	st.IsInRecovery = false
	st.HealingAttempts = 0
	st.ConsecutiveFailures = 0
	st.FailoverTarget = ""
	st.attemptedBackups = make(map[string]bool)

	h.successfulHealings++
	h.mu.Unlock()

	recoveredAt := h.now()
	h.logger.Infow("provider recovered",
		"provider", provider,
		"healing_attempts", attempts,
		"type", "success")

	h.notify(func() {
		_ = h.webhook.NotifyCircuitRecovered(ctx, &model.CircuitRecoveredEvent{
			Provider:        provider,
			HealingAttempts: attempts,
			RecoveredAt:     recoveredAt,
		})
	})
	h.audit.LogCircuitRecovered(ctx, provider, attempts, recoveredAt)
}

// notify runs a webhook call without letting a panicking or slow
// implementation take down the tick loop.
func (h *SelfHealer) notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("webhook notification panicked", "panic", r, "type", "healing")
		}
	}()
	fn()
}

// recordEventLocked appends to the bounded event log. Caller holds h.mu.
func (h *SelfHealer) recordEventLocked(event model.HealingEvent) {
	h.events.add(event)
	h.totalHealingEvents++
}

// snapshotLocked copies a recovery state for external consumption.
// Caller holds h.mu.
func (h *SelfHealer) snapshotLocked(st *RecoveryState) RecoveryState {
	snap := *st
	snap.BackupProviders = append([]string(nil), st.BackupProviders...)
	snap.attemptedBackups = nil
	return snap
}

// eventLog is a bounded ring of healing events, newest overwriting
// oldest once capacity is reached.
type eventLog struct {
	buf  []model.HealingEvent
	next int
	size int
}

func newEventLog(capacity int) *eventLog {
	return &eventLog{buf: make([]model.HealingEvent, capacity)}
}

func (l *eventLog) add(event model.HealingEvent) {
	l.buf[l.next] = event
	l.next = (l.next + 1) % len(l.buf)
	if l.size < len(l.buf) {
		l.size++
	}
}

// query returns events most recent first, filtered by provider when
// non-empty and capped by limit when positive.
func (l *eventLog) query(provider string, limit int) []model.HealingEvent {
	out := make([]model.HealingEvent, 0, l.size)
	for i := 0; i < l.size; i++ {
		idx := (l.next - 1 - i + len(l.buf)) % len(l.buf)
		event := l.buf[idx]
		if provider != "" && event.Provider != provider {
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
