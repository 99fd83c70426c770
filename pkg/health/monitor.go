// Package health runs named health checks on a fixed interval and
// retains the most recent result per check. Checks run concurrently
// within a tick, each bounded by its own timeout; a check that exceeds
// its timeout counts as failed.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

var (
	// ErrInvalidInterval indicates the check interval must be positive.
	ErrInvalidInterval = errors.New("health: check interval must be positive")
	// ErrInvalidTimeout indicates the check timeout must be positive.
	ErrInvalidTimeout = errors.New("health: check timeout must be positive")
	// ErrUnknownCheck indicates no check is registered under the name.
	ErrUnknownCheck = errors.New("health: unknown check")
)

// CheckFunc probes a single dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// CheckConfig holds per-check options.
type CheckConfig struct {
	// Timeout bounds a single probe. Zero means the monitor default.
	Timeout time.Duration
	// Critical marks checks that gate the aggregate status. A failing
	// non-critical check degrades the report but does not make the
	// aggregate unhealthy.
	Critical bool
}

// Result is the most recent outcome of one check.
type Result struct {
	Name      string        `json:"name"`
	Healthy   bool          `json:"healthy"`
	Critical  bool          `json:"critical"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
	Error     string        `json:"error,omitempty"`
}

// Status is the aggregate health report.
type Status struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]Result `json:"checks"`
}

type registeredCheck struct {
	fn       CheckFunc
	timeout  time.Duration
	critical bool
}

// Monitor owns a set of named health checks and their last results.
// Safe for concurrent use.
type Monitor struct {
	mu      sync.RWMutex
	checks  map[string]registeredCheck
	results map[string]Result

	interval       time.Duration
	defaultTimeout time.Duration
	logger         *log.Helper

	running bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	now func() time.Time
}

// NewMonitor creates a health monitor.
// interval is how often checks run; defaultTimeout bounds checks that
// do not set their own.
func NewMonitor(interval, defaultTimeout time.Duration, logger log.Logger) (*Monitor, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if defaultTimeout <= 0 {
		return nil, ErrInvalidTimeout
	}

	return &Monitor{
		checks:         make(map[string]registeredCheck),
		results:        make(map[string]Result),
		interval:       interval,
		defaultTimeout: defaultTimeout,
		logger:         log.NewHelper(logger),
		now:            time.Now,
	}, nil
}

// Register adds a critical check with the monitor default timeout.
// Registering an existing name replaces the check function.
func (m *Monitor) Register(name string, fn CheckFunc) {
	m.RegisterWithConfig(name, fn, CheckConfig{Critical: true})
}

// RegisterWithConfig adds a check with explicit options.
func (m *Monitor) RegisterWithConfig(name string, fn CheckFunc, cfg CheckConfig) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	m.mu.Lock()
	m.checks[name] = registeredCheck{fn: fn, timeout: timeout, critical: cfg.Critical}
	m.mu.Unlock()

	m.logger.Infof("registered health check: %s (timeout=%v critical=%v)", name, timeout, cfg.Critical)
}

// Start begins the periodic check loop. Calling Start while running is
// a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopped = false
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop()

	m.logger.Infof("health monitor started - checking every %v", m.interval)
}

// Stop cancels the check loop. In-flight probes are not interrupted but
// their results are discarded. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.stopped = true
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("health monitor stopped")
}

// Running reports whether the check loop is active.
func (m *Monitor) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.running
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.RunChecks(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// RunChecks executes every registered check once, concurrently, and
// waits for all of them. Exposed so startup code and tests can probe
// without waiting for the first tick.
func (m *Monitor) RunChecks(ctx context.Context) {
	m.mu.RLock()
	checks := make(map[string]registeredCheck, len(m.checks))
	for name, c := range m.checks {
		checks[name] = c
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for name, c := range checks {
		wg.Add(1)
		go func(name string, c registeredCheck) {
			defer wg.Done()
			m.record(m.probe(ctx, name, c))
		}(name, c)
	}
	wg.Wait()
}

// RunCheck executes a single named check immediately and records its
// result.
func (m *Monitor) RunCheck(ctx context.Context, name string) (Result, error) {
	m.mu.RLock()
	c, ok := m.checks[name]
	m.mu.RUnlock()

	if !ok {
		return Result{}, ErrUnknownCheck
	}

	result := m.probe(ctx, name, c)
	m.record(result)

	return result, nil
}

func (m *Monitor) probe(ctx context.Context, name string, c registeredCheck) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := m.now()
	err := runSafely(ctx, c.fn)
	latency := m.now().Sub(start)

	result := Result{
		Name:      name,
		Healthy:   err == nil,
		Critical:  c.critical,
		Latency:   latency,
		CheckedAt: m.now(),
	}
	if err != nil {
		result.Error = err.Error()
		m.logger.Warnf("health check %s failed in %v: %v", name, latency, err)
	}

	return result
}

// runSafely turns a panicking check into a failed check.
func runSafely(ctx context.Context, fn CheckFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("health check panicked")
		}
	}()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.New("health check panicked")
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		// Timed-out checks count as failures; the probe goroutine is
		// abandoned and its late result ignored.
		return ctx.Err()
	}
}

// record stores a result unless the monitor has been stopped, in which
// case late results are discarded.
func (m *Monitor) record(result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.results[result.Name] = result
}

// Get returns the last result for a named check.
func (m *Monitor) Get(name string) (Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.results[name]

	return r, ok
}

// Healthy reports the last known outcome for a named check. A check
// that has never run reports healthy: absence of evidence is not
// treated as an outage.
func (m *Monitor) Healthy(name string) bool {
	r, ok := m.Get(name)
	if !ok {
		return true
	}

	return r.Healthy
}

// Results returns a copy of all last-known results.
func (m *Monitor) Results() map[string]Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Result, len(m.results))
	for name, r := range m.results {
		out[name] = r
	}

	return out
}

// Status returns the aggregate report: healthy iff every critical
// check's last result passed.
func (m *Monitor) Status() Status {
	checks := m.Results()

	healthy := true
	for _, r := range checks {
		if r.Critical && !r.Healthy {
			healthy = false
			break
		}
	}

	return Status{Healthy: healthy, Checks: checks}
}
