// Package metrics exposes PesaGate's Prometheus instrumentation: payment
// throughput counters updated by the service layer, and a collector that
// snapshots the circuit breaker registry and the self-healer at scrape
// time.
package metrics

import (
	"net/http"

	"PesaGate/internal/biz"
	"PesaGate/pkg/breaker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pesagate"

// Metrics holds the registry and the instruments the service layer
// updates directly.
type Metrics struct {
	registry *prometheus.Registry

	// PaymentsTotal counts initiated payments by provider and outcome
	// status.
	PaymentsTotal *prometheus.CounterVec
	// PaymentDuration observes the initiate round trip per provider.
	PaymentDuration *prometheus.HistogramVec
	// RefundsTotal counts refund requests by provider.
	RefundsTotal *prometheus.CounterVec
	// RequestsTotal counts API requests by route and HTTP code.
	RequestsTotal *prometheus.CounterVec
}

// New creates the metrics registry and hooks the resilience collector
// to the breaker registry and the self-healer.
func New(breakers *breaker.Registry, healer *biz.SelfHealer) (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		PaymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "total",
			Help:      "Total payments initiated, by provider and resulting status",
		}, []string{"provider", "status"}),
		PaymentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "initiate_duration_seconds",
			Help:      "Payment initiation round trip duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		RefundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "refunds_total",
			Help:      "Total refund requests, by provider",
		}, []string{"provider"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests, by route and HTTP status code",
		}, []string{"route", "code"}),
	}

	for _, c := range []prometheus.Collector{
		m.PaymentsTotal,
		m.PaymentDuration,
		m.RefundsTotal,
		m.RequestsTotal,
		newResilienceCollector(breakers, healer),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// resilienceCollector snapshots breaker and self-healer state at scrape
// time instead of maintaining gauges on every transition.
type resilienceCollector struct {
	breakers *breaker.Registry
	healer   *biz.SelfHealer

	circuitState       *prometheus.Desc
	circuitFailures    *prometheus.Desc
	healingEvents      *prometheus.Desc
	successfulHealings *prometheus.Desc
	activeRecoveries   *prometheus.Desc
	providers          *prometheus.Desc
}

func newResilienceCollector(breakers *breaker.Registry, healer *biz.SelfHealer) *resilienceCollector {
	return &resilienceCollector{
		breakers: breakers,
		healer:   healer,
		circuitState: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "circuit", "state"),
			"Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
			[]string{"provider"}, nil,
		),
		circuitFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "circuit", "failures"),
			"Consecutive failure count per provider breaker",
			[]string{"provider"}, nil,
		),
		healingEvents: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "healing", "events_total"),
			"Healing events recorded since startup",
			nil, nil,
		),
		successfulHealings: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "healing", "recoveries_total"),
			"Providers that recovered after healing since startup",
			nil, nil,
		),
		activeRecoveries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "healing", "active_recoveries"),
			"Providers currently in recovery",
			nil, nil,
		),
		providers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "healing", "registered_providers"),
			"Providers registered with the self-healer",
			nil, nil,
		),
	}
}

func (c *resilienceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.circuitState
	ch <- c.circuitFailures
	ch <- c.healingEvents
	ch <- c.successfulHealings
	ch <- c.activeRecoveries
	ch <- c.providers
}

func (c *resilienceCollector) Collect(ch chan<- prometheus.Metric) {
	for provider, counts := range c.breakers.Snapshot() {
		ch <- prometheus.MustNewConstMetric(
			c.circuitState, prometheus.GaugeValue, stateValue(counts.State), provider)
		ch <- prometheus.MustNewConstMetric(
			c.circuitFailures, prometheus.GaugeValue, float64(counts.FailureCount), provider)
	}

	stats := c.healer.GetStats()
	ch <- prometheus.MustNewConstMetric(
		c.healingEvents, prometheus.CounterValue, float64(stats.TotalHealingEvents))
	ch <- prometheus.MustNewConstMetric(
		c.successfulHealings, prometheus.CounterValue, float64(stats.SuccessfulHealings))
	ch <- prometheus.MustNewConstMetric(
		c.activeRecoveries, prometheus.GaugeValue, float64(stats.ActiveRecoveries))
	ch <- prometheus.MustNewConstMetric(
		c.providers, prometheus.GaugeValue, float64(stats.RegisteredProviders))
}

func stateValue(s breaker.State) float64 {
	switch s {
	case breaker.StateOpen:
		return 2
	case breaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}
