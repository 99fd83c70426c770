package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"PesaGate/internal/biz"
	"PesaGate/internal/conf"
	"PesaGate/pkg/breaker"
	"PesaGate/pkg/health"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

func newTestMetrics(t *testing.T) (*Metrics, *breaker.Registry, *biz.SelfHealer) {
	t.Helper()

	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 3, ResetTimeout: 30 * time.Second})
	monitor, err := health.NewMonitor(time.Minute, time.Second, log.DefaultLogger)
	require.NoError(t, err)

	c := &conf.Bootstrap{Resilience: &conf.Resilience{
		CheckInterval:       durationpb.New(30 * time.Second),
		FailureThreshold:    3,
		ResetTimeout:        durationpb.New(30 * time.Second),
		MaxHealingAttempts:  3,
		AutoRestartEnabled:  true,
		AutoFailoverEnabled: true,
		EventLogCapacity:    100,
	}}

	healer := biz.NewSelfHealer(c, breakers, monitor, nil, nil, log.DefaultLogger)

	m, err := New(breakers, healer)
	require.NoError(t, err)
	return m, breakers, healer
}

func TestMetrics_PaymentCounters(t *testing.T) {
	m, _, _ := newTestMetrics(t)

	m.PaymentsTotal.WithLabelValues("mpesa", "pending").Inc()
	m.PaymentsTotal.WithLabelValues("mpesa", "pending").Inc()
	m.PaymentsTotal.WithLabelValues("paystack", "failed").Inc()
	m.RefundsTotal.WithLabelValues("mpesa").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PaymentsTotal.WithLabelValues("mpesa", "pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsTotal.WithLabelValues("paystack", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefundsTotal.WithLabelValues("mpesa")))
}

func TestMetrics_CircuitStateGauge(t *testing.T) {
	m, breakers, _ := newTestMetrics(t)

	cb := breakers.GetOrCreate("mpesa")
	count, err := testutil.GatherAndCount(m.Registry(), "pesagate_circuit_state")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	for i := 0; i < 3; i++ {
		_, execErr := cb.Execute(context.Background(), func(context.Context) (any, error) {
			return nil, errors.New("down")
		})
		require.Error(t, execErr)
	}
	require.Equal(t, breaker.StateOpen, cb.State())

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	found := false
	for _, fam := range families {
		if fam.GetName() != "pesagate_circuit_state" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			found = true
			assert.Equal(t, 2.0, metric.GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestMetrics_HealerCounters(t *testing.T) {
	m, _, healer := newTestMetrics(t)

	healer.RegisterProvider("mpesa")
	healer.RegisterProvider("paystack")

	count, err := testutil.GatherAndCount(m.Registry(),
		"pesagate_healing_events_total",
		"pesagate_healing_registered_providers")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
