package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careops-alert-engine/internal/stats"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	require.NotNil(t, m)

	// Double registration on the same registry fails.
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.IncEventsTotal("mqtt")
	m.IncEventsTotal("mqtt")
	m.IncEventsTotal("nats")
	m.SetRulesActive(4)
	m.IncEvaluations()
	m.IncRuleMatches()
	m.IncFirings("success")
	m.IncFirings("failed")
	m.IncSuppressed()
	m.IncActions("slack_notification", "success")
	m.IncActions("slack_notification", "failed")
	m.ObserveDispatchDuration(120 * time.Millisecond)
	m.IncDigestFlushes()
	m.IncLedgerErrors()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.eventsTotal.WithLabelValues("mqtt")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsTotal.WithLabelValues("nats")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.rulesActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.evaluationsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.matchesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.firingsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.firingsTotal.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.suppressedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.actionsTotal.WithLabelValues("slack_notification", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.digestFlushes))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ledgerErrors))
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics

	// Instrumented paths run without metrics wiring.
	m.IncEventsTotal("mqtt")
	m.SetRulesActive(1)
	m.IncEvaluations()
	m.IncRuleMatches()
	m.IncFirings("success")
	m.IncSuppressed()
	m.IncActions("webhook", "failed")
	m.ObserveDispatchDuration(time.Second)
	m.IncDigestFlushes()
	m.IncLedgerErrors()
}

func TestCollectorUpdatesUptime(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	source := stats.NewCollector()
	source.StartTime = time.Now().Add(-time.Minute)

	c := NewCollector(m, source, 5*time.Millisecond)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.uptimeSeconds) >= 59
	}, time.Second, 5*time.Millisecond)
}

func TestCollectorStopIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	c := NewCollector(m, stats.NewCollector(), time.Millisecond)
	c.Start()
	c.Stop()
	c.Stop()
}
