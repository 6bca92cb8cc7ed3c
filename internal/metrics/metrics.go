package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"careops-alert-engine/internal/stats"
)

// Metrics exposes the engine's prometheus instruments. All methods are
// safe for concurrent use and tolerate a nil receiver so instrumented
// code paths do not need metrics wiring in tests.
type Metrics struct {
	eventsTotal      *prometheus.CounterVec
	rulesActive      prometheus.Gauge
	evaluationsTotal prometheus.Counter
	matchesTotal     prometheus.Counter
	firingsTotal     *prometheus.CounterVec
	suppressedTotal  prometheus.Counter
	actionsTotal     *prometheus.CounterVec
	dispatchSeconds  prometheus.Histogram
	digestFlushes    prometheus.Counter
	ledgerErrors     prometheus.Counter
	uptimeSeconds    prometheus.Gauge
}

// NewMetrics creates and registers the engine metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "careops_events_total",
			Help: "Number of events received, by source",
		}, []string{"source"}),
		rulesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "careops_rules_active",
			Help: "Number of active rules in the trigger index",
		}),
		evaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "careops_evaluations_total",
			Help: "Number of rule evaluations performed",
		}),
		matchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "careops_rule_matches_total",
			Help: "Number of rule evaluations that matched",
		}),
		firingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "careops_firings_total",
			Help: "Number of rule firings, by final execution status",
		}, []string{"status"}),
		suppressedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "careops_suppressed_total",
			Help: "Number of matches suppressed by cooldown",
		}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "careops_actions_total",
			Help: "Number of action dispatch attempts, by type and result",
		}, []string{"type", "result"}),
		dispatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "careops_dispatch_duration_seconds",
			Help:    "Wall time of full action fan-out per firing",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		digestFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "careops_digest_flushes_total",
			Help: "Number of digest buckets delivered",
		}),
		ledgerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "careops_ledger_errors_total",
			Help: "Number of ledger write failures after retries",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "careops_uptime_seconds",
			Help: "Engine uptime in seconds",
		}),
	}

	collectors := []prometheus.Collector{
		m.eventsTotal,
		m.rulesActive,
		m.evaluationsTotal,
		m.matchesTotal,
		m.firingsTotal,
		m.suppressedTotal,
		m.actionsTotal,
		m.dispatchSeconds,
		m.digestFlushes,
		m.ledgerErrors,
		m.uptimeSeconds,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) IncEventsTotal(source string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) SetRulesActive(n float64) {
	if m == nil {
		return
	}
	m.rulesActive.Set(n)
}

func (m *Metrics) IncEvaluations() {
	if m == nil {
		return
	}
	m.evaluationsTotal.Inc()
}

func (m *Metrics) IncRuleMatches() {
	if m == nil {
		return
	}
	m.matchesTotal.Inc()
}

func (m *Metrics) IncFirings(status string) {
	if m == nil {
		return
	}
	m.firingsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncSuppressed() {
	if m == nil {
		return
	}
	m.suppressedTotal.Inc()
}

func (m *Metrics) IncActions(actionType, result string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(actionType, result).Inc()
}

func (m *Metrics) ObserveDispatchDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchSeconds.Observe(d.Seconds())
}

func (m *Metrics) IncDigestFlushes() {
	if m == nil {
		return
	}
	m.digestFlushes.Inc()
}

func (m *Metrics) IncLedgerErrors() {
	if m == nil {
		return
	}
	m.ledgerErrors.Inc()
}

// Collector periodically reflects engine stats into gauges that cannot
// be updated incrementally.
type Collector struct {
	metrics  *Metrics
	source   *stats.Collector
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewCollector creates a metrics collector polling the given stats
// source.
func NewCollector(m *Metrics, source *stats.Collector, interval time.Duration) *Collector {
	return &Collector{
		metrics:  m,
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background update loop.
func (c *Collector) Start() {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.update()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop terminates the update loop and waits for it to exit.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
}

func (c *Collector) update() {
	snap := c.source.GetSnapshot()
	c.metrics.uptimeSeconds.Set(snap.Uptime.Seconds())
}
