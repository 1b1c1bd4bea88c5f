// Package metrics exposes prometheus instrumentation for the metering core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the counters for the hot paths of the metering engine.
type Metrics struct {
	registry *prometheus.Registry

	usageIncrements    *prometheus.CounterVec
	limitChecks        *prometheus.CounterVec
	alertsRaised       *prometheus.CounterVec
	auditEntries       prometheus.Counter
	verifyFailures     prometheus.Counter
	eventsProcessed    prometheus.Counter
	eventsDeduplicated prometheus.Counter
	rateLimitDenied    *prometheus.CounterVec
	windowsEvicted     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		usageIncrements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelgate_usage_increments_total",
			Help: "Usage counter increments applied, by tenant.",
		}, []string{"tenant"}),
		limitChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelgate_limit_checks_total",
			Help: "Quota limit evaluations, by outcome (ok, warning, exceeded).",
		}, []string{"outcome"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelgate_budget_alerts_raised_total",
			Help: "Budget alerts created, by alert type.",
		}, []string{"alert_type"}),
		auditEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "panelgate_audit_entries_total",
			Help: "Audit ledger entries recorded.",
		}),
		verifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "panelgate_audit_verify_failures_total",
			Help: "Audit entries whose stored hash did not match on verification.",
		}),
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "panelgate_external_events_processed_total",
			Help: "External events applied for the first time.",
		}),
		eventsDeduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "panelgate_external_events_deduplicated_total",
			Help: "External event deliveries skipped as already processed.",
		}),
		rateLimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelgate_rate_limit_denied_total",
			Help: "Ingest requests denied by the transport rate limiter.",
		}, []string{"reason"}),
		windowsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panelgate_quota_windows_evicted_total",
			Help: "Stale quota counter rows evicted, by window type.",
		}, []string{"window_type"}),
	}

	registry.MustRegister(
		m.usageIncrements,
		m.limitChecks,
		m.alertsRaised,
		m.auditEntries,
		m.verifyFailures,
		m.eventsProcessed,
		m.eventsDeduplicated,
		m.rateLimitDenied,
		m.windowsEvicted,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncUsageIncrement(tenant string) {
	if m == nil {
		return
	}
	m.usageIncrements.WithLabelValues(tenant).Inc()
}

func (m *Metrics) IncLimitCheck(outcome string) {
	if m == nil {
		return
	}
	m.limitChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAlertRaised(alertType string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(alertType).Inc()
}

func (m *Metrics) IncAuditEntry() {
	if m == nil {
		return
	}
	m.auditEntries.Inc()
}

func (m *Metrics) IncVerifyFailure() {
	if m == nil {
		return
	}
	m.verifyFailures.Inc()
}

func (m *Metrics) IncEventProcessed() {
	if m == nil {
		return
	}
	m.eventsProcessed.Inc()
}

func (m *Metrics) IncEventDeduplicated() {
	if m == nil {
		return
	}
	m.eventsDeduplicated.Inc()
}

func (m *Metrics) IncRateLimitDenied(reason string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddWindowsEvicted(windowType string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.windowsEvicted.WithLabelValues(windowType).Add(float64(n))
}
