package trail

import (
	"github.com/getmockd/audittrail/pkg/audit"
	"github.com/getmockd/audittrail/pkg/metrics"
)

// Metrics are the trail's operational counters.
type Metrics struct {
	registry *metrics.Registry

	// Events counts records handed to the registry, by source
	// ("request", "build" or "manual").
	Events *metrics.Counter
	// Records counts backend writes by backend kind and result.
	Records *metrics.Counter
	// Applies counts configuration changes by result.
	Applies *metrics.Counter
	// Loggers is the number of configured backends by kind.
	Loggers *metrics.Gauge
}

func newMetrics() *Metrics {
	r := metrics.NewRegistry()
	return &Metrics{
		registry: r,
		Events:   r.NewCounter("audittrail_events_total", "Audit records dispatched to the backends.", "source"),
		Records:  r.NewCounter("audittrail_backend_records_total", "Backend writes.", "backend", "result"),
		Applies:  r.NewCounter("audittrail_config_applies_total", "Configuration changes.", "result"),
		Loggers:  r.NewGauge("audittrail_loggers", "Configured backends.", "kind"),
	}
}

// Registry returns the metric registry for exposition.
func (m *Metrics) Registry() *metrics.Registry { return m.registry }

func (m *Metrics) setLoggers(loggers []audit.AuditLogger) {
	counts := map[string]int{"console": 0, "logFile": 0, "syslog": 0}
	for _, l := range loggers {
		counts[l.Config().Kind()]++
	}
	for kind, n := range counts {
		_ = m.Loggers.Set(float64(n), kind)
	}
}

// countingDispatcher counts every record it forwards.
type countingDispatcher struct {
	next    audit.Dispatcher
	source  string
	metrics *Metrics
}

func (d *countingDispatcher) Dispatch(message string) error {
	_ = d.metrics.Events.Inc(d.source)
	return d.next.Dispatch(message)
}

// instrumentedLogger records the outcome of every write of the wrapped
// backend.
type instrumentedLogger struct {
	audit.AuditLogger
	kind    string
	metrics *Metrics
}

func instrument(l audit.AuditLogger, m *Metrics) audit.AuditLogger {
	return &instrumentedLogger{AuditLogger: l, kind: l.Config().Kind(), metrics: m}
}

func (l *instrumentedLogger) Log(message string) error {
	err := l.AuditLogger.Log(message)
	result := "ok"
	if err != nil {
		result = "error"
	}
	_ = l.metrics.Records.Inc(l.kind, result)
	return err
}
