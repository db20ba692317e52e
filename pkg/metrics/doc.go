// Package metrics provides counters and gauges exposed in the Prometheus
// text exposition format (text/plain; version=0.0.4).
//
// A family is registered once with its label names; each update selects a
// series by label values:
//
//	registry := metrics.NewRegistry()
//	records := registry.NewCounter("audittrail_records_total", "Records written", "backend", "result")
//	_ = records.Inc("logFile", "ok")
//
//	http.Handle("/metrics", registry.Handler())
//
// All metrics are safe for concurrent use.
package metrics
