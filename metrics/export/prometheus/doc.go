// Package prometheus exposes ctadmin client metrics as a Prometheus collector.
//
// [PrometheusExporter] implements prometheus.Collector. Counters are named
// ctadmin_*_total; request and renewal latency are the histograms
// ctadmin_request_latency_seconds and ctadmin_renewal_latency_seconds.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry; callers choose the registry.
//   - Mutate client state.
package prometheus
