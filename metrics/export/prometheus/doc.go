// Package prometheus exposes authflow engine metrics through
// prometheus/client_golang.
//
// [NewCollector] wraps anything with a MetricsSnapshot method (normally an
// *authflow.Engine) as a prometheus.Collector. Counter names are prefixed
// authflow_*_total; the single histogram is authflow_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry; callers register the
//     collector or mount [Handler].
//   - Mutate engine state.
package prometheus
