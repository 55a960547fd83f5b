// Package prometheus exposes engine counters to a Prometheus registry.
//
// [NewCollector] wraps an engine as a prometheus.Collector. Every scrape reads one
// [tokenauth.Engine.MetricsSnapshot]: counters become tokenauth_*_total, and the validate
// latency buckets become the tokenauth_validate_latency_seconds histogram.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry; callers pick the registerer.
//   - Mutate engine state.
package prometheus
