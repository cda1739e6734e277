// Package prometheus provides a Prometheus collector for goIdentity metrics.
//
// [NewCollector] wraps an [goIdentity.Engine] as a prometheus.Collector.
// Counter names are prefixed goidentity_*_total; the single histogram is
// goidentity_throttle_latency_seconds.
//
// The collector never registers itself in the global registry and never
// mutates engine state.
package prometheus
