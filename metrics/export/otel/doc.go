// Package otel exports goIdentity engine counters through OpenTelemetry.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads
// [goIdentity.Engine.MetricsSnapshot] on each collection cycle. The caller
// owns the MeterProvider.
package otel
