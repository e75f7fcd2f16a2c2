// Package otel exports authflow engine counters through OpenTelemetry.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter and an
// Int64ObservableGauge per latency bucket. One callback reads
// MetricsSnapshot on each collection cycle. Callers own the MeterProvider.
package otel
