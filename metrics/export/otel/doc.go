// Package otel binds authcore metrics to an OpenTelemetry Meter.
//
// [New] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per cumulative latency bucket. A single callback reads
// the engine snapshot on each collection cycle. Callers own the
// MeterProvider.
package otel
