// Package otel publishes storefront metrics as OpenTelemetry observable instruments.
//
// Each counter family becomes one Int64ObservableCounter whose series carry a single
// attribute (outcome, variant, event or decision). The latency histogram is exported
// as a bucket gauge keyed by "le" plus a count gauge. One callback reads
// [otpauth.Engine.MetricsSnapshot] per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
