// Package prometheus renders storefront metrics in the Prometheus text exposition
// format.
//
// Counters are grouped into labelled families (storefront_challenges_total{outcome},
// storefront_guard_decisions_total{decision}, ...). The backend latency histogram is
// storefront_backend_latency_seconds, and audit drops are counted per event_type.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
