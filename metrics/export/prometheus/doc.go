// Package prometheus renders authcore metrics in the Prometheus text
// exposition format.
//
// Counters are named authcore_*_total and the sign-in latency histogram is
// authcore_sign_in_latency_seconds. Audit dispatcher drops and sink failures
// are exported alongside. Nothing is registered globally; callers mount
// [Exporter.Handler] themselves.
package prometheus
