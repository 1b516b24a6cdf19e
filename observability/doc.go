// Package observability provides OpenTelemetry-based metrics for Flowline.
// The MetricsExtension implements lifecycle hooks to record system-wide
// counters and latency histograms for execution, step, and schedule events.
//
// For per-action tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
