// Package metrics exposes Prometheus instrumentation for the daemon's
// API surface, status reconciler, and log pipeline.
package metrics
