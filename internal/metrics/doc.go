// Package metrics defines the Prometheus collectors exported by the
// daemon: reversal outcomes, suppressed changes, notification results,
// override usage and pending task count.
package metrics
