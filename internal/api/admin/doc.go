// Package admin exposes the daemon's HTTP surface: entity and task
// status, manual override writes and the Prometheus metrics endpoint.
package admin
