// Package registry persists the set of monitored entities so
// auto-discovered entries survive daemon restarts.
package registry
