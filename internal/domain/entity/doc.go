// Package entity holds the domain model for monitored boolean entities:
// values, state snapshots, transitions and causation tokens.
package entity
