// Package mqtt adapts the daemon to its MQTT event bridge: it consumes
// state change events, publishes reversal commands and notifications,
// feeds override action strings to the override channel, and caches the
// last-seen snapshot per entity for state validation.
package mqtt
