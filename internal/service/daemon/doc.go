// Package daemon wires the long-running process: broker bridge, loop
// guard, override channel, reversal scheduler, entity registry and the
// admin HTTP API.
package daemon
