// Package guard filters incoming state changes so that the system's own
// corrective actions never re-trigger the reversal scheduler.
//
// Two interchangeable strategies are provided: WindowGuard tracks a
// per-key processing window, CausationGuard tracks causation tokens of
// the system's own actuator calls. Exactly one is active per
// deployment, selected by configuration.
package guard
