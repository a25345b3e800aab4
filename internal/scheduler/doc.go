// Package scheduler implements the debounced reversal scheduler: one
// cancelable delayed task per monitored entity that waits, re-validates
// current state and restores the pre-transition value through the
// actuator. Supersession is enforced twice, by canceling the previous
// task's context and by an epoch check immediately before the actuator
// call.
package scheduler
