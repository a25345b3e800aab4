// Package override implements the out-of-band override channel: a
// synchronised mapping from entity key to a pending delay override,
// written by external action signals and consumed exactly once by the
// reversal scheduler's delay computation.
package override
