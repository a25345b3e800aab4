package guard

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lucasschonrock/spring-input-boolean/internal/domain/entity"
	"github.com/lucasschonrock/spring-input-boolean/internal/logger"
)

// CausationGuard implements causation-identity tracking: it keeps a
// bounded set of causation tokens produced by this system's own
// actuator calls and discards changes carrying one of them.
//
// After a reversal the guard waits a short grace delay so the new
// causation token can propagate, then reads the current snapshot back
// and records its token. Suppression consumes set membership so a
// reused token cannot wedge the guard.
type CausationGuard struct {
	// reader supplies the post-reversal snapshot for token read-back.
	reader SnapshotReader
	// grace is the delay before reading the snapshot back.
	grace time.Duration
	// capacity bounds the token set.
	capacity int

	// mu protects the token set.
	mu sync.Mutex
	// own holds causation tokens known to be ours.
	own map[entity.CausationID]struct{}
}

// NewCausationGuard creates a causation guard. Non-positive grace and
// capacity fall back to DefaultGrace and DefaultCapacity.
func NewCausationGuard(reader SnapshotReader, grace time.Duration, capacity int) *CausationGuard {
	if grace <= 0 {
		grace = DefaultGrace
	}

	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &CausationGuard{
		reader:   reader,
		grace:    grace,
		capacity: capacity,
		own:      make(map[entity.CausationID]struct{}, capacity),
	}
}

// ShouldProcess returns false when the change carries a causation token
// produced by our own actuator. The matching token is consumed.
func (g *CausationGuard) ShouldProcess(ctx context.Context, change entity.Change) bool {
	if change.Causation.IsZero() {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, mine := g.own[change.Causation]; mine {
		delete(g.own, change.Causation)

		logger.DebugKV(ctx, "Change suppressed, caused by own reversal",
			"entity", change.Key,
			"causation_id", string(change.Causation),
		)

		return false
	}

	return true
}

// Begin is a no-op for the causation strategy.
func (g *CausationGuard) Begin(context.Context, string) {}

// Done is a no-op for the causation strategy.
func (g *CausationGuard) Done(context.Context, string) {}

// RecordReversal waits the grace delay, reads the key's current
// snapshot and records its causation token as our own. Failures are
// logged and otherwise ignored: missing a token only risks one
// additional (validated) scheduling round, never a crash.
func (g *CausationGuard) RecordReversal(ctx context.Context, key string) {
	select {
	case <-time.After(g.grace):
	case <-ctx.Done():
		return
	}

	snapshot, err := g.reader.CurrentSnapshot(ctx, key)
	if err != nil {
		logger.WarnKV(ctx, "Failed to read snapshot back after reversal", "entity", key, "error", err)

		return
	}

	if snapshot == nil || snapshot.Causation.IsZero() {
		logger.DebugKV(ctx, "No causation token to record after reversal", "entity", key)

		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.own[snapshot.Causation] = struct{}{}

	if len(g.own) > g.capacity {
		g.evictLocked()
	}
}

// evictLocked drops the lexically smallest half of the token set, an
// approximation of oldest-first eviction that needs no timestamps.
// Callers must hold mu.
func (g *CausationGuard) evictLocked() {
	tokens := make([]string, 0, len(g.own))
	for token := range g.own {
		tokens = append(tokens, string(token))
	}

	sort.Strings(tokens)

	for _, token := range tokens[:len(tokens)/2] {
		delete(g.own, entity.CausationID(token))
	}
}

// size returns the current token count, for tests.
func (g *CausationGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.own)
}
