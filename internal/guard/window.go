package guard

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/lucasschonrock/spring-input-boolean/internal/domain/entity"
	"github.com/lucasschonrock/spring-input-boolean/internal/logger"
)

// WindowGuard implements processing-window tracking: once a reversal
// task is started for a key, further changes for that key are ignored
// until the task clears its marker or the window elapses.
//
// Markers are held in a TTL cache so a task that failed to clear its
// own entry self-heals: an expired marker is simply not found and the
// new change is processed normally.
type WindowGuard struct {
	// window is the suppression window duration.
	window time.Duration
	// markers maps entity key to the time processing started.
	markers *cache.Cache
}

// NewWindowGuard creates a window guard with the given suppression
// window. Non-positive values fall back to DefaultWindow.
//
// The cache is created without a janitor; expired markers are dropped
// lazily on lookup, which keeps the guard goroutine-free.
func NewWindowGuard(window time.Duration) *WindowGuard {
	if window <= 0 {
		window = DefaultWindow
	}

	return &WindowGuard{
		window:  window,
		markers: cache.New(window, 0),
	}
}

// ShouldProcess returns false while a non-stale processing marker
// exists for the change's key.
func (g *WindowGuard) ShouldProcess(ctx context.Context, change entity.Change) bool {
	started, found := g.markers.Get(change.Key)
	if !found {
		return true
	}

	startedAt, ok := started.(time.Time)
	if ok {
		logger.DebugKV(ctx, "Change suppressed, reversal already in flight",
			"entity", change.Key,
			"processing_for", time.Since(startedAt).String(),
		)
	}

	return false
}

// Begin records a processing marker for the key. The marker expires on
// its own after the window as a safety valve.
func (g *WindowGuard) Begin(_ context.Context, key string) {
	g.markers.Set(key, time.Now(), cache.DefaultExpiration)
}

// Done removes the processing marker for the key.
func (g *WindowGuard) Done(_ context.Context, key string) {
	g.markers.Delete(key)
}

// RecordReversal is a no-op for the window strategy.
func (g *WindowGuard) RecordReversal(context.Context, string) {}
