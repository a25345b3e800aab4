package override

import (
	"context"
	"sync"
	"time"

	"github.com/lucasschonrock/spring-input-boolean/internal/logger"
)

// Store maps entity keys to pending delay overrides. An override is
// written by an out-of-band signal and consumed exactly once by the
// reversal task that next computes its delay.
type Store struct {
	// ttl is how long an unconsumed override stays valid.
	// Zero means overrides never expire.
	ttl time.Duration

	// mu protects entries.
	mu sync.Mutex
	// entries maps entity key to its pending override.
	entries map[string]pendingOverride
}

// pendingOverride is a single unconsumed override.
type pendingOverride struct {
	// delay replaces the configured delay on consumption.
	delay time.Duration
	// setAt is when the override was written, for TTL checks.
	setAt time.Time
}

// NewStore creates an override store. A positive ttl makes stale
// overrides expire instead of applying to a much later transition.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		entries: make(map[string]pendingOverride),
	}
}

// Set records an override delay for the key, overwriting any existing
// one. Last write wins.
func (s *Store) Set(ctx context.Context, key string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = pendingOverride{
		delay: delay,
		setAt: time.Now(),
	}

	logger.DebugKV(ctx, "Override delay set", "entity", key, "delay", delay.String())
}

// Take atomically reads and clears the override for the key. When no
// valid override exists the fallback is returned and nothing mutates,
// except that an expired entry is dropped.
func (s *Store) Take(ctx context.Context, key string, fallback time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, found := s.entries[key]
	if !found {
		return fallback
	}

	delete(s.entries, key)

	if s.ttl > 0 && time.Since(pending.setAt) > s.ttl {
		logger.DebugKV(ctx, "Override delay expired, using default",
			"entity", key,
			"age", time.Since(pending.setAt).String(),
		)

		return fallback
	}

	logger.DebugKV(ctx, "Override delay consumed", "entity", key, "delay", pending.delay.String())

	return pending.delay
}

// Apply parses a raw action string and records the resulting override.
// Malformed strings are ignored; ok reports whether an override was
// written and the parsed action lets callers account for it.
func (s *Store) Apply(ctx context.Context, raw string) (Action, bool) {
	action, ok := ParseAction(raw)
	if !ok {
		logger.DebugKV(ctx, "Ignoring malformed override action", "action", raw)

		return Action{}, false
	}

	s.Set(ctx, action.Key, action.Delay)

	return action, true
}
