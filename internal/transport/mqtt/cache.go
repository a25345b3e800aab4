package mqtt

import (
	"sync"

	"github.com/lucasschonrock/spring-input-boolean/internal/domain/entity"
)

// snapshotCache remembers the last snapshot seen per entity so the
// scheduler can re-validate current state without a broker round trip.
type snapshotCache struct {
	// mu protects snapshots.
	mu sync.RWMutex
	// snapshots maps entity key to its latest snapshot.
	snapshots map[string]entity.Snapshot
}

// newSnapshotCache creates an empty cache.
func newSnapshotCache() *snapshotCache {
	return &snapshotCache{
		snapshots: make(map[string]entity.Snapshot),
	}
}

// store replaces the snapshot for the key.
func (c *snapshotCache) store(snapshot entity.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots[snapshot.Key] = snapshot
}

// current returns a copy of the key's latest snapshot, or nil when the
// entity has never been observed.
func (c *snapshotCache) current(key string) *entity.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot, found := c.snapshots[key]
	if !found {
		return nil
	}

	return &snapshot
}
