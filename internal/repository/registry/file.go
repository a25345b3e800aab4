package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/lucasschonrock/spring-input-boolean/internal/config"
)

// Entry is one monitored entity persisted across restarts.
type Entry struct {
	// EntityID is the monitored entity key.
	EntityID string `json:"entity_id"`
	// Label is the friendly name, when known.
	Label string `json:"label,omitempty"`
	// DiscoveredAt is when the entity was first enrolled.
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Repository defines persistence operations for the entity registry.
type Repository interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// FileRepository persists the registry to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the registry file.
	path string
	// mu protects concurrent access to the registry file.
	mu sync.Mutex
}

// ErrNotFound is returned when the registry file does not exist yet.
var ErrNotFound = errors.New("registry not found")

// NewFileRepository creates a repository that reads/writes JSON at the
// provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the registry from disk.
func (r *FileRepository) Load(_ context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read registry file: %w", err)
	}

	var entries []Entry
	if err = json.Unmarshal(contents, &entries); err != nil {
		return nil, fmt.Errorf("decode registry file: %w", err)
	}

	return entries, nil
}

// Save writes the registry to disk, sorted by key for stable diffs.
func (r *FileRepository) Save(_ context.Context, entries []Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EntityID < sorted[j].EntityID
	})

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}

	return nil
}
