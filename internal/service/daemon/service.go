package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lucasschonrock/spring-input-boolean/internal/config"
	"github.com/lucasschonrock/spring-input-boolean/internal/domain/entity"
	"github.com/lucasschonrock/spring-input-boolean/internal/logger"
	"github.com/lucasschonrock/spring-input-boolean/internal/repository/registry"
	"github.com/lucasschonrock/spring-input-boolean/internal/scheduler"
)

// service connects the change stream to the scheduler and maintains the
// persisted registry of monitored entities. It is unexported to keep
// the transport decoupled from the implementation.
type service struct {
	// cfg is the resolved daemon configuration.
	cfg *config.Config
	// sched owns the reversal tasks.
	sched *scheduler.Scheduler
	// repo persists the entity registry.
	repo registry.Repository
	// mu protects entries.
	mu sync.Mutex
	// entries is the in-memory registry, keyed by entity id.
	entries map[string]registry.Entry
}

// newService creates the service, loads the persisted registry and
// enrolls both configured and previously discovered entities.
func newService(ctx context.Context, cfg *config.Config, sched *scheduler.Scheduler, repo registry.Repository) (*service, error) {
	s := &service{
		cfg:     cfg,
		sched:   sched,
		repo:    repo,
		entries: make(map[string]registry.Entry),
	}

	if repo != nil {
		entries, err := repo.Load(ctx)
		switch {
		case err == nil:
			for _, entry := range entries {
				s.entries[entry.EntityID] = entry
			}
		case errors.Is(err, registry.ErrNotFound):
			// First run, start with an empty registry.
		default:
			return nil, fmt.Errorf("load registry: %w", err)
		}
	}

	// Configured entities take their explicit settings.
	for _, ec := range cfg.Entities {
		sched.Monitor(ec.EntityID, toSchedulerConfig(cfg.SettingsFor(ec.EntityID)))
	}

	// Previously discovered entities fall back to the defaults.
	for id, entry := range s.entries {
		if _, ok := sched.Monitored(id); ok {
			continue
		}

		settings := cfg.DefaultSettings()
		settings.Label = entry.Label

		sched.Monitor(id, toSchedulerConfig(settings))
	}

	return s, nil
}

// pump forwards state changes to the scheduler's input channel,
// enrolling unknown entities on the way when auto-discovery is on.
func (s *service) pump(ctx context.Context, in <-chan entity.Change) <-chan entity.Change {
	out := make(chan entity.Change)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-in:
				if !ok {
					return
				}

				s.maybeEnroll(ctx, change.Key)

				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// maybeEnroll registers an unknown entity with default settings when it
// matches the discovery prefix.
func (s *service) maybeEnroll(ctx context.Context, key string) {
	if _, ok := s.sched.Monitored(key); ok {
		return
	}

	if !s.cfg.AutoDiscoverEnabled() || !strings.HasPrefix(key, s.cfg.EntityPrefix) {
		return
	}

	s.sched.Monitor(key, toSchedulerConfig(s.cfg.DefaultSettings()))

	s.mu.Lock()
	s.entries[key] = registry.Entry{
		EntityID:     key,
		DiscoveredAt: time.Now(),
	}
	s.mu.Unlock()

	logger.InfoKV(ctx, "Discovered entity", "entity", key)

	if err := s.saveRegistry(ctx); err != nil {
		logger.Errorf(ctx, "Failed to persist registry: %v", err)
	}
}

// saveRegistry writes the current registry to disk.
func (s *service) saveRegistry(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	s.mu.Lock()

	entries := make([]registry.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}

	s.mu.Unlock()

	return s.repo.Save(ctx, entries)
}

// toSchedulerConfig maps resolved settings to the scheduler's view.
func toSchedulerConfig(settings config.EntitySettings) scheduler.EntityConfig {
	return scheduler.EntityConfig{
		Label:            settings.Label,
		Delay:            settings.Delay,
		NotifyEnabled:    settings.EnableNotifications,
		NotifyTargets:    settings.NotificationTargets,
		ProcessActorless: settings.ProcessActorless,
	}
}
