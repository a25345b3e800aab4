package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lucasschonrock/spring-input-boolean/internal/domain/entity"
	"github.com/lucasschonrock/spring-input-boolean/internal/guard"
	"github.com/lucasschonrock/spring-input-boolean/internal/logger"
	"github.com/lucasschonrock/spring-input-boolean/internal/metrics"
	"github.com/lucasschonrock/spring-input-boolean/internal/notify"
	"github.com/lucasschonrock/spring-input-boolean/internal/override"
)

// StateReader provides the current snapshot of an entity for the
// pre-reversal validation step. A nil snapshot with a nil error means
// the entity no longer exists.
type StateReader interface {
	CurrentSnapshot(ctx context.Context, key string) (*entity.Snapshot, error)
}

// Actuator applies a desired boolean value to an entity. Calls wait for
// completion so the scheduler can clear per-key state afterwards.
type Actuator interface {
	SetValue(ctx context.Context, key string, value entity.Value) error
}

// EntityConfig is the per-entity behaviour resolved from configuration.
type EntityConfig struct {
	// Label is the friendly name used in notifications.
	Label string
	// Delay is the reversal delay unless overridden.
	Delay time.Duration
	// NotifyEnabled turns on notifications for off-transitions.
	NotifyEnabled bool
	// NotifyTargets lists notification targets for this entity.
	NotifyTargets []string
	// ProcessActorless makes changes without an actor id eligible for
	// reversal. Off by default: actorless changes are usually
	// automation-driven and reversing them invites feedback loops.
	ProcessActorless bool
}

// Scheduler owns one pending reversal task per monitored entity. It
// consumes an ordered stream of state changes, filters them through the
// loop guard, and schedules delayed compensating actions that restore
// the pre-transition value unless superseded or overridden.
type Scheduler struct {
	// guard filters echoes of our own corrective actions.
	guard guard.Guard
	// overrides supplies externally requested delay overrides.
	overrides *override.Store
	// reader provides snapshots for the validation step.
	reader StateReader
	// actuator performs the actual reversal.
	actuator Actuator
	// notifier dispatches pre-delay notifications. May be nil.
	notifier *notify.Dispatcher
	// metrics counts scheduling outcomes.
	metrics *metrics.Metrics

	// mu protects entities, tasks and epochs.
	mu sync.Mutex
	// entities maps key to its resolved configuration.
	entities map[string]EntityConfig
	// tasks maps key to its single pending reversal task.
	tasks map[string]*task
	// epochs maps key to a generation counter; a task may only reverse
	// while its recorded epoch is still current.
	epochs map[string]uint64

	// wg tracks in-flight tasks for graceful shutdown.
	wg sync.WaitGroup
}

// New wires a scheduler from its collaborators. The notifier may be
// nil when notifications are globally disabled.
func New(
	g guard.Guard,
	overrides *override.Store,
	reader StateReader,
	actuator Actuator,
	notifier *notify.Dispatcher,
	m *metrics.Metrics,
) *Scheduler {
	return &Scheduler{
		guard:     g,
		overrides: overrides,
		reader:    reader,
		actuator:  actuator,
		notifier:  notifier,
		metrics:   m,
		entities:  make(map[string]EntityConfig),
		tasks:     make(map[string]*task),
		epochs:    make(map[string]uint64),
	}
}

// Monitor registers (or reconfigures) an entity for reversal handling.
func (s *Scheduler) Monitor(key string, cfg EntityConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities[key] = cfg
}

// Monitored reports whether the key is registered and returns its
// configuration.
func (s *Scheduler) Monitored(key string) (EntityConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.entities[key]

	return cfg, ok
}

// Run consumes state changes until the context is canceled or the
// channel closes, then cancels outstanding tasks and waits for them.
// Changes for the same key are handled in arrival order; a task's delay
// never blocks the consumption of further events.
func (s *Scheduler) Run(ctx context.Context, changes <-chan entity.Change) error {
	defer s.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}

			s.Handle(ctx, change)
		}
	}
}

// Handle processes a single state change: qualification, loop guard,
// supersession of any pending task for the key, and scheduling of the
// new reversal task.
func (s *Scheduler) Handle(ctx context.Context, change entity.Change) {
	cfg, monitored := s.Monitored(change.Key)
	if !monitored {
		return
	}

	if !change.Qualifies() {
		logger.DebugKV(ctx, "Ignoring non-qualifying change",
			"entity", change.Key,
			"old", string(change.Old),
			"new", string(change.New),
		)
		s.metrics.SuppressedTotal.WithLabelValues(metrics.ReasonNotQualifying).Inc()

		return
	}

	if !change.HasActor() && !cfg.ProcessActorless {
		logger.DebugKV(ctx, "Ignoring actorless change, likely programmatic",
			"entity", change.Key,
			"causation_id", string(change.Causation),
		)
		s.metrics.SuppressedTotal.WithLabelValues(metrics.ReasonNoActor).Inc()

		return
	}

	if !s.guard.ShouldProcess(ctx, change) {
		s.metrics.SuppressedTotal.WithLabelValues(metrics.ReasonLoopGuard).Inc()

		return
	}

	taskCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()

	s.epochs[change.Key]++

	if prev := s.tasks[change.Key]; prev != nil {
		prev.cancel()

		logger.DebugKV(ctx, "Superseding pending reversal",
			"entity", change.Key,
			"previous_target", string(prev.restoreTo),
		)
	}

	t := &task{
		key:        change.Key,
		epoch:      s.epochs[change.Key],
		triggering: change.New,
		restoreTo:  change.Old,
		startedAt:  time.Now(),
		state:      TaskStateScheduled,
		cancel:     cancel,
	}
	s.tasks[change.Key] = t

	s.mu.Unlock()

	s.guard.Begin(ctx, change.Key)
	s.metrics.PendingTasks.Inc()

	logger.InfoKV(ctx, "Scheduled reversal",
		"entity", change.Key,
		"from", string(change.Old),
		"to", string(change.New),
		"actor_id", change.ActorID,
	)

	s.wg.Add(1)

	go s.runTask(taskCtx, t, cfg)
}

// Entities returns the status of all monitored entities sorted by key.
func (s *Scheduler) Entities() []EntityStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]EntityStatus, 0, len(s.entities))

	for key, cfg := range s.entities {
		status := EntityStatus{
			Key:           key,
			Label:         cfg.Label,
			Delay:         cfg.Delay,
			NotifyEnabled: cfg.NotifyEnabled,
		}

		if t, pending := s.tasks[key]; pending {
			status.Task = &TaskStatus{
				State:     t.state,
				RestoreTo: t.restoreTo,
				StartedAt: t.startedAt,
			}
		}

		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Key < statuses[j].Key
	})

	return statuses
}

// drain cancels all pending tasks and waits for them to exit.
func (s *Scheduler) drain(ctx context.Context) {
	s.mu.Lock()

	for _, t := range s.tasks {
		t.cancel()
	}

	s.mu.Unlock()

	s.wg.Wait()
	logger.Debug(ctx, "All reversal tasks drained")
}

// clearTask removes the task from the pending map unless a newer task
// has already replaced it.
func (s *Scheduler) clearTask(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current := s.tasks[t.key]; current == t {
		delete(s.tasks, t.key)
	}
}

// isCurrent reports whether the task still holds the key's latest epoch.
func (s *Scheduler) isCurrent(t *task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.epochs[t.key] == t.epoch
}

// setState records the task's state for status reporting.
func (s *Scheduler) setState(t *task, state TaskState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.state = state
}
