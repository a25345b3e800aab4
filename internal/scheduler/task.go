package scheduler

import (
	"context"
	"time"

	"github.com/lucasschonrock/spring-input-boolean/internal/domain/entity"
	"github.com/lucasschonrock/spring-input-boolean/internal/logger"
	"github.com/lucasschonrock/spring-input-boolean/internal/metrics"
)

// TaskState is the lifecycle stage of a pending reversal task.
type TaskState string

const (
	// TaskStateScheduled means the task exists but has not started waiting.
	TaskStateScheduled TaskState = "scheduled"
	// TaskStateWaiting means the task is suspended for its delay.
	TaskStateWaiting TaskState = "waiting"
	// TaskStateValidating means the task is re-checking current state.
	TaskStateValidating TaskState = "validating"
	// TaskStateReversing means the actuator call is in flight.
	TaskStateReversing TaskState = "reversing"
)

// task is a single pending reversal. At most one task per key exists at
// any instant; a newer transition cancels and replaces the older task.
type task struct {
	// key is the monitored entity this task belongs to.
	key string
	// epoch is the key's generation counter at creation time. The task
	// may only reach the actuator while its epoch is still current.
	epoch uint64
	// triggering is the snapshot value that caused the task.
	triggering entity.Value
	// restoreTo is the pre-transition value the task restores.
	restoreTo entity.Value
	// startedAt is when the task was scheduled.
	startedAt time.Time
	// state is the current lifecycle stage, for status reporting.
	state TaskState
	// cancel aborts the task's delay.
	cancel context.CancelFunc
}

// TaskStatus is the externally visible view of a pending task.
type TaskStatus struct {
	// State is the task's lifecycle stage.
	State TaskState `json:"state"`
	// RestoreTo is the value the task will restore.
	RestoreTo entity.Value `json:"restore_to"`
	// StartedAt is when the task was scheduled.
	StartedAt time.Time `json:"started_at"`
}

// EntityStatus is the externally visible view of a monitored entity.
type EntityStatus struct {
	// Key is the entity key.
	Key string `json:"entity_id"`
	// Label is the friendly name, when configured.
	Label string `json:"label,omitempty"`
	// Delay is the configured reversal delay.
	Delay time.Duration `json:"delay"`
	// NotifyEnabled reports whether notifications are on.
	NotifyEnabled bool `json:"notify_enabled"`
	// Task is the pending reversal, nil when idle.
	Task *TaskStatus `json:"task,omitempty"`
}

// runTask drives one reversal task through wait, validation and
// actuation. Per-key transient state is cleared on every exit path so a
// failure can never leave the entity stuck in a processing state.
func (s *Scheduler) runTask(ctx context.Context, t *task, cfg EntityConfig) {
	// Release the task's context on every exit path; without this a
	// completed task would stay registered as a child of the daemon's
	// root context forever.
	defer t.cancel()

	defer s.wg.Done()
	defer s.metrics.PendingTasks.Dec()
	defer s.clearTask(t)
	defer func() {
		// A superseded task must not clear the marker its successor
		// has just set for the same key.
		if s.isCurrent(t) {
			s.guard.Done(ctx, t.key)
		}
	}()

	// Notify before the delay starts so the user can still shorten or
	// zero it through the override channel.
	if s.notifier != nil && cfg.NotifyEnabled && t.triggering == entity.ValueOff {
		s.notifier.Dispatch(ctx, t.key, cfg.Label, cfg.NotifyTargets, cfg.Delay)
	}

	s.setState(t, TaskStateWaiting)

	delay := s.overrides.Take(ctx, t.key, cfg.Delay)
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			logger.DebugKV(ctx, "Reversal canceled during delay", "entity", t.key)
			s.metrics.ReversalsTotal.WithLabelValues(metrics.ResultAborted).Inc()

			return
		}
	}

	s.setState(t, TaskStateValidating)

	// Race-safety check, not an optimisation: if the value moved on
	// while we slept, this task should already have been superseded
	// and must not reverse a stale transition.
	snapshot, err := s.reader.CurrentSnapshot(ctx, t.key)
	if err != nil {
		logger.WarnKV(ctx, "Failed to validate entity state, skipping reversal",
			"entity", t.key,
			"error", err,
		)
		s.metrics.ReversalsTotal.WithLabelValues(metrics.ResultAborted).Inc()

		return
	}

	if snapshot == nil || snapshot.Value != t.triggering {
		logger.DebugKV(ctx, "Entity state changed during delay, skipping reversal",
			"entity", t.key,
			"expected", string(t.triggering),
		)
		s.metrics.ReversalsTotal.WithLabelValues(metrics.ResultAborted).Inc()

		return
	}

	target, ok := t.triggering.Opposite()
	if !ok {
		s.metrics.ReversalsTotal.WithLabelValues(metrics.ResultAborted).Inc()

		return
	}

	// Epoch check closes the window between the timer firing and the
	// actuator call: a supersession after validation must still win.
	if !s.isCurrent(t) {
		logger.DebugKV(ctx, "Reversal superseded after validation", "entity", t.key)
		s.metrics.ReversalsTotal.WithLabelValues(metrics.ResultAborted).Inc()

		return
	}

	s.setState(t, TaskStateReversing)

	if err := s.actuator.SetValue(ctx, t.key, target); err != nil {
		// No retry: per-key state is cleared by the deferred calls and
		// the next natural transition starts fresh.
		logger.ErrorKV(ctx, "Failed to reverse entity state",
			"entity", t.key,
			"target", string(target),
			"error", err,
		)
		s.metrics.ReversalsTotal.WithLabelValues(metrics.ResultFailure).Inc()

		return
	}

	logger.InfoKV(ctx, "Reversed entity state",
		"entity", t.key,
		"from", string(t.triggering),
		"to", string(target),
		"delay", delay.String(),
	)
	s.metrics.ReversalsTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	s.guard.RecordReversal(ctx, t.key)
}
