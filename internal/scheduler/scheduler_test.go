package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lucasschonrock/spring-input-boolean/internal/domain/entity"
	"github.com/lucasschonrock/spring-input-boolean/internal/guard"
	"github.com/lucasschonrock/spring-input-boolean/internal/metrics"
	"github.com/lucasschonrock/spring-input-boolean/internal/notify"
	"github.com/lucasschonrock/spring-input-boolean/internal/override"
)

const testKey = "input_boolean.porch"

var errTestActuator = errors.New("test actuator error")

// fakeReader is a mutable StateReader for tests.
type fakeReader struct {
	// mu protects snapshot and err.
	mu sync.Mutex
	// snapshot is returned from CurrentSnapshot.
	snapshot *entity.Snapshot
	// err is returned from CurrentSnapshot.
	err error
}

// CurrentSnapshot returns the configured snapshot and error.
func (f *fakeReader) CurrentSnapshot(context.Context, string) (*entity.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.snapshot, f.err
}

// set replaces the snapshot returned to callers.
func (f *fakeReader) set(snapshot *entity.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.snapshot = snapshot
}

// actuatorCall records one SetValue invocation.
type actuatorCall struct {
	// key is the targeted entity.
	key string
	// value is the requested value.
	value entity.Value
	// at is the fake-clock time of the call.
	at time.Time
}

// fakeActuator is an Actuator that records calls.
type fakeActuator struct {
	// err is returned from SetValue.
	err error
	// onSet runs after a successful call, to simulate the resulting
	// state change becoming visible.
	onSet func(key string, value entity.Value)

	// mu protects calls and lastCtx.
	mu sync.Mutex
	// calls records every SetValue invocation in order.
	calls []actuatorCall
	// lastCtx is the context of the most recent call.
	lastCtx context.Context
}

// SetValue records the call and applies the side effect.
func (f *fakeActuator) SetValue(ctx context.Context, key string, value entity.Value) error {
	if f.err != nil {
		return f.err
	}

	f.mu.Lock()
	f.calls = append(f.calls, actuatorCall{key: key, value: value, at: time.Now()})
	f.lastCtx = ctx
	f.mu.Unlock()

	if f.onSet != nil {
		f.onSet(key, value)
	}

	return nil
}

// callCount returns the number of recorded calls.
func (f *fakeActuator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

// call returns the i-th recorded call.
func (f *fakeActuator) call(i int) actuatorCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[i]
}

// offChange builds a qualifying on-to-off transition for the test key.
func offChange(causation entity.CausationID, actor string) entity.Change {
	return entity.Change{
		Key:       testKey,
		Old:       entity.ValueOn,
		New:       entity.ValueOff,
		Causation: causation,
		ActorID:   actor,
	}
}

// onChange builds a qualifying off-to-on transition for the test key.
func onChange(causation entity.CausationID, actor string) entity.Change {
	return entity.Change{
		Key:       testKey,
		Old:       entity.ValueOff,
		New:       entity.ValueOn,
		Causation: causation,
		ActorID:   actor,
	}
}

// newTestScheduler wires a scheduler over fakes with the given guard.
func newTestScheduler(g guard.Guard, reader *fakeReader, actuator *fakeActuator) *Scheduler {
	return New(g, override.NewStore(0), reader, actuator, nil, metrics.New())
}

// TestScheduler_ReversesAfterDelay asserts the basic contract: a
// qualifying transition is reversed to its pre-transition value once the
// configured delay elapses.
func TestScheduler_ReversesAfterDelay(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOff}}
		actuator := &fakeActuator{}
		s := newTestScheduler(guard.NewWindowGuard(10*time.Second), reader, actuator)
		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second})

		start := time.Now()

		s.Handle(ctx, offChange("ctx-1", "user-1"))
		time.Sleep(30 * time.Second)
		synctest.Wait()

		require.Equal(t, 1, actuator.callCount())
		require.Equal(t, testKey, actuator.call(0).key)
		require.Equal(t, entity.ValueOn, actuator.call(0).value)
		require.Equal(t, 30*time.Second, actuator.call(0).at.Sub(start))
	})
}

// TestScheduler_CompletedTaskReleasesContext asserts the normal
// completion path cancels the task's own context, so finished tasks
// never accumulate as children of the daemon's root context.
func TestScheduler_CompletedTaskReleasesContext(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOff}}
		actuator := &fakeActuator{}
		s := newTestScheduler(guard.NewWindowGuard(time.Minute), reader, actuator)
		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second})

		s.Handle(ctx, offChange("ctx-1", "user-1"))
		time.Sleep(30 * time.Second)
		synctest.Wait()

		require.Equal(t, 1, actuator.callCount())

		actuator.mu.Lock()
		taskCtx := actuator.lastCtx
		actuator.mu.Unlock()

		require.ErrorIs(t, taskCtx.Err(), context.Canceled)
	})
}

// TestScheduler_LastTransitionWins asserts supersession: a second
// transition before the first delay expires cancels the first task, and
// only the newest transition is reversed.
func TestScheduler_LastTransitionWins(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOn}}
		actuator := &fakeActuator{}
		s := newTestScheduler(guard.NewCausationGuard(reader, time.Second, 10), reader, actuator)
		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second})

		s.Handle(ctx, offChange("ctx-1", "user-1"))
		s.Handle(ctx, onChange("ctx-2", "user-1"))
		time.Sleep(30*time.Second + time.Second)
		synctest.Wait()

		require.Equal(t, 1, actuator.callCount())
		require.Equal(t, entity.ValueOff, actuator.call(0).value)
	})
}

// TestScheduler_WindowGuardSuppressesEcho asserts that with the window
// strategy a change arriving while a reversal is in flight is ignored,
// and that processing resumes once the task finishes.
func TestScheduler_WindowGuardSuppressesEcho(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOff}}
		actuator := &fakeActuator{}
		s := newTestScheduler(guard.NewWindowGuard(time.Minute), reader, actuator)
		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second})

		s.Handle(ctx, offChange("ctx-1", "user-1"))

		// Arrives while the first task is pending: suppressed.
		s.Handle(ctx, onChange("ctx-2", "user-2"))
		time.Sleep(30 * time.Second)
		synctest.Wait()

		require.Equal(t, 1, actuator.callCount())
		require.Equal(t, entity.ValueOn, actuator.call(0).value)

		// The marker is cleared, a fresh transition schedules again.
		reader.set(&entity.Snapshot{Key: testKey, Value: entity.ValueOff})
		s.Handle(ctx, offChange("ctx-3", "user-1"))
		time.Sleep(30 * time.Second)
		synctest.Wait()

		require.Equal(t, 2, actuator.callCount())
	})
}

// TestScheduler_CausationGuardSuppressesEcho asserts that with the
// causation strategy the state change produced by our own reversal is
// recognised and never schedules a counter-reversal.
func TestScheduler_CausationGuardSuppressesEcho(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOff, Causation: "ctx-user"}}
		actuator := &fakeActuator{}

		// A successful reversal surfaces as a new snapshot carrying the
		// causation token of our own actuator call.
		actuator.onSet = func(key string, value entity.Value) {
			reader.set(&entity.Snapshot{Key: key, Value: value, Causation: "ctx-own"})
		}

		s := newTestScheduler(guard.NewCausationGuard(reader, 2*time.Second, 10), reader, actuator)

		// Actorless processing is on so the echo reaches the guard
		// instead of being dropped by the actor filter.
		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second, ProcessActorless: true})

		s.Handle(ctx, offChange("ctx-user", "user-1"))
		time.Sleep(30*time.Second + 2*time.Second)
		synctest.Wait()

		require.Equal(t, 1, actuator.callCount())

		// The echo of our own reversal carries the recorded token.
		s.Handle(ctx, onChange("ctx-own", ""))
		synctest.Wait()

		require.Equal(t, 1, actuator.callCount())
	})
}

// TestScheduler_OverrideReplacesDelay asserts a pending override delay
// is consumed instead of the configured one, exactly once.
func TestScheduler_OverrideReplacesDelay(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOff}}
		actuator := &fakeActuator{}
		overrides := override.NewStore(0)
		s := New(guard.NewWindowGuard(time.Minute), overrides, reader, actuator, nil, metrics.New())
		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second})

		overrides.Set(ctx, testKey, 10*time.Second)

		start := time.Now()

		s.Handle(ctx, offChange("ctx-1", "user-1"))
		time.Sleep(10 * time.Second)
		synctest.Wait()

		require.Equal(t, 1, actuator.callCount())
		require.Equal(t, 10*time.Second, actuator.call(0).at.Sub(start))

		// The override was consumed, the next task uses the configured delay.
		reader.set(&entity.Snapshot{Key: testKey, Value: entity.ValueOff})

		start = time.Now()

		s.Handle(ctx, offChange("ctx-2", "user-1"))
		time.Sleep(30 * time.Second)
		synctest.Wait()

		require.Equal(t, 2, actuator.callCount())
		require.Equal(t, 30*time.Second, actuator.call(1).at.Sub(start))
	})
}

// TestScheduler_ZeroOverrideReversesImmediately asserts a zero override
// delay skips the wait entirely.
func TestScheduler_ZeroOverrideReversesImmediately(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOff}}
		actuator := &fakeActuator{}
		overrides := override.NewStore(0)
		s := New(guard.NewWindowGuard(time.Minute), overrides, reader, actuator, nil, metrics.New())
		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second})

		overrides.Set(ctx, testKey, 0)

		start := time.Now()

		s.Handle(ctx, offChange("ctx-1", "user-1"))
		synctest.Wait()

		require.Equal(t, 1, actuator.callCount())
		require.Equal(t, time.Duration(0), actuator.call(0).at.Sub(start))
	})
}

// TestScheduler_ValidationAbortsOnStaleState asserts that a task whose
// entity moved on during the delay aborts without touching the actuator.
func TestScheduler_ValidationAbortsOnStaleState(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()

		// The snapshot no longer matches the triggering value.
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOn}}
		actuator := &fakeActuator{}
		s := newTestScheduler(guard.NewWindowGuard(time.Minute), reader, actuator)
		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second})

		s.Handle(ctx, offChange("ctx-1", "user-1"))
		time.Sleep(30 * time.Second)
		synctest.Wait()

		require.Zero(t, actuator.callCount())
	})
}

// TestScheduler_ActuatorFailureClearsState asserts a failed reversal
// leaves no residue: the task is cleared and the next transition
// schedules normally.
func TestScheduler_ActuatorFailureClearsState(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOff}}
		actuator := &fakeActuator{err: errTestActuator}
		s := newTestScheduler(guard.NewWindowGuard(time.Minute), reader, actuator)
		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second})

		s.Handle(ctx, offChange("ctx-1", "user-1"))
		time.Sleep(30 * time.Second)
		synctest.Wait()

		require.Zero(t, actuator.callCount())

		statuses := s.Entities()
		require.Len(t, statuses, 1)
		require.Nil(t, statuses[0].Task)

		// No retry, but the next transition starts fresh.
		actuator.err = nil

		s.Handle(ctx, offChange("ctx-2", "user-1"))
		time.Sleep(30 * time.Second)
		synctest.Wait()

		require.Equal(t, 1, actuator.callCount())
	})
}

// TestScheduler_ActorlessFiltering asserts changes without an actor id
// are ignored unless the entity opts in.
func TestScheduler_ActorlessFiltering(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOff}}
		actuator := &fakeActuator{}
		s := newTestScheduler(guard.NewWindowGuard(time.Minute), reader, actuator)

		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second})
		s.Handle(ctx, offChange("ctx-1", ""))
		synctest.Wait()

		require.Zero(t, actuator.callCount())

		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second, ProcessActorless: true})
		s.Handle(ctx, offChange("ctx-2", ""))
		time.Sleep(30 * time.Second)
		synctest.Wait()

		require.Equal(t, 1, actuator.callCount())
	})
}

// TestScheduler_IgnoresUnmonitoredAndNonQualifying asserts unknown keys
// and transitions without two defined values never schedule tasks.
func TestScheduler_IgnoresUnmonitoredAndNonQualifying(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOff}}
		actuator := &fakeActuator{}
		s := newTestScheduler(guard.NewWindowGuard(time.Minute), reader, actuator)
		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second})

		// Unmonitored key.
		s.Handle(ctx, entity.Change{
			Key:     "input_boolean.other",
			Old:     entity.ValueOn,
			New:     entity.ValueOff,
			ActorID: "user-1",
		})

		// Unknown old value: nothing to restore.
		s.Handle(ctx, entity.Change{
			Key:     testKey,
			Old:     entity.ValueUnknown,
			New:     entity.ValueOff,
			ActorID: "user-1",
		})

		// No-op transition.
		s.Handle(ctx, entity.Change{
			Key:     testKey,
			Old:     entity.ValueOff,
			New:     entity.ValueOff,
			ActorID: "user-1",
		})

		synctest.Wait()

		require.Zero(t, actuator.callCount())
	})
}

// TestScheduler_NotifiesBeforeDelay asserts the notification goes out
// before the wait starts and quotes the configured delay.
func TestScheduler_NotifiesBeforeDelay(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOff}}
		actuator := &fakeActuator{}
		sender := &recordingSender{}
		m := metrics.New()
		s := New(guard.NewWindowGuard(time.Minute), override.NewStore(0), reader, actuator,
			notify.NewDispatcher(sender, "", m), m)
		s.Monitor(testKey, EntityConfig{
			Label:         "Porch Light",
			Delay:         30 * time.Second,
			NotifyEnabled: true,
			NotifyTargets: []string{"phone_a"},
		})

		start := time.Now()

		s.Handle(ctx, offChange("ctx-1", "user-1"))
		time.Sleep(30 * time.Second)
		synctest.Wait()

		require.Len(t, sender.messages, 1)
		require.Equal(t, time.Duration(0), sender.at.Sub(start))
		require.Contains(t, sender.messages[0].Body, "'Porch Light'")
		require.Contains(t, sender.messages[0].Body, "30 seconds")
	})
}

// TestScheduler_NoNotificationOnReactivation asserts off-to-on
// transitions reverse silently.
func TestScheduler_NoNotificationOnReactivation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOn}}
		actuator := &fakeActuator{}
		sender := &recordingSender{}
		m := metrics.New()
		s := New(guard.NewWindowGuard(time.Minute), override.NewStore(0), reader, actuator,
			notify.NewDispatcher(sender, "", m), m)
		s.Monitor(testKey, EntityConfig{
			Delay:         30 * time.Second,
			NotifyEnabled: true,
			NotifyTargets: []string{"phone_a"},
		})

		s.Handle(ctx, onChange("ctx-1", "user-1"))
		time.Sleep(30 * time.Second)
		synctest.Wait()

		require.Equal(t, 1, actuator.callCount())
		require.Empty(t, sender.messages)
	})
}

// TestScheduler_RunStopsOnCancelAndDrains asserts Run exits on context
// cancellation and aborts pending tasks instead of leaking them.
func TestScheduler_RunStopsOnCancelAndDrains(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reader := &fakeReader{snapshot: &entity.Snapshot{Key: testKey, Value: entity.ValueOff}}
		actuator := &fakeActuator{}
		s := newTestScheduler(guard.NewWindowGuard(time.Minute), reader, actuator)
		s.Monitor(testKey, EntityConfig{Delay: 30 * time.Second})

		ctx, cancel := context.WithCancel(context.Background())
		changes := make(chan entity.Change, 1)
		changes <- offChange("ctx-1", "user-1")

		done := make(chan error, 1)

		go func() {
			done <- s.Run(ctx, changes)
		}()

		// Let the change be consumed and its task scheduled.
		synctest.Wait()

		cancel()

		require.NoError(t, <-done)
		require.Zero(t, actuator.callCount())
	})
}

// TestScheduler_EntitiesSorted asserts the status listing is stable.
func TestScheduler_EntitiesSorted(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(guard.NewWindowGuard(time.Minute), &fakeReader{}, &fakeActuator{})
	s.Monitor("input_boolean.zulu", EntityConfig{Delay: 30 * time.Second})
	s.Monitor("input_boolean.alpha", EntityConfig{Label: "Alpha", Delay: 10 * time.Second, NotifyEnabled: true})

	statuses := s.Entities()

	require.Len(t, statuses, 2)
	require.Equal(t, "input_boolean.alpha", statuses[0].Key)
	require.Equal(t, "Alpha", statuses[0].Label)
	require.True(t, statuses[0].NotifyEnabled)
	require.Equal(t, "input_boolean.zulu", statuses[1].Key)
	require.Nil(t, statuses[0].Task)
}

// recordingSender captures notification messages and their send time.
type recordingSender struct {
	// mu protects messages and at.
	mu sync.Mutex
	// messages records every delivered message in order.
	messages []notify.Message
	// at is the fake-clock time of the last delivery.
	at time.Time
}

// Send records the message.
func (r *recordingSender) Send(_ context.Context, _ string, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, msg)
	r.at = time.Now()

	return nil
}
