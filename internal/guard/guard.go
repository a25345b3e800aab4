package guard

import (
	"context"
	"errors"
	"time"

	"github.com/lucasschonrock/spring-input-boolean/internal/domain/entity"
)

// Strategy selects the loop detection approach for a deployment.
type Strategy string

const (
	// StrategyWindow suppresses changes arriving while a reversal for
	// the same key is in flight (processing-window tracking).
	StrategyWindow Strategy = "window"
	// StrategyCausation suppresses changes whose causation token was
	// produced by this system's own actuator calls.
	StrategyCausation Strategy = "causation"
)

const (
	// DefaultWindow is how long a processing marker suppresses changes
	// before it is considered stale.
	DefaultWindow = 10 * time.Second
	// DefaultGrace is how long the causation guard waits after a
	// reversal before reading back the resulting causation token.
	DefaultGrace = 2 * time.Second
	// DefaultCapacity bounds the causation guard's token set.
	DefaultCapacity = 100
)

// ErrUnknownStrategy is returned when configuration names a strategy
// that does not exist.
var ErrUnknownStrategy = errors.New("unknown loop guard strategy")

// Guard decides whether an incoming state change represents a genuine
// external trigger or an echo of the system's own corrective action.
// Exactly one implementation is active per deployment.
type Guard interface {
	// ShouldProcess classifies the change: true means process, false
	// means ignore. A false result may consume internal guard state.
	ShouldProcess(ctx context.Context, change entity.Change) bool

	// Begin marks the key as being processed. Only meaningful for the
	// window strategy; a no-op otherwise.
	Begin(ctx context.Context, key string)

	// Done clears per-key processing state. Callers must invoke it on
	// every task exit, including failure paths.
	Done(ctx context.Context, key string)

	// RecordReversal notes that the actuator just reversed the key, so
	// the resulting change can be recognised as our own. Only
	// meaningful for the causation strategy; a no-op otherwise.
	RecordReversal(ctx context.Context, key string)
}

// SnapshotReader provides the current state snapshot for a key.
// A nil snapshot with a nil error means the entity is not known.
type SnapshotReader interface {
	CurrentSnapshot(ctx context.Context, key string) (*entity.Snapshot, error)
}

// Config carries the guard settings resolved from configuration.
type Config struct {
	// Strategy picks the implementation.
	Strategy Strategy
	// Window is the processing-window duration (window strategy).
	Window time.Duration
	// Grace is the read-back delay after a reversal (causation strategy).
	Grace time.Duration
	// Capacity bounds the causation token set (causation strategy).
	Capacity int
}

// New builds the guard named by the configuration. The reader is only
// used by the causation strategy.
func New(cfg Config, reader SnapshotReader) (Guard, error) {
	switch cfg.Strategy {
	case StrategyWindow, "":
		return NewWindowGuard(cfg.Window), nil
	case StrategyCausation:
		return NewCausationGuard(reader, cfg.Grace, cfg.Capacity), nil
	default:
		return nil, ErrUnknownStrategy
	}
}
