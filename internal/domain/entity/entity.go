package entity

// Value is the observed state of a monitored boolean entity.
type Value string

const (
	// ValueOn means the entity is switched on.
	ValueOn Value = "on"
	// ValueOff means the entity is switched off.
	ValueOff Value = "off"
	// ValueUnknown covers every state that is neither on nor off
	// (unavailable, missing, not yet reported).
	ValueUnknown Value = "unknown"
)

// ParseValue normalises a raw state string into a Value.
// Anything that is not exactly "on" or "off" maps to ValueUnknown.
func ParseValue(raw string) Value {
	switch raw {
	case string(ValueOn):
		return ValueOn
	case string(ValueOff):
		return ValueOff
	default:
		return ValueUnknown
	}
}

// IsDefined reports whether the value is a concrete boolean state.
func (v Value) IsDefined() bool {
	return v == ValueOn || v == ValueOff
}

// Opposite returns the reversed boolean state.
// The second return value is false when the value has no opposite;
// unknown states are never reversed.
func (v Value) Opposite() (Value, bool) {
	switch v {
	case ValueOn:
		return ValueOff, true
	case ValueOff:
		return ValueOn, true
	default:
		return ValueUnknown, false
	}
}

// CausationID is an opaque token tying a state change to its origin.
// Two changes caused by the same action carry the same token.
type CausationID string

// IsZero reports whether the token is absent.
func (c CausationID) IsZero() bool {
	return c == ""
}

// Snapshot is the state of an entity at a point in time, as reported by
// the event source. Snapshots are immutable; a newer snapshot for the
// same key supersedes the older one.
type Snapshot struct {
	// Key identifies the monitored entity.
	Key string
	// Value is the observed state.
	Value Value
	// Causation ties the snapshot to the action that produced it.
	Causation CausationID
	// ActorID identifies the direct external actor behind the change.
	// Empty for programmatic or automated changes.
	ActorID string
}

// Change is a state transition delivered by the event source.
type Change struct {
	// Key identifies the monitored entity.
	Key string
	// Old is the value before the transition.
	Old Value
	// New is the value after the transition.
	New Value
	// Causation ties the transition to the action that produced it.
	Causation CausationID
	// ActorID identifies the direct external actor, empty when the
	// change was programmatic.
	ActorID string
}

// Qualifies reports whether the change is an actual transition between
// two defined boolean states. Changes to or from unknown states, and
// no-op deliveries, never qualify for reversal.
func (c Change) Qualifies() bool {
	return c.Old.IsDefined() && c.New.IsDefined() && c.Old != c.New
}

// HasActor reports whether the change is attributable to a direct
// external actor.
func (c Change) HasActor() bool {
	return c.ActorID != ""
}

// Snapshot returns the post-transition snapshot carried by the change.
func (c Change) Snapshot() Snapshot {
	return Snapshot{
		Key:       c.Key,
		Value:     c.New,
		Causation: c.Causation,
		ActorID:   c.ActorID,
	}
}
