package override

import (
	"strings"
	"time"
)

// Kind identifies a recognised override action.
type Kind string

const (
	// KindOff10 keeps the entity in its new state for 10 seconds.
	KindOff10 Kind = "OFF_10"
	// KindOff20 keeps the entity in its new state for 20 seconds.
	KindOff20 Kind = "OFF_20"
	// KindReactivate reverses the entity immediately.
	KindReactivate Kind = "REACTIVATE"
)

// actionSeparator splits the action kind from the entity key.
const actionSeparator = "::"

// Action is a parsed override signal.
type Action struct {
	// Kind is the recognised action kind.
	Kind Kind
	// Key is the target entity key embedded in the action string.
	Key string
	// Delay is the override delay the kind maps to.
	Delay time.Duration
}

// ParseAction decodes an action string of the form "<KIND>::<entity_key>".
// Unrecognised kinds, missing separators and empty keys all yield ok=false.
func ParseAction(raw string) (Action, bool) {
	kind, key, found := strings.Cut(raw, actionSeparator)
	if !found || key == "" {
		return Action{}, false
	}

	delay, ok := delayForKind(Kind(kind))
	if !ok {
		return Action{}, false
	}

	return Action{
		Kind:  Kind(kind),
		Key:   key,
		Delay: delay,
	}, true
}

// delayForKind maps an action kind to its override delay.
func delayForKind(kind Kind) (time.Duration, bool) {
	switch kind {
	case KindOff10:
		return 10 * time.Second, true
	case KindOff20:
		return 20 * time.Second, true
	case KindReactivate:
		return 0, true
	default:
		return 0, false
	}
}

// FormatAction builds the action string for a kind and entity key.
// It is the inverse of ParseAction and is used when constructing
// actionable notification hints.
func FormatAction(kind Kind, key string) string {
	return string(kind) + actionSeparator + key
}
