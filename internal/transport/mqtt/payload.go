package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/lucasschonrock/spring-input-boolean/internal/domain/entity"
	"github.com/lucasschonrock/spring-input-boolean/internal/notify"
)

// stateEvent is the wire format of a state change published by the
// event bridge. Field names follow the bridge's upstream event schema.
type stateEvent struct {
	// OldState is the value before the transition.
	OldState string `json:"old_state"`
	// NewState is the value after the transition.
	NewState string `json:"new_state"`
	// ContextID ties the change to the action that produced it.
	ContextID string `json:"context_id"`
	// UserID identifies the direct actor, empty for programmatic changes.
	UserID string `json:"user_id,omitempty"`
}

// command is the wire format of a reversal command.
type command struct {
	// State is the desired value.
	State string `json:"state"`
}

// decodeStateEvent parses a state event payload into a domain change.
func decodeStateEvent(key string, payload []byte) (entity.Change, error) {
	var event stateEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return entity.Change{}, fmt.Errorf("decode state event: %w", err)
	}

	return entity.Change{
		Key:       key,
		Old:       entity.ParseValue(event.OldState),
		New:       entity.ParseValue(event.NewState),
		Causation: entity.CausationID(event.ContextID),
		ActorID:   event.UserID,
	}, nil
}

// encodeCommand serialises a reversal command payload.
func encodeCommand(value entity.Value) ([]byte, error) {
	return json.Marshal(command{State: string(value)})
}

// encodeNotification serialises a notification message payload.
func encodeNotification(msg notify.Message) ([]byte, error) {
	return json.Marshal(msg)
}
