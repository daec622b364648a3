package models

import "fmt"

// Event is a notification emitted after a committed status change.
// Events are ephemeral: they are fanned out to currently connected
// subscribers and never persisted or replayed.
type Event struct {
	// ID is the unique identifier for the event (UUID format). Sinks
	// dedupe on it.
	ID string `json:"id"`

	// GroupID is the routing key: subscribers of this group receive the
	// event.
	GroupID string `json:"group_id"`

	// Type is "{entityType}.{newStatus}", e.g. "loan.approved".
	Type string `json:"type"`

	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`

	// Recipient narrows delivery to a single user's connections when
	// set; empty means all subscribers of the group.
	Recipient string `json:"recipient,omitempty"`

	// Payload carries display context (actor, reason, amount, ...).
	Payload map[string]string `json:"payload,omitempty"`

	CreatedAt int64 `json:"created_at"`
}

// EventType builds the canonical event type string for a transition
// outcome.
func EventType(t EntityType, s Status) string {
	return fmt.Sprintf("%s.%s", t, s)
}
