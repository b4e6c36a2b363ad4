package outbox

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Message is the unit stored in the outbox table. EventID deduplicates
// enqueues so retried transactions do not produce duplicate rows.
type Message struct {
	Topic   string
	EventID uuid.UUID
	Payload json.RawMessage
}

// Meta is the stable dispatch metadata handed to a Dispatcher.
type Meta struct {
	Topic    string
	EventID  uuid.UUID
	Sequence int64
	Attempts int
}

// DispatchedMessage is the unit delivered by Relay to a Dispatcher.
type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}
