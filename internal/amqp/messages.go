package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"caixa/internal/core"
)

// ChangeMessage announces that a collection changed on the remote API. It
// carries no payload; receivers re-fetch the kind.
type ChangeMessage struct {
	Kind      core.Kind `json:"kind"`
	Op        string    `json:"op"`
	ID        core.ID   `json:"id,omitempty"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeMessage creates a message stamped with the current time
func NewChangeMessage(kind core.Kind, op string, id core.ID, origin string) *ChangeMessage {
	return &ChangeMessage{
		Kind:      kind,
		Op:        op,
		ID:        id,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON parses a message and rejects unknown kinds.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, msg.Kind)
	}
	return &msg, nil
}
