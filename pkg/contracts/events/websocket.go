// Package events contains event contract definitions for WebSocket
// communication in the relay service.
package events

import (
	"time"

	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Relay job lifecycle - the primary event type
	MessageTypeRelayJob MessageType = "relay:job"

	// Connection messages
	MessageTypeConnect    MessageType = "connect"
	MessageTypeDisconnect MessageType = "disconnect"
	MessageTypeError      MessageType = "error"
)

// Job lifecycle events carried inside MessageTypeRelayJob messages.
const (
	JobEventStarted = "started"
	JobEventStopped = "stopped"
	JobEventCleared = "cleared"
	JobEventExpired = "expired"
)

// Message is the envelope for every pushed WebSocket message.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// NewMessage wraps data in a timestamped envelope.
func NewMessage(t MessageType, data interface{}) Message {
	return Message{
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// JobEvent describes one relay job lifecycle change.
type JobEvent struct {
	Event string           `json:"event"`
	Job   *domain.RelayJob `json:"job,omitempty"`
	Count int              `json:"count,omitempty"`
}
