// Package server defines the JSON event protocol spoken over each WebSocket
// connection: one event object per text frame.
package server

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event names sent by the server.
const (
	EventConnected         = "connected"
	EventJoined            = "joined"
	EventError             = "error"
	EventUserJoined        = "userJoined"
	EventUserLeft          = "userLeft"
	EventUserList          = "userList"
	EventMessage           = "message"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventServerShutdown    = "serverShutdown"
)

// Event names accepted from clients. EventMessage is shared by both
// directions.
const (
	EventJoin       = "join"
	EventTyping     = "typing"
	EventStopTyping = "stopTyping"
)

// Event is the envelope for every frame exchanged with a client: the event
// name plus an event-specific payload.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// ConnectedPayload acknowledges a freshly admitted connection with its
// assigned identity. No session exists yet at this point.
type ConnectedPayload struct {
	ID string `json:"id"`
}

// JoinedPayload confirms a successful join to the requesting connection.
type JoinedPayload struct {
	Username string `json:"username"`
	ID       string `json:"id"`
}

// ErrorPayload carries a user-facing failure message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// PresencePayload announces a membership change to the room. It is used for
// both userJoined and userLeft events.
type PresencePayload struct {
	Username string `json:"username"`
	ID       string `json:"id"`
}

// ChatMessage is a relayed chat message, stamped by the server with an id
// and a human-readable timestamp.
type ChatMessage struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// TypingPayload identifies who is typing or stopped typing.
type TypingPayload struct {
	Username string `json:"username"`
}

// ShutdownPayload carries the shutdown notice text.
type ShutdownPayload struct {
	Message string `json:"message"`
}

// timestampLayout renders message times the way clients display them.
const timestampLayout = "3:04:05 PM"

// newChatMessage stamps text from sender with a unique id and the current
// wall-clock time. The text is relayed exactly as received, untrimmed.
func newChatMessage(sender, text string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: time.Now().Format(timestampLayout),
	}
}

// inboundEvent is the partially decoded form of a client frame. Data stays
// raw until the event name selects a concrete payload type.
type inboundEvent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

type joinRequest struct {
	Username string `json:"username"`
}

type messageRequest struct {
	Text string `json:"text"`
}
