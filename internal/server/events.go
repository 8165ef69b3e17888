// Package server defines the wire-level event envelope and the typed
// payloads exchanged with clients.
package server

import "encoding/json"

// Inbound event names accepted from clients.
const (
	EventNewUser     = "newUser"
	EventJoinRoom    = "joinRoom"
	EventChatMessage = "chat:message"
)

// Outbound event names produced by the server.
const (
	EventUsersOnline = "usersOnline"
	EventUsersInRoom = "usersInRoom"
	EventError       = "error"
)

// Envelope is the framing shared by every inbound and outbound event:
// an event name plus a payload whose shape depends on the name.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomRequest is the payload of a joinRoom event.
type JoinRoomRequest struct {
	UserID string `json:"userId" validate:"required"`
	Room   string `json:"room" validate:"required"`
}

// ChatMessagePayload is the payload of an inbound chat:message event.
// Room and Timestamp are optional; the server resolves both.
type ChatMessagePayload struct {
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Room      string `json:"room,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ChatMessage is the outbound chat:message payload after the server has
// resolved the sender, room, and timestamp.
type ChatMessage struct {
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Room      string `json:"room,omitempty"`
	Timestamp string `json:"timestamp"`
}

// PresenceEntry is one roster line in a usersOnline or usersInRoom event.
type PresenceEntry struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	Room         string `json:"room,omitempty"`
}

// ErrorEvent is delivered only to the connection whose request was rejected.
type ErrorEvent struct {
	Message string `json:"message"`
}

// InboundEvent is the tagged-variant form of a decoded client event.
type InboundEvent interface {
	inboundEvent()
}

// NewUserEvent binds an identity to a connection in legacy no-room mode.
type NewUserEvent struct {
	UserID string
}

// JoinRoomEvent binds an identity and a room to a connection.
type JoinRoomEvent struct {
	JoinRoomRequest
}

// ChatMessageEvent carries a chat message to be relayed.
type ChatMessageEvent struct {
	ChatMessagePayload
}

func (NewUserEvent) inboundEvent()     {}
func (JoinRoomEvent) inboundEvent()    {}
func (ChatMessageEvent) inboundEvent() {}

// EncodeEvent wraps a payload in the wire envelope.
func EncodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
