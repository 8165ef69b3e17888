// Package server implements the session protocol: boundary decoding and
// validation of inbound events, and the per-connection lifecycle state
// machine that gates what each event is allowed to do.
package server

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// SessionState is the lifecycle position of a single connection.
type SessionState int

const (
	// StateUnidentified covers a connection between accept and a successful
	// room join. Legacy identities bound via newUser remain in this state.
	StateUnidentified SessionState = iota
	// StateJoined covers a connection that completed a room join. Only this
	// state may relay chat messages into its room.
	StateJoined
	// StateClosed is terminal: the connection has disconnected and all of
	// its registry state has been purged.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// sessionStateOf derives a connection's state from its registry entry.
func sessionStateOf(p Participant, live bool) SessionState {
	switch {
	case !live:
		return StateClosed
	case p.Room != "":
		return StateJoined
	default:
		return StateUnidentified
	}
}

// Protocol decodes inbound frames into tagged event variants, rejecting
// malformed payloads before any registry logic runs.
type Protocol struct {
	validate *validator.Validate
}

// NewProtocol returns a protocol codec with struct validation wired in.
func NewProtocol() *Protocol {
	return &Protocol{validate: validator.New()}
}

// Decode parses an envelope and its payload into a typed InboundEvent.
// Unknown event names and undecodable payloads yield ErrMalformedEvent;
// a joinRoom payload missing required fields yields ErrInvalidJoinRequest.
func (p *Protocol) Decode(raw []byte) (InboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch env.Event {
	case EventNewUser:
		var userID string
		if err := json.Unmarshal(env.Data, &userID); err != nil {
			return nil, fmt.Errorf("%w: newUser payload: %v", ErrMalformedEvent, err)
		}
		return NewUserEvent{UserID: userID}, nil

	case EventJoinRoom:
		var req JoinRoomRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, fmt.Errorf("%w: joinRoom payload: %v", ErrMalformedEvent, err)
		}
		if err := p.validate.Struct(req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJoinRequest, err)
		}
		return JoinRoomEvent{JoinRoomRequest: req}, nil

	case EventChatMessage:
		var msg ChatMessagePayload
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("%w: chat payload: %v", ErrMalformedEvent, err)
		}
		return ChatMessageEvent{ChatMessagePayload: msg}, nil

	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, env.Event)
	}
}

// resolveChatRoom applies the relay guard: a joined sender may only relay
// into its own room, and any explicit room claim must match it.
func resolveChatRoom(sender Participant, claimed string) (string, error) {
	if sender.Room == "" {
		if claimed != "" {
			// Never joined, yet claims a room: treat as a spoof attempt.
			return "", fmt.Errorf("%w: %q claimed by unjoined connection", ErrRoomMismatch, claimed)
		}
		return "", nil
	}
	if claimed != "" && claimed != sender.Room {
		return "", fmt.Errorf("%w: claimed %q, joined %q", ErrRoomMismatch, claimed, sender.Room)
	}
	return sender.Room, nil
}
