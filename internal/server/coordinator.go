// Package server wires transport events through protocol validation into
// registry mutations and router fan-out via the Coordinator type.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Coordinator is the top-level orchestrator for a single relay process.
// Each handler runs synchronously to completion (mutate, then fan out) and
// is free of I/O beyond enqueuing outbound sends, which keeps every inbound
// event unit-testable without a live connection.
type Coordinator struct {
	registry *Registry
	router   *Router
	protocol *Protocol

	now func() time.Time
}

// NewCoordinator assembles a coordinator over the given registry and router.
func NewCoordinator(registry *Registry, router *Router) *Coordinator {
	return &Coordinator{
		registry: registry,
		router:   router,
		protocol: NewProtocol(),
		now:      time.Now,
	}
}

// legacyPresence reports whether the no-room global roster is enabled:
// usersOnline pushes on connect, identify, and disconnect, and global chat
// fan-out for unjoined senders. Read from the active config on every event
// so runtime reconfiguration takes effect immediately.
func (c *Coordinator) legacyPresence() bool {
	return currentConfig().LegacyGlobalPresence
}

// HandleConnect registers a fresh connection and, in legacy mode, pushes the
// global roster to everyone including the newcomer.
func (c *Coordinator) HandleConnect(connectionID string) {
	_, everyone := c.registry.OnConnect(connectionID)
	slog.Info("Participant connected", "connectionId", connectionID, "online", len(everyone))
	if c.legacyPresence() {
		c.router.BroadcastGlobalPresence(everyone)
	}
}

// HandleDisconnect purges a connection and notifies its former room. It is
// idempotent: a second disconnect for the same connection is a no-op.
func (c *Coordinator) HandleDisconnect(connectionID string) {
	res, ok := c.registry.OnDisconnect(connectionID)
	if !ok {
		return
	}
	slog.Info("Participant disconnected", "connectionId", connectionID, "room", res.FormerRoom)
	if res.FormerRoom != "" {
		c.router.BroadcastPresence(res.Remaining)
	}
	if c.legacyPresence() {
		c.router.BroadcastGlobalPresence(res.Everyone)
	}
}

// Dispatch decodes one inbound frame and routes it to the matching handler.
// Malformed frames are dropped without affecting any other connection.
func (c *Coordinator) Dispatch(connectionID string, raw []byte) {
	event, err := c.protocol.Decode(raw)
	if err != nil {
		slog.Warn("Dropping inbound event", "connectionId", connectionID, "err", err)
		return
	}

	switch e := event.(type) {
	case NewUserEvent:
		c.handleNewUser(connectionID, e)
	case JoinRoomEvent:
		c.handleJoinRoom(connectionID, e)
	case ChatMessageEvent:
		c.handleChatMessage(connectionID, e)
	}
}

func (c *Coordinator) handleNewUser(connectionID string, e NewUserEvent) {
	everyone, ok := c.registry.Identify(connectionID, e.UserID)
	if !ok {
		return
	}
	slog.Info("Participant identified", "connectionId", connectionID, "userId", e.UserID)
	if c.legacyPresence() {
		c.router.BroadcastGlobalPresence(everyone)
	}
}

func (c *Coordinator) handleJoinRoom(connectionID string, e JoinRoomEvent) {
	res, err := c.registry.JoinRoom(connectionID, e.UserID, e.Room)
	if err != nil {
		if errors.Is(err, ErrIdentityConflict) {
			c.router.SendError(connectionID, fmt.Sprintf("user id %q is already in use in room %q", e.UserID, e.Room))
		}
		slog.Debug("Join rejected", "connectionId", connectionID, "err", err)
		return
	}

	slog.Info("Participant joined room", "connectionId", connectionID, "userId", e.UserID, "room", e.Room, "members", len(res.Members))

	// A rejoin performs an implicit leave: the old room learns about the
	// departure before the new room's roster goes out.
	if res.PreviousRoom != "" {
		c.router.BroadcastPresence(res.PreviousMembers)
	}
	c.router.BroadcastPresence(res.Members)
}

func (c *Coordinator) handleChatMessage(connectionID string, e ChatMessageEvent) {
	body := strings.TrimSpace(e.Message)
	if body == "" {
		return
	}

	sender, live := c.registry.FindByConnection(connectionID)
	if sessionStateOf(sender, live) == StateClosed {
		return
	}

	room, err := resolveChatRoom(sender, e.Room)
	if err != nil {
		// Silent drop: no signal back that would confirm room membership
		// to a probing client.
		slog.Warn("Dropping chat message", "connectionId", connectionID, "err", err)
		return
	}

	var recipients []Participant
	if room == "" {
		if !c.legacyPresence() {
			return
		}
		recipients = c.registry.Everyone()
	} else {
		recipients = c.registry.MembersOf(room)
	}

	msg := ChatMessage{
		UserID:    c.senderIdentity(e.UserID, sender),
		Message:   body,
		Room:      room,
		Timestamp: e.Timestamp,
	}
	if msg.Timestamp == "" {
		msg.Timestamp = c.now().UTC().Format(time.RFC3339)
	}

	slog.Debug("Relaying chat message", "userId", msg.UserID, "room", room)
	c.router.BroadcastMessage(recipients, msg)
}

// senderIdentity resolves the outbound userId: the payload's claim, then the
// stored identity, then the connection id as a last resort.
func (c *Coordinator) senderIdentity(claimed string, sender Participant) string {
	if claimed != "" {
		return claimed
	}
	if sender.UserID != "" {
		return sender.UserID
	}
	return sender.ConnectionID
}
