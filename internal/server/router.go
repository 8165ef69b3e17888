// Package server implements the room router: pure fan-out of outbound
// events to the recipient set computed from a registry snapshot.
package server

import (
	"log/slog"

	"github.com/samber/lo"
)

// EventSink accepts one outbound event without blocking. It reports false
// when the event could not be enqueued (closed or saturated recipient).
type EventSink interface {
	SendEvent(event string, data any) bool
}

// SinkResolver maps connection ids to their delivery sinks and disposes of
// recipients whose buffers have overflowed.
type SinkResolver interface {
	Sink(connectionID string) (EventSink, bool)
	DropSink(connectionID string)
}

// Router fans outbound events out to room members. It performs no registry
// mutation: every recipient set is a snapshot handed in by the caller, so a
// single fan-out never observes interleaved membership changes. Delivery is
// fire-and-forget per recipient; a slow recipient is dropped rather than
// allowed to stall the others.
type Router struct {
	sinks SinkResolver
}

// NewRouter returns a router delivering through the given resolver.
func NewRouter(sinks SinkResolver) *Router {
	return &Router{sinks: sinks}
}

// BroadcastPresence pushes the room roster to every member of that roster.
func (r *Router) BroadcastPresence(members []Participant) {
	if len(members) == 0 {
		return
	}
	entries := lo.Map(members, func(p Participant, _ int) PresenceEntry {
		return PresenceEntry{ConnectionID: p.ConnectionID, UserID: p.UserID, Room: p.Room}
	})
	r.deliver(members, EventUsersInRoom, entries)
}

// BroadcastGlobalPresence pushes the global roster to every connection
// (legacy no-room mode).
func (r *Router) BroadcastGlobalPresence(everyone []Participant) {
	if len(everyone) == 0 {
		return
	}
	entries := lo.Map(everyone, func(p Participant, _ int) PresenceEntry {
		return PresenceEntry{ConnectionID: p.ConnectionID, UserID: p.UserID}
	})
	r.deliver(everyone, EventUsersOnline, entries)
}

// BroadcastMessage relays a chat message to every recipient, sender included.
func (r *Router) BroadcastMessage(recipients []Participant, msg ChatMessage) {
	r.deliver(recipients, EventChatMessage, msg)
}

// SendError delivers an error event to a single connection.
func (r *Router) SendError(connectionID, message string) {
	sink, ok := r.sinks.Sink(connectionID)
	if !ok {
		return
	}
	if !sink.SendEvent(EventError, ErrorEvent{Message: message}) {
		r.sinks.DropSink(connectionID)
	}
}

func (r *Router) deliver(recipients []Participant, event string, data any) {
	var failed []string
	for _, p := range recipients {
		sink, ok := r.sinks.Sink(p.ConnectionID)
		if !ok {
			continue
		}
		if !sink.SendEvent(event, data) {
			failed = append(failed, p.ConnectionID)
		}
	}

	for _, id := range failed {
		slog.Warn("Dropping recipient with saturated send buffer", "connectionId", id, "event", event)
		r.sinks.DropSink(id)
	}
}
