// Package server implements the presence registry: the authoritative
// in-memory mapping of connections to identity and room membership.
package server

import (
	"errors"
	"fmt"
	"sync"
)

// Errors surfaced by registry and protocol operations. Each one is contained
// to the triggering connection; none is fatal to the server.
var (
	// ErrInvalidJoinRequest marks a join attempt with an empty user id or room.
	ErrInvalidJoinRequest = errors.New("join request requires a user id and a room")
	// ErrIdentityConflict marks a join whose user id is already held by another
	// connection in the target room. First writer wins.
	ErrIdentityConflict = errors.New("identity already in use in this room")
	// ErrMalformedEvent marks an inbound frame that could not be decoded into
	// a known event.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrRoomMismatch marks a chat message whose claimed room differs from the
	// sender's joined room.
	ErrRoomMismatch = errors.New("claimed room does not match joined room")
	// ErrUnknownConnection marks an operation against a connection the
	// registry has never seen or has already purged.
	ErrUnknownConnection = errors.New("unknown connection")
)

// Participant binds a live connection to a client-asserted identity and a
// room. UserID and Room stay empty until the client announces them.
type Participant struct {
	ConnectionID string
	UserID       string
	Room         string
}

// JoinResult is the atomic snapshot produced by a successful join: the new
// room's full member list, plus the room the connection previously occupied
// (with its post-move member list) when the join was a rejoin.
type JoinResult struct {
	Members         []Participant
	PreviousRoom    string
	PreviousMembers []Participant
}

// Registry owns the participant collection. All mutation happens behind one
// mutex, and every mutate-then-snapshot pair is performed under a single
// lock acquisition so fan-out always sees a consistent membership view.
// Iteration order is insertion order, which keeps presence lists
// deterministic.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*Participant
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Participant)}
}

// OnConnect inserts a participant with empty identity and room. Connecting
// an already-live connection is a no-op that returns the existing entry.
// The returned roster is the full insertion-ordered participant list, taken
// under the same lock as the insert.
func (r *Registry) OnConnect(connectionID string) (Participant, []Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[connectionID]
	if !ok {
		p = &Participant{ConnectionID: connectionID}
		r.entries[connectionID] = p
		r.order = append(r.order, connectionID)
	}
	return *p, r.everyoneLocked()
}

// Identify binds a user id to a connection without joining a room (legacy
// no-room mode). Empty ids and unknown connections are silent no-ops; the
// second return reports whether a binding happened.
func (r *Registry) Identify(connectionID, userID string) ([]Participant, bool) {
	if userID == "" {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[connectionID]
	if !ok {
		return nil, false
	}
	p.UserID = userID
	return r.everyoneLocked(), true
}

// JoinRoom validates and applies a join. It rejects empty fields with
// ErrInvalidJoinRequest and colliding identities with ErrIdentityConflict,
// leaving the requester's prior state untouched in both cases. On success
// the participant's identity and room are overwritten and the member lists
// of the new room (and the former room, on a rejoin) are snapshotted under
// the same lock.
func (r *Registry) JoinRoom(connectionID, userID, room string) (JoinResult, error) {
	if userID == "" || room == "" {
		return JoinResult{}, ErrInvalidJoinRequest
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[connectionID]
	if !ok {
		return JoinResult{}, fmt.Errorf("%w: %s", ErrUnknownConnection, connectionID)
	}

	for _, id := range r.order {
		other := r.entries[id]
		if other.ConnectionID != connectionID && other.Room == room && other.UserID == userID {
			return JoinResult{}, fmt.Errorf("%w: %q in %q", ErrIdentityConflict, userID, room)
		}
	}

	previousRoom := p.Room
	p.UserID = userID
	p.Room = room

	res := JoinResult{Members: r.membersLocked(room)}
	if previousRoom != "" && previousRoom != room {
		res.PreviousRoom = previousRoom
		res.PreviousMembers = r.membersLocked(previousRoom)
	}
	return res, nil
}

// DisconnectResult is the atomic snapshot produced by a removal: the former
// room with its remaining members, plus the global roster after removal, so
// the legacy presence push rides the same lock as the mutation.
type DisconnectResult struct {
	FormerRoom string
	Remaining  []Participant
	Everyone   []Participant
}

// OnDisconnect removes the participant if present and snapshots its former
// room's remaining members and the global roster under the removal lock.
// Disconnecting an unknown connection is a no-op.
func (r *Registry) OnDisconnect(connectionID string) (DisconnectResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[connectionID]
	if !ok {
		return DisconnectResult{}, false
	}
	delete(r.entries, connectionID)
	for i, id := range r.order {
		if id == connectionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	res := DisconnectResult{Everyone: r.everyoneLocked()}
	if p.Room != "" {
		res.FormerRoom = p.Room
		res.Remaining = r.membersLocked(p.Room)
	}
	return res, true
}

// FindByConnection returns a copy of the participant for a connection.
func (r *Registry) FindByConnection(connectionID string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.entries[connectionID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// MembersOf returns copies of all participants joined to room, in insertion
// order.
func (r *Registry) MembersOf(room string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked(room)
}

// Everyone returns copies of all live participants in insertion order.
func (r *Registry) Everyone() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.everyoneLocked()
}

// Stats reports the number of occupied rooms and live participants.
func (r *Registry) Stats() (rooms, participants int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, p := range r.entries {
		if p.Room != "" {
			seen[p.Room] = struct{}{}
		}
	}
	return len(seen), len(r.entries)
}

func (r *Registry) membersLocked(room string) []Participant {
	if room == "" {
		return nil
	}
	var members []Participant
	for _, id := range r.order {
		if p := r.entries[id]; p.Room == room {
			members = append(members, *p)
		}
	}
	return members
}

func (r *Registry) everyoneLocked() []Participant {
	everyone := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		everyone = append(everyone, *r.entries[id])
	}
	return everyone
}
