// Package presence keeps the process-wide index of which connection is in
// which room. It is the only place live room occupancy is known.
package presence

import (
	"slices"
	"sync"

	"boltalka/internal/models"
)

type entry struct {
	member models.Member
	room   string
}

// Registry maps rooms to their live members and connections to their room.
// A connection is a member of at most one room, and it is a member of a room
// exactly when its index entry names that room.
type Registry struct {
	// room -> members in join order
	rooms map[string][]models.Member

	// connectionID -> entry
	connections map[string]*entry

	mu sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[string][]models.Member),
		connections: make(map[string]*entry),
	}
}

// Join adds member to room. It returns false when the connection is already
// in that room. A connection currently in another room is moved.
func (r *Registry) Join(room string, member models.Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.connections[member.ConnectionID]
	if ok && e.room == room {
		return false
	}
	if ok && e.room != "" {
		r.removeFromRoom(e.room, member.ConnectionID)
	}
	if !ok {
		e = &entry{}
		r.connections[member.ConnectionID] = e
	}
	e.member = member
	e.room = room

	r.rooms[room] = append(r.rooms[room], member)
	return true
}

// Leave removes the connection from room. The connection stays indexed,
// without a room, until Remove is called.
func (r *Registry) Leave(room string, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.connections[connectionID]
	if !ok || e.room != room {
		return false
	}
	r.removeFromRoom(room, connectionID)
	e.room = ""
	return true
}

// Remove drops the connection from the registry and returns the room it was
// in, if any.
func (r *Registry) Remove(connectionID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.connections[connectionID]
	if !ok {
		return ""
	}
	if e.room != "" {
		r.removeFromRoom(e.room, connectionID)
	}
	delete(r.connections, connectionID)
	return e.room
}

// RoomOf returns the room the connection is in.
func (r *Registry) RoomOf(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.connections[connectionID]
	if !ok || e.room == "" {
		return "", false
	}
	return e.room, true
}

// MembersOf returns a copy of the room's members.
func (r *Registry) MembersOf(room string) []models.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.rooms[room])
}

func (r *Registry) CountOf(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[room])
}

// ConnectionsOf returns every indexed connection belonging to userID.
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, e := range r.connections {
		if e.member.UserID == userID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Snapshot returns a copy of every non-empty room's member list.
func (r *Registry) Snapshot() map[string][]models.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string][]models.Member, len(r.rooms))
	for room, members := range r.rooms {
		snap[room] = slices.Clone(members)
	}
	return snap
}

// must be called with mu held
func (r *Registry) removeFromRoom(room, connectionID string) {
	members := slices.DeleteFunc(r.rooms[room], func(m models.Member) bool {
		return m.ConnectionID == connectionID
	})
	if len(members) == 0 {
		delete(r.rooms, room)
		return
	}
	r.rooms[room] = members
}
