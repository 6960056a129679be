// Package registry keeps the in-memory mapping of rooms, participants and
// their transport handles. It knows nothing about websockets or message
// formats; the signaling router layers delivery on top of it.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultRoomCapacity is the policy default for the maximum number of
// participants a room accepts.
const DefaultRoomCapacity = 10

// Join request errors, returned synchronously to the caller.
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
	ErrIDInUse      = errors.New("participant id already in use")
)

// Conn is an opaque handle to the transport channel used to reach a
// participant. The registry only stores and compares it (typically a
// pointer); delivery stays with the transport layer. A handle maps to at
// most one participant.
type Conn any

// Participant is one endpoint inside a room.
type Participant struct {
	ID     string
	RoomID string
	Conn   Conn
}

// Room groups participants eligible to negotiate with each other.
type Room struct {
	ID        string
	CreatorID string
	members   map[string]*Participant
}

// Registry is a process-scoped session store. All mutations serialize on one
// mutex so the capacity check, the member set and the conn index stay
// mutually consistent; reads always reflect the latest committed mutation.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	rooms    map[string]*Room
	byConn   map[Conn]*Participant
}

// New creates an empty registry. capacity <= 0 selects DefaultRoomCapacity.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultRoomCapacity
	}
	return &Registry{
		capacity: capacity,
		rooms:    make(map[string]*Room),
		byConn:   make(map[Conn]*Participant),
	}
}

// CreateRoom creates a room with a fresh identifier and the caller as its
// creator and only member, and returns the room id.
func (r *Registry) CreateRoom(participantID string, conn Conn) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID := r.newRoomID()
	p := &Participant{ID: participantID, RoomID: roomID, Conn: conn}
	room := &Room{
		ID:        roomID,
		CreatorID: participantID,
		members:   map[string]*Participant{participantID: p},
	}
	r.rooms[roomID] = room
	r.byConn[conn] = p
	return roomID
}

// JoinRoom adds a participant to an existing room. On success it returns a
// snapshot of the members present before the join, taken under the same lock
// as the insertion so callers can notify them without a stale read. Exactly
// one of N concurrent joins racing the last free slot succeeds.
func (r *Registry) JoinRoom(roomID, participantID string, conn Conn) ([]*Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if len(room.members) >= r.capacity {
		return nil, ErrRoomFull
	}
	if _, taken := room.members[participantID]; taken {
		return nil, ErrIDInUse
	}

	prior := make([]*Participant, 0, len(room.members))
	for _, m := range room.members {
		prior = append(prior, m)
	}

	p := &Participant{ID: participantID, RoomID: roomID, Conn: conn}
	room.members[participantID] = p
	r.byConn[conn] = p
	return prior, nil
}

// Leave removes the participant reached through conn. It is idempotent: an
// unknown handle is a no-op. It returns the removed participant, the members
// remaining in its room, and whether the room was deleted because it became
// empty. The emptiness check happens under the registry lock, so exactly one
// leave deletes a given room.
func (r *Registry) Leave(conn Conn) (p *Participant, remaining []*Participant, roomDeleted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byConn[conn]
	if !ok {
		return nil, nil, false
	}
	delete(r.byConn, conn)

	room, ok := r.rooms[p.RoomID]
	if !ok {
		panic(fmt.Sprintf("registry: participant %q indexed without live room %q", p.ID, p.RoomID))
	}
	delete(room.members, p.ID)

	if len(room.members) == 0 {
		delete(r.rooms, room.ID)
		return p, nil, true
	}
	remaining = make([]*Participant, 0, len(room.members))
	for _, m := range room.members {
		remaining = append(remaining, m)
	}
	return p, remaining, false
}

// Members returns the current members of a room, or nil if the room does not
// exist.
func (r *Registry) Members(roomID string) []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]*Participant, 0, len(room.members))
	for _, m := range room.members {
		members = append(members, m)
	}
	return members
}

// Creator returns the id of the participant that created the room, or ""
// if the room does not exist.
func (r *Registry) Creator(roomID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return ""
	}
	return room.CreatorID
}

// Lookup resolves a transport handle to its participant, or nil.
func (r *Registry) Lookup(conn Conn) *Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[conn]
}

// RoomCount reports the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// newRoomID generates a short unique room token (8 hex chars from a UUID).
// Collisions are vanishingly rare but retried anyway; caller holds the lock.
func (r *Registry) newRoomID() string {
	for {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		if _, exists := r.rooms[id]; !exists {
			return id
		}
	}
}
