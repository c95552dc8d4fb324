package realtime

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/plank/internal/domain"
)

var (
	// ErrRegistryClosed is returned by Add after Close.
	ErrRegistryClosed = errors.New("realtime: registry closed")
	// ErrUnknownConn is returned when a connection id is not registered.
	ErrUnknownConn = errors.New("realtime: unknown connection")
)

type room struct {
	conns map[string]*Conn
	users map[uuid.UUID]int
}

// JoinResult describes the effect of Registry.Join.
type JoinResult struct {
	// Joined is false when the connection was already in the room.
	Joined bool
	// FirstForUser is true when this connection made the user present.
	FirstForUser bool
	// Left is set when the join implicitly left another room.
	Left *LeaveResult
}

// LeaveResult describes a connection leaving a room.
type LeaveResult struct {
	BoardID  uuid.UUID
	Identity domain.Identity
	// LastForUser is true when the user has no connections left in the room.
	LastForUser bool
}

// Registry tracks live connections and the board rooms they are in. A
// connection is in at most one room.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	roomOf map[string]uuid.UUID
	rooms  map[uuid.UUID]*room
	closed bool
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Conn),
		roomOf: make(map[string]uuid.UUID),
		rooms:  make(map[uuid.UUID]*room),
	}
}

// Add registers a connection that is in no room.
func (r *Registry) Add(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	r.conns[c.ID] = c
	return nil
}

func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	return c, ok
}

// RoomOf returns the board whose room the connection is in.
func (r *Registry) RoomOf(connID string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.roomOf[connID]
	return id, ok
}

// Join puts the connection in boardID's room, leaving any other room first.
// Joining the current room changes nothing.
func (r *Registry) Join(connID string, boardID uuid.UUID) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return JoinResult{}, ErrUnknownConn
	}

	var res JoinResult
	if current, in := r.roomOf[connID]; in {
		if current == boardID {
			return res, nil
		}
		left := r.leaveLocked(c, current)
		res.Left = &left
	}

	rm, ok := r.rooms[boardID]
	if !ok {
		rm = &room{conns: make(map[string]*Conn), users: make(map[uuid.UUID]int)}
		r.rooms[boardID] = rm
	}
	rm.conns[connID] = c
	rm.users[c.Identity.UserID]++
	r.roomOf[connID] = boardID

	res.Joined = true
	res.FirstForUser = rm.users[c.Identity.UserID] == 1
	return res, nil
}

// Leave takes the connection out of its room. ok is false when it was in none.
func (r *Registry) Leave(connID string) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return LeaveResult{}, false
	}
	boardID, in := r.roomOf[connID]
	if !in {
		return LeaveResult{}, false
	}
	return r.leaveLocked(c, boardID), true
}

// Remove unregisters the connection, leaving its room if any. inRoom reports
// whether res describes a room departure. Removing an unknown id is a no-op.
func (r *Registry) Remove(connID string) (res LeaveResult, inRoom bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return LeaveResult{}, false
	}
	if boardID, in := r.roomOf[connID]; in {
		res = r.leaveLocked(c, boardID)
		inRoom = true
	}
	delete(r.conns, connID)
	return res, inRoom
}

func (r *Registry) leaveLocked(c *Conn, boardID uuid.UUID) LeaveResult {
	delete(r.roomOf, c.ID)

	res := LeaveResult{BoardID: boardID, Identity: c.Identity}
	rm, ok := r.rooms[boardID]
	if !ok {
		return res
	}

	delete(rm.conns, c.ID)
	if n := rm.users[c.Identity.UserID] - 1; n > 0 {
		rm.users[c.Identity.UserID] = n
	} else {
		delete(rm.users, c.Identity.UserID)
		res.LastForUser = true
	}
	if len(rm.conns) == 0 {
		delete(r.rooms, boardID)
	}
	return res
}

// Broadcast enqueues data to every connection in boardID's room except
// exclude and returns how many accepted it. It never blocks: a member whose
// queue is full is closed as a slow consumer.
func (r *Registry) Broadcast(boardID uuid.UUID, data []byte, exclude string) int {
	r.mu.RLock()
	rm, ok := r.rooms[boardID]
	if !ok {
		r.mu.RUnlock()
		return 0
	}
	targets := make([]*Conn, 0, len(rm.conns))
	for id, c := range rm.conns {
		if id != exclude {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Send(data) {
			delivered++
		}
	}
	return delivered
}

// MembersOf returns the users present in boardID's room, one entry per user,
// sorted by username.
func (r *Registry) MembersOf(boardID uuid.UUID) []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[boardID]
	if !ok {
		return []domain.Identity{}
	}

	seen := make(map[uuid.UUID]struct{}, len(rm.users))
	members := make([]domain.Identity, 0, len(rm.users))
	for _, c := range rm.conns {
		if _, dup := seen[c.Identity.UserID]; dup {
			continue
		}
		seen[c.Identity.UserID] = struct{}{}
		members = append(members, c.Identity)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Username != members[j].Username {
			return members[i].Username < members[j].Username
		}
		return members[i].UserID.String() < members[j].UserID.String()
	})
	return members
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Rooms returns the number of non-empty rooms.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Close refuses new connections and closes every live one. Transports then
// observe Done and disconnect through the usual path.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Close(ReasonShutdown)
	}
}
