package realtime

import (
	"sync"

	domainchat "messenger/internal/domain/chat"
	"messenger/internal/domain/user"
)

// Sender is a best-effort event sink. Send must not block; it reports
// whether the event was accepted.
type Sender interface {
	Send(ev Event) bool
}

// Router fans events out to room subscriber sets and per-user personal
// channels. It is pure delivery: nothing is persisted and nothing is
// queued for offline users. All maps share one mutex; the session manager
// is the only mutator, through the lifecycle hooks.
type Router struct {
	mu    sync.RWMutex
	conns map[ConnectionID]Sender
	rooms map[domainchat.ConversationID]map[ConnectionID]struct{}
	users map[user.ID]map[ConnectionID]struct{}
}

func NewRouter() *Router {
	return &Router{
		conns: make(map[ConnectionID]Sender),
		rooms: make(map[domainchat.ConversationID]map[ConnectionID]struct{}),
		users: make(map[user.ID]map[ConnectionID]struct{}),
	}
}

// Attach registers a connection and subscribes it to the user's personal
// channel.
func (r *Router) Attach(connID ConnectionID, userID user.ID, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = sender
	if _, ok := r.users[userID]; !ok {
		r.users[userID] = make(map[ConnectionID]struct{})
	}
	r.users[userID][connID] = struct{}{}
}

// Detach drops the connection from every room and channel it was
// subscribed to. Idempotent.
func (r *Router) Detach(connID ConnectionID, userID user.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
	for roomID, members := range r.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if members, ok := r.users[userID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.users, userID)
		}
	}
}

func (r *Router) JoinRoom(connID ConnectionID, roomID domainchat.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		return
	}
	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = make(map[ConnectionID]struct{})
	}
	r.rooms[roomID][connID] = struct{}{}
}

func (r *Router) LeaveRoom(connID ConnectionID, roomID domainchat.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// BroadcastToRoom delivers to every currently-subscribed connection.
// At-most-once per connected session; misses are not retried.
func (r *Router) BroadcastToRoom(roomID domainchat.ConversationID, ev Event) {
	r.BroadcastToRoomExcept(roomID, "", ev)
}

// BroadcastToRoomExcept delivers to the room, skipping one connection
// (typically the originator of a typing event).
func (r *Router) BroadcastToRoomExcept(roomID domainchat.ConversationID, exclude ConnectionID, ev Event) {
	for _, sender := range r.roomSenders(roomID, exclude) {
		sender.Send(ev)
	}
}

// SendToUser delivers to the user's personal channel. It reports false
// when the user has no live connection; the caller decides on a fallback.
func (r *Router) SendToUser(userID user.ID, ev Event) bool {
	r.mu.RLock()
	var senders []Sender
	for connID := range r.users[userID] {
		if sender, ok := r.conns[connID]; ok {
			senders = append(senders, sender)
		}
	}
	r.mu.RUnlock()
	if len(senders) == 0 {
		return false
	}
	delivered := false
	for _, sender := range senders {
		if sender.Send(ev) {
			delivered = true
		}
	}
	return delivered
}

// BroadcastAllExcept delivers to every attached connection except one.
// Used for the user_online / user_offline announcements.
func (r *Router) BroadcastAllExcept(exclude ConnectionID, ev Event) {
	r.mu.RLock()
	senders := make([]Sender, 0, len(r.conns))
	for connID, sender := range r.conns {
		if connID == exclude {
			continue
		}
		senders = append(senders, sender)
	}
	r.mu.RUnlock()
	for _, sender := range senders {
		sender.Send(ev)
	}
}

// InRoom reports whether the connection currently subscribes to the room.
func (r *Router) InRoom(connID ConnectionID, roomID domainchat.ConversationID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][connID]
	return ok
}

// RoomSize returns the current subscriber count for a room.
func (r *Router) RoomSize(roomID domainchat.ConversationID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// roomSenders snapshots the subscriber set so delivery happens outside
// the lock.
func (r *Router) roomSenders(roomID domainchat.ConversationID, exclude ConnectionID) []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	senders := make([]Sender, 0, len(members))
	for connID := range members {
		if connID == exclude {
			continue
		}
		if sender, ok := r.conns[connID]; ok {
			senders = append(senders, sender)
		}
	}
	return senders
}
