package coretest

import (
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
)

type Notification struct {
	User    domain.UserID
	Room    domain.RoomID
	Event   string
	Payload any
}

// Notifier records pushes instead of delivering them. It also records
// room evictions; a closed room is an eviction with an empty User.
type Notifier struct {
	mu      sync.Mutex
	sent    []Notification
	evicted []Notification
}

func (n *Notifier) NotifyUser(to domain.UserID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{User: to, Event: event, Payload: payload})
}

func (n *Notifier) NotifyRoom(room domain.RoomID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Room: room, Event: event, Payload: payload})
}

func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

func (n *Notifier) EvictFromRoom(user domain.UserID, room domain.RoomID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evicted = append(n.evicted, Notification{User: user, Room: room})
}

func (n *Notifier) CloseRoom(room domain.RoomID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evicted = append(n.evicted, Notification{Room: room})
}

func (n *Notifier) Evicted() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.evicted...)
}
