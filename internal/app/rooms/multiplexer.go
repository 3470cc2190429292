// Package rooms fans a frame out to every connection joined to a room.
//
// Multiplexer is owned by the hub event loop; it is not safe for
// concurrent use and never closes adapter-owned connections.
package rooms

import (
	"slices"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type Multiplexer struct {
	members map[domain.RoomID]map[core.ConnID]core.Conn
	joined  map[core.ConnID]map[domain.RoomID]struct{}
}

func NewMultiplexer() *Multiplexer {
	return &Multiplexer{
		members: make(map[domain.RoomID]map[core.ConnID]core.Conn),
		joined:  make(map[core.ConnID]map[domain.RoomID]struct{}),
	}
}

// Join is idempotent.
func (m *Multiplexer) Join(conn core.Conn, room domain.RoomID) {
	set, ok := m.members[room]
	if !ok {
		set = make(map[core.ConnID]core.Conn)
		m.members[room] = set
	}
	if _, ok := set[conn.ID()]; ok {
		return
	}
	set[conn.ID()] = conn

	rs, ok := m.joined[conn.ID()]
	if !ok {
		rs = make(map[domain.RoomID]struct{})
		m.joined[conn.ID()] = rs
	}
	rs[room] = struct{}{}
	log.Info().Str("module", "app.rooms").Str("room", string(room)).Str("conn", string(conn.ID())).Str("user", string(conn.UserID())).Msg("member joined")
}

// Leave is idempotent; leaving a room the connection is not in is a no-op.
func (m *Multiplexer) Leave(conn core.Conn, room domain.RoomID) {
	if !m.remove(conn.ID(), room) {
		return
	}
	log.Info().Str("module", "app.rooms").Str("room", string(room)).Str("conn", string(conn.ID())).Msg("member left")
}

// Purge removes the connection from every room it joined.
func (m *Multiplexer) Purge(conn core.Conn) []domain.RoomID {
	rs, ok := m.joined[conn.ID()]
	if !ok {
		return nil
	}
	left := make([]domain.RoomID, 0, len(rs))
	for room := range rs {
		left = append(left, room)
	}
	for _, room := range left {
		m.remove(conn.ID(), room)
	}
	slices.Sort(left)
	log.Info().Str("module", "app.rooms").Str("conn", string(conn.ID())).Int("rooms", len(left)).Msg("connection purged")
	return left
}

func (m *Multiplexer) remove(id core.ConnID, room domain.RoomID) bool {
	set, ok := m.members[room]
	if !ok {
		return false
	}
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m.members, room)
	}
	if rs, ok := m.joined[id]; ok {
		delete(rs, room)
		if len(rs) == 0 {
			delete(m.joined, id)
		}
	}
	return true
}

// Close removes every connection from room and reports how many were in it.
func (m *Multiplexer) Close(room domain.RoomID) int {
	ids := make([]core.ConnID, 0, len(m.members[room]))
	for id := range m.members[room] {
		ids = append(ids, id)
	}
	for _, id := range ids {
		m.remove(id, room)
	}
	if len(ids) > 0 {
		log.Info().Str("module", "app.rooms").Str("room", string(room)).Int("members", len(ids)).Msg("room closed")
	}
	return len(ids)
}

// Broadcast delivers the frame to every connection in the room, sender
// included. Connections whose send buffer is full are reported in Dropped.
func (m *Multiplexer) Broadcast(room domain.RoomID, f core.Frame) core.PublishResult {
	res := core.PublishResult{}
	for _, c := range m.members[room] {
		if err := c.TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, c)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "app.rooms").Str("room", string(room)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (m *Multiplexer) Members(room domain.RoomID) []core.Conn {
	out := make([]core.Conn, 0, len(m.members[room]))
	for _, c := range m.members[room] {
		out = append(out, c)
	}
	return out
}

func (m *Multiplexer) RoomsOf(conn core.Conn) []domain.RoomID {
	out := make([]domain.RoomID, 0, len(m.joined[conn.ID()]))
	for room := range m.joined[conn.ID()] {
		out = append(out, room)
	}
	slices.Sort(out)
	return out
}

func (m *Multiplexer) IsMember(conn core.Conn, room domain.RoomID) bool {
	_, ok := m.members[room][conn.ID()]
	return ok
}
