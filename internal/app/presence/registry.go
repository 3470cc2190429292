// Package presence tracks which users hold a live signaling connection.
//
// Registry is not safe for concurrent use. It is owned by the hub event
// loop and must only be touched from that goroutine.
package presence

import (
	"slices"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type Registry struct {
	byUser map[domain.UserID]core.Conn
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[domain.UserID]core.Conn)}
}

// Connect maps the connection's user to conn, last writer wins. The
// connection it displaced, if any, is returned so the caller can retire it.
func (r *Registry) Connect(conn core.Conn) (displaced core.Conn) {
	uid := conn.UserID()
	prev, ok := r.byUser[uid]
	r.byUser[uid] = conn
	if ok && prev.ID() != conn.ID() {
		log.Info().Str("module", "app.presence").Str("user", string(uid)).Str("conn", string(conn.ID())).Str("displaced", string(prev.ID())).Msg("connection replaced")
		return prev
	}
	log.Info().Str("module", "app.presence").Str("user", string(uid)).Str("conn", string(conn.ID())).Msg("user online")
	return nil
}

// Disconnect removes the user's entry if it still points at conn and
// reports whether the online set changed. A connection that was replaced
// or never registered is a no-op.
func (r *Registry) Disconnect(conn core.Conn) bool {
	uid := conn.UserID()
	cur, ok := r.byUser[uid]
	if !ok || cur.ID() != conn.ID() {
		return false
	}
	delete(r.byUser, uid)
	log.Info().Str("module", "app.presence").Str("user", string(uid)).Str("conn", string(conn.ID())).Msg("user offline")
	return true
}

func (r *Registry) Lookup(uid domain.UserID) (core.Conn, bool) {
	c, ok := r.byUser[uid]
	return c, ok
}

func (r *Registry) IsOnline(uid domain.UserID) bool {
	_, ok := r.byUser[uid]
	return ok
}

// Online returns the sorted set of online user identities.
func (r *Registry) Online() []domain.UserID {
	out := make([]domain.UserID, 0, len(r.byUser))
	for uid := range r.byUser {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) Connections() []core.Conn {
	out := make([]core.Conn, 0, len(r.byUser))
	for _, c := range r.byUser {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int { return len(r.byUser) }
