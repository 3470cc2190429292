// Package orch runs the signaling hub: a single event loop that owns the
// presence registry and the room multiplexer.
package orch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/presence"
	"github.com/dkeye/Huddle/internal/app/relay"
	"github.com/dkeye/Huddle/internal/app/rooms"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrStopped = errors.New("orchestrator stopped")

const (
	queueSize = 256
	// revocations older than this no longer race with a join in flight
	revokeTTL = time.Minute
)

type eventKind int

const (
	evRegister eventKind = iota
	evUnregister
	evInbound
	evNotifyUser
	evNotifyRoom
	evEvict
	evCloseRoom
	evQuery
)

type event struct {
	kind  eventKind
	conn  core.Conn
	env   core.Envelope
	user  domain.UserID
	room  domain.RoomID
	frame core.Frame
	query func()
	// seq is the revocation count seen before the join was authorized
	seq uint64
}

type revokeKey struct {
	user domain.UserID
	room domain.RoomID
}

type revocation struct {
	seq uint64
	at  time.Time
}

// RoomGuard decides whether a user may join a room. It runs on the
// sender's goroutine and may do I/O.
type RoomGuard interface {
	CanJoin(ctx context.Context, user domain.UserID, room domain.RoomID) (bool, error)
}

type Orchestrator struct {
	Registry *presence.Registry
	Rooms    *rooms.Multiplexer
	Relay    *relay.Relay
	Policy   app.Policy
	Guard    RoomGuard

	events chan event
	done   chan struct{}

	// revoked is owned by the loop; revokes is read by Dispatch.
	revokes atomic.Uint64
	revoked map[revokeKey]revocation
}

func New(reg *presence.Registry, mux *rooms.Multiplexer, rl *relay.Relay, policy app.Policy) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    mux,
		Relay:    rl,
		Policy:   policy,
		events:   make(chan event, queueSize),
		done:     make(chan struct{}),
		revoked:  make(map[revokeKey]revocation),
	}
}

// Run processes events until ctx is done, then closes every live
// connection. Registry and Rooms must not be touched by anything else
// while Run is active.
func (o *Orchestrator) Run(ctx context.Context) {
	log.Info().Str("module", "app.orch").Msg("hub started")
	defer func() {
		close(o.done)
		for _, c := range o.Registry.Connections() {
			c.Close()
		}
		log.Info().Str("module", "app.orch").Msg("hub stopped")
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.events:
			o.handle(ev)
		}
	}
}

func (o *Orchestrator) enqueue(ev event) bool {
	select {
	case o.events <- ev:
		return true
	case <-o.done:
		return false
	}
}

func (o *Orchestrator) handle(ev event) {
	switch ev.kind {
	case evRegister:
		o.connect(ev.conn)
	case evUnregister:
		o.disconnect(ev.conn)
	case evInbound:
		o.inbound(ev.conn, ev.env, ev.seq)
	case evNotifyUser:
		o.pushUser(ev.user, ev.frame)
	case evNotifyRoom:
		o.pushRoom(ev.room, ev.frame)
	case evEvict:
		o.revoke(ev.user, ev.room)
		if c, ok := o.Registry.Lookup(ev.user); ok {
			o.Rooms.Leave(c, ev.room)
		}
	case evCloseRoom:
		o.revoke("", ev.room)
		o.Rooms.Close(ev.room)
	case evQuery:
		ev.query()
	}
}

// Register announces a new live connection.
func (o *Orchestrator) Register(c core.Conn) {
	o.enqueue(event{kind: evRegister, conn: c})
}

// Unregister is safe to call more than once for the same connection.
func (o *Orchestrator) Unregister(c core.Conn) {
	o.enqueue(event{kind: evUnregister, conn: c})
}

// Online returns the online set as seen by the hub after every event
// queued before the call has been handled.
func (o *Orchestrator) Online(ctx context.Context) ([]domain.UserID, error) {
	reply := make(chan []domain.UserID, 1)
	if !o.enqueue(event{kind: evQuery, query: func() { reply <- o.Registry.Online() }}) {
		return nil, ErrStopped
	}
	select {
	case users := <-reply:
		return users, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-o.done:
		return nil, ErrStopped
	}
}

func (o *Orchestrator) connect(c core.Conn) {
	if displaced := o.Registry.Connect(c); displaced != nil {
		o.Rooms.Purge(displaced)
		displaced.Close()
	}
	o.broadcastPresence()
}

func (o *Orchestrator) disconnect(c core.Conn) {
	o.Rooms.Purge(c)
	if o.Registry.Disconnect(c) {
		o.broadcastPresence()
	}
}

// current reports whether c is the user's registered connection.
func (o *Orchestrator) current(c core.Conn) bool {
	cur, ok := o.Registry.Lookup(c.UserID())
	return ok && cur.ID() == c.ID()
}

func (o *Orchestrator) broadcastPresence() {
	frame, err := core.Encode(domain.EventPresenceUpdate, o.Registry.Online())
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("encode presence")
		return
	}
	var slow []core.Conn
	for _, c := range o.Registry.Connections() {
		if err := c.TrySend(frame); err != nil {
			slow = append(slow, c)
		}
	}
	o.backpressure(slow...)
}

func (o *Orchestrator) backpressure(slow ...core.Conn) {
	if o.Policy == nil {
		return
	}
	for _, c := range slow {
		action := o.Policy.OnBackPressure(c)
		log.Warn().Str("module", "app.orch").Str("conn", string(c.ID())).Str("user", string(c.UserID())).Str("action", action.String()).Msg("backpressure")
		switch action {
		case app.KickMember:
			c.Close()
			o.disconnect(c)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// revoke records that joins authorized before now must not land in room.
// An empty user revokes the room for everyone.
func (o *Orchestrator) revoke(user domain.UserID, room domain.RoomID) {
	now := time.Now()
	for k, r := range o.revoked {
		if now.Sub(r.at) > revokeTTL {
			delete(o.revoked, k)
		}
	}
	o.revoked[revokeKey{user, room}] = revocation{seq: o.revokes.Add(1), at: now}
}

// staleJoin reports whether membership was revoked after the join was
// authorized at seq.
func (o *Orchestrator) staleJoin(user domain.UserID, room domain.RoomID, seq uint64) bool {
	for _, k := range []revokeKey{{user, room}, {"", room}} {
		if r, ok := o.revoked[k]; ok && r.seq > seq {
			return true
		}
	}
	return false
}

// IsOnline asks the hub whether uid holds a live connection.
func (o *Orchestrator) IsOnline(ctx context.Context, uid domain.UserID) (bool, error) {
	reply := make(chan bool, 1)
	if !o.enqueue(event{kind: evQuery, query: func() { reply <- o.Registry.IsOnline(uid) }}) {
		return false, ErrStopped
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-o.done:
		return false, ErrStopped
	}
}
