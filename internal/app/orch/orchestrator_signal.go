package orch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/Huddle/internal/app/relay"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Dispatch accepts one inbound envelope from c. Checks that need I/O run
// here, on the caller's goroutine; everything that touches presence or
// room state is queued to the hub loop in arrival order.
func (o *Orchestrator) Dispatch(ctx context.Context, c core.Conn, env core.Envelope) {
	seq := o.revokes.Load()
	switch {
	case env.Type == domain.EventJoinRoom && o.Guard != nil:
		var p domain.RoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.RoomID == "" {
			sendError(c, env.Type, "bad_payload")
			return
		}
		ok, err := o.Guard.CanJoin(ctx, c.UserID(), p.RoomID)
		if err != nil {
			log.Error().Err(err).Str("module", "app.orch").Str("room", string(p.RoomID)).Msg("room guard")
			sendError(c, env.Type, "internal_error")
			return
		}
		if !ok {
			sendError(c, env.Type, "forbidden")
			return
		}
	case relay.Handles(env.Type) && o.Relay != nil:
		if err := o.Relay.Authorize(ctx, c, env); err != nil {
			switch {
			case errors.Is(err, domain.ErrBlocked):
			case errors.Is(err, relay.ErrBadPayload):
				sendError(c, env.Type, "bad_payload")
			default:
				log.Error().Err(err).Str("module", "app.orch").Str("type", env.Type).Msg("authorize")
				sendError(c, env.Type, "internal_error")
			}
			return
		}
	}
	o.enqueue(event{kind: evInbound, conn: c, env: env, seq: seq})
}

func (o *Orchestrator) inbound(c core.Conn, env core.Envelope, seq uint64) {
	if !o.current(c) {
		log.Debug().Str("module", "app.orch").Str("conn", string(c.ID())).Str("type", env.Type).Msg("event from retired connection")
		return
	}
	switch env.Type {
	case domain.EventJoinRoom, domain.EventLeaveRoom:
		var p domain.RoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.RoomID == "" {
			sendError(c, env.Type, "bad_payload")
			return
		}
		if env.Type == domain.EventJoinRoom {
			if o.staleJoin(c.UserID(), p.RoomID, seq) {
				sendError(c, env.Type, "forbidden")
				return
			}
			o.Rooms.Join(c, p.RoomID)
		} else {
			o.Rooms.Leave(c, p.RoomID)
		}
	case domain.EventPing:
		if f, err := core.Encode(domain.EventPong, nil); err == nil {
			if err := c.TrySend(f); err != nil {
				o.backpressure(c)
			}
		}
	default:
		if !relay.Handles(env.Type) {
			log.Warn().Str("module", "app.orch").Str("type", env.Type).Msg("unknown signal")
			sendError(c, env.Type, "unknown_event")
			return
		}
		d, err := o.Relay.Forward(c, env)
		switch {
		case errors.Is(err, relay.ErrUndeliverable):
			return
		case err != nil:
			sendError(c, env.Type, "bad_payload")
			return
		}
		if d.SendErr != nil {
			o.backpressure(d.Target)
		}
	}
}

// NotifyUser pushes an event to the user's live connection, if any.
func (o *Orchestrator) NotifyUser(to domain.UserID, event string, payload any) {
	frame, err := core.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("event", event).Msg("encode notify")
		return
	}
	o.enqueue(eventFor(evNotifyUser, to, "", frame))
}

// NotifyRoom broadcasts an event to every connection joined to room.
func (o *Orchestrator) NotifyRoom(room domain.RoomID, event string, payload any) {
	frame, err := core.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("event", event).Msg("encode notify")
		return
	}
	o.enqueue(eventFor(evNotifyRoom, "", room, frame))
}

// EvictFromRoom takes the user's live connection out of room. Events
// queued after the call see the room without it; rejoining goes through
// the room guard again.
func (o *Orchestrator) EvictFromRoom(user domain.UserID, room domain.RoomID) {
	o.enqueue(eventFor(evEvict, user, room, nil))
}

// CloseRoom takes every connection out of room.
func (o *Orchestrator) CloseRoom(room domain.RoomID) {
	o.enqueue(eventFor(evCloseRoom, "", room, nil))
}

func eventFor(kind eventKind, user domain.UserID, room domain.RoomID, f core.Frame) event {
	return event{kind: kind, user: user, room: room, frame: f}
}

func (o *Orchestrator) pushUser(to domain.UserID, f core.Frame) {
	c, ok := o.Registry.Lookup(to)
	if !ok {
		log.Debug().Str("module", "app.orch").Str("to", string(to)).Msg("push skipped, user offline")
		return
	}
	if err := c.TrySend(f); err != nil {
		o.backpressure(c)
	}
}

func (o *Orchestrator) pushRoom(room domain.RoomID, f core.Frame) {
	res := o.Rooms.Broadcast(room, f)
	o.backpressure(res.Dropped...)
}

func sendError(c core.Conn, on, msg string) {
	f, err := core.Encode(domain.EventError, domain.ErrorPayload{Error: msg, On: on})
	if err != nil {
		return
	}
	_ = c.TrySend(f)
}
