// Package relay forwards call-signaling events between users.
//
// Relay keeps no state of its own: every call resolves the target through
// the presence lookup it was built with and writes at most one frame.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupported   = errors.New("unsupported signaling event")
	ErrBadPayload    = errors.New("bad signaling payload")
	ErrUndeliverable = errors.New("target offline")
)

type Lookup interface {
	Lookup(uid domain.UserID) (core.Conn, bool)
}

type BlockChecker interface {
	IsBlocked(ctx context.Context, a, b domain.UserID) (bool, error)
}

type route struct {
	out      string
	required func(p *domain.SignalPayload) bool
}

var routes = map[string]route{
	domain.EventInitiateCall:  {domain.EventIncomingCall, func(p *domain.SignalPayload) bool { return len(p.Offer) > 0 }},
	domain.EventCallAccepted:  {domain.EventCallAccepted, func(p *domain.SignalPayload) bool { return len(p.Answer) > 0 }},
	domain.EventICECandidate:  {domain.EventICECandidate, func(p *domain.SignalPayload) bool { return len(p.Candidate) > 0 }},
	domain.EventCallRejected:  {domain.EventCallRejected, nil},
	domain.EventCallEnded:     {domain.EventCallEnded, nil},
	domain.EventFriendRequest: {domain.EventFriendRequest, nil},
}

// Handles reports whether event is relayed by Relay.
func Handles(event string) bool {
	_, ok := routes[event]
	return ok
}

type Relay struct {
	presence Lookup
	blocks   BlockChecker
}

// New builds a relay. blocks may be nil, in which case calls are never
// refused on block relationships.
func New(presence Lookup, blocks BlockChecker) *Relay {
	return &Relay{presence: presence, blocks: blocks}
}

// Delivery describes what happened to one relayed event. Target is the
// connection a frame was written to; SendErr carries the transport error
// so the caller can apply its backpressure policy.
type Delivery struct {
	Target  core.Conn
	Event   string
	SendErr error
}

func decode(env core.Envelope) (route, domain.SignalPayload, error) {
	rt, ok := routes[env.Type]
	if !ok {
		return route{}, domain.SignalPayload{}, fmt.Errorf("%w: %q", ErrUnsupported, env.Type)
	}
	var p domain.SignalPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return route{}, domain.SignalPayload{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if p.To == "" || (rt.required != nil && !rt.required(&p)) {
		return route{}, domain.SignalPayload{}, fmt.Errorf("%w: %s missing fields", ErrBadPayload, env.Type)
	}
	return rt, p, nil
}

// Authorize runs the checks that need the block store. It may block on
// I/O and is meant to run on the sender's goroutine, before the event
// reaches the hub loop. A refused offer is answered to the sender with
// call-rejected{reason: "blocked"} and reported as domain.ErrBlocked.
func (r *Relay) Authorize(ctx context.Context, sender core.Conn, env core.Envelope) error {
	if env.Type != domain.EventInitiateCall || r.blocks == nil {
		return nil
	}
	_, p, err := decode(env)
	if err != nil {
		return err
	}
	blocked, err := r.blocks.IsBlocked(ctx, sender.UserID(), p.To)
	if err != nil {
		return fmt.Errorf("check block %s/%s: %w", sender.UserID(), p.To, err)
	}
	if !blocked {
		return nil
	}
	log.Info().Str("module", "app.relay").Str("from", string(sender.UserID())).Str("to", string(p.To)).Msg("call refused, blocked")
	frame, err := core.Encode(domain.EventCallRejected, domain.SignalPayload{From: p.To, Reason: domain.RejectBlocked})
	if err == nil {
		_ = sender.TrySend(frame)
	}
	return domain.ErrBlocked
}

// Forward rewrites an inbound event into its outbound form and writes it
// to the target's live connection. The sender's identity is stamped into
// "from"; any client supplied value is ignored. An offline target yields
// ErrUndeliverable and nothing is written.
func (r *Relay) Forward(sender core.Conn, env core.Envelope) (Delivery, error) {
	rt, p, err := decode(env)
	if err != nil {
		return Delivery{}, err
	}
	to := p.To
	p.To = ""
	p.From = sender.UserID()

	target, ok := r.presence.Lookup(to)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("event", env.Type).Str("from", string(p.From)).Str("to", string(to)).Msg("dropped, target offline")
		return Delivery{Event: rt.out}, ErrUndeliverable
	}

	frame, err := core.Encode(rt.out, p)
	if err != nil {
		return Delivery{}, err
	}
	d := Delivery{Target: target, Event: rt.out, SendErr: target.TrySend(frame)}
	log.Debug().Str("module", "app.relay").Str("event", rt.out).Str("from", string(p.From)).Str("to", string(to)).AnErr("send_err", d.SendErr).Msg("relayed")
	return d, nil
}
