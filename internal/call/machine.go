package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const DefaultRingTimeout = 45 * time.Second

type Options struct {
	Self     domain.UserInfo
	Capturer MediaCapturer
	Peers    PeerFactory
	Signaler Signaler
	// Blocks may be nil; outgoing calls are then never refused locally.
	Blocks BlockChecker
	// RingTimeout bounds calling and receiving. Zero disables it.
	RingTimeout time.Duration
	// OnChange is called after every state transition, outside the
	// machine's lock.
	OnChange func(Status)
	// OnTrack receives remote tracks of the active call.
	OnTrack func(peer domain.UserID, track *webrtc.TrackRemote)
}

type session struct {
	id     uint64
	state  State
	peer   domain.UserID
	caller domain.UserInfo
	offer  webrtc.SessionDescription

	media LocalMedia
	pc    PeerConnection
	ring  *time.Timer

	remoteSet bool
	// candidates from the peer waiting for the remote description
	queued []webrtc.ICECandidateInit

	out *outbound
}

// outbound holds local ICE candidates until the offer or answer they
// belong to has been sent. It has its own lock because pion delivers
// candidates on its goroutines, possibly while the machine lock is held
// by an operation that is waiting on pion.
type outbound struct {
	mu      sync.Mutex
	ready   bool
	closed  bool
	pending []webrtc.ICECandidateInit
}

// Machine owns the single call session of one client. All methods are
// safe for concurrent use.
type Machine struct {
	opts Options

	mu      sync.Mutex
	cur     *session
	nextID  uint64
	changed []Status
}

func NewMachine(opts Options) *Machine {
	return &Machine{opts: opts}
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Machine) statusLocked() Status {
	if m.cur == nil {
		return Status{State: Idle}
	}
	return Status{State: m.cur.state, Peer: m.cur.peer, Caller: m.cur.caller}
}

// unlock releases the lock and then reports queued transitions.
func (m *Machine) unlock() {
	changed := m.changed
	m.changed = nil
	m.mu.Unlock()
	if m.opts.OnChange == nil {
		return
	}
	for _, s := range changed {
		m.opts.OnChange(s)
	}
}

func (m *Machine) setState(s State) {
	m.cur.state = s
	m.changed = append(m.changed, m.statusLocked())
	log.Info().Str("module", "call").Str("peer", string(m.cur.peer)).Str("state", s.String()).Msg("call state")
}

func (m *Machine) newSession(state State, peer domain.UserID) *session {
	m.nextID++
	return &session{id: m.nextID, state: state, peer: peer, out: &outbound{}}
}

// StartCall captures local media and sends an offer to peer.
func (m *Machine) StartCall(ctx context.Context, peer domain.UserID) error {
	m.mu.Lock()
	defer m.unlock()

	if m.cur != nil {
		return ErrBusy
	}
	if m.opts.Blocks != nil {
		blocked, err := m.opts.Blocks.IsBlocked(ctx, m.opts.Self.ID, peer)
		if err != nil {
			return fmt.Errorf("check block %s: %w", peer, err)
		}
		if blocked {
			return ErrBlocked
		}
	}

	media, err := m.opts.Capturer.Capture(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCapture, err)
	}

	s := m.newSession(Calling, peer)
	s.media = media
	if err := m.setupPeer(s); err != nil {
		m.release(s)
		return err
	}
	offer, err := s.pc.CreateOffer()
	if err == nil {
		err = s.pc.SetLocalDescription(offer)
	}
	if err != nil {
		m.release(s)
		return fmt.Errorf("%w: offer: %v", ErrNegotiation, err)
	}
	if err := m.opts.Signaler.SendOffer(peer, offer, m.opts.Self); err != nil {
		m.release(s)
		return fmt.Errorf("send offer to %s: %w", peer, err)
	}

	m.cur = s
	m.armRing(s)
	m.setState(Calling)
	m.flushLocal(s)
	return nil
}

// HandleIncomingCall stores an offer until the user accepts or rejects
// it. While another call is active the caller is told we are busy.
func (m *Machine) HandleIncomingCall(from domain.UserID, caller domain.UserInfo, offer webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.unlock()

	if m.cur != nil {
		log.Info().Str("module", "call").Str("from", string(from)).Str("state", m.cur.state.String()).Msg("busy, rejecting incoming call")
		if err := m.opts.Signaler.SendReject(from, domain.RejectBusy); err != nil {
			log.Warn().Err(err).Str("module", "call").Str("to", string(from)).Msg("send busy")
		}
		return ErrBusy
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return fmt.Errorf("%w: incoming %s is not an offer", ErrNegotiation, offer.Type)
	}

	s := m.newSession(Receiving, from)
	s.caller = caller
	s.offer = offer
	m.cur = s
	m.armRing(s)
	m.setState(Receiving)
	return nil
}

// Accept answers the pending incoming call.
func (m *Machine) Accept(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlock()

	s := m.cur
	if s == nil || s.state != Receiving {
		return ErrNoCall
	}

	media, err := m.opts.Capturer.Capture(ctx)
	if err != nil {
		m.endLocked(s, EndedFailed)
		return fmt.Errorf("%w: %v", ErrCapture, err)
	}
	s.media = media
	if err := m.setupPeer(s); err != nil {
		m.endLocked(s, EndedFailed)
		return err
	}
	if err := s.pc.SetRemoteDescription(s.offer); err != nil {
		m.endLocked(s, EndedFailed)
		return fmt.Errorf("%w: remote offer: %v", ErrNegotiation, err)
	}
	answer, err := s.pc.CreateAnswer()
	if err == nil {
		err = s.pc.SetLocalDescription(answer)
	}
	if err != nil {
		m.endLocked(s, EndedFailed)
		return fmt.Errorf("%w: answer: %v", ErrNegotiation, err)
	}
	if err := m.opts.Signaler.SendAnswer(s.peer, answer); err != nil {
		m.endLocked(s, EndedFailed)
		return fmt.Errorf("send answer to %s: %w", s.peer, err)
	}

	m.remoteApplied(s)
	m.stopRing(s)
	m.setState(Ongoing)
	m.flushLocal(s)
	return nil
}

// Reject declines the pending incoming call.
func (m *Machine) Reject() error {
	m.mu.Lock()
	defer m.unlock()

	s := m.cur
	if s == nil || s.state != Receiving {
		return ErrNoCall
	}
	if err := m.opts.Signaler.SendReject(s.peer, domain.RejectDeclined); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("to", string(s.peer)).Msg("send reject")
	}
	m.endLocked(s, domain.RejectDeclined)
	return nil
}

// HandleCallAccepted applies the peer's answer to our outgoing call.
func (m *Machine) HandleCallAccepted(from domain.UserID, answer webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.unlock()

	s := m.cur
	if s == nil || s.state != Calling || s.peer != from {
		return ErrNoCall
	}
	err := fmt.Errorf("%s is not an answer", answer.Type)
	if answer.Type == webrtc.SDPTypeAnswer {
		err = s.pc.SetRemoteDescription(answer)
	}
	if err != nil {
		if serr := m.opts.Signaler.SendEnd(s.peer); serr != nil {
			log.Warn().Err(serr).Str("module", "call").Msg("send end")
		}
		m.endLocked(s, EndedFailed)
		return fmt.Errorf("%w: remote answer: %v", ErrNegotiation, err)
	}
	m.remoteApplied(s)
	m.stopRing(s)
	m.setState(Ongoing)
	return nil
}

// HandleCallRejected ends our outgoing call after the peer declined it.
func (m *Machine) HandleCallRejected(from domain.UserID, reason string) error {
	m.mu.Lock()
	defer m.unlock()

	s := m.cur
	if s == nil || s.state != Calling || s.peer != from {
		return ErrNoCall
	}
	if reason == "" {
		reason = domain.RejectDeclined
	}
	m.endLocked(s, reason)
	return nil
}

// HandleICECandidate applies a remote candidate, or queues it until the
// remote description is set. Candidates for no call are dropped.
func (m *Machine) HandleICECandidate(from domain.UserID, c webrtc.ICECandidateInit) error {
	m.mu.Lock()
	defer m.unlock()

	s := m.cur
	if s == nil || s.peer != from {
		log.Debug().Str("module", "call").Str("from", string(from)).Msg("candidate for no call")
		return ErrNoCall
	}
	if !s.remoteSet {
		s.queued = append(s.queued, c)
		return nil
	}
	if err := s.pc.AddICECandidate(c); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("from", string(from)).Msg("add ice candidate")
	}
	return nil
}

// EndCall hangs up. It is a no-op when there is no call.
func (m *Machine) EndCall() error {
	m.mu.Lock()
	defer m.unlock()

	s := m.cur
	if s == nil {
		return nil
	}
	if err := m.opts.Signaler.SendEnd(s.peer); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("to", string(s.peer)).Msg("send end")
	}
	m.endLocked(s, EndedLocal)
	return nil
}

// HandleCallEnded tears the call down after the peer hung up.
func (m *Machine) HandleCallEnded(from domain.UserID) error {
	m.mu.Lock()
	defer m.unlock()

	s := m.cur
	if s == nil || s.peer != from {
		return nil
	}
	m.endLocked(s, EndedRemote)
	return nil
}

func (m *Machine) setupPeer(s *session) error {
	id, peer, out := s.id, s.peer, s.out
	pc, err := m.opts.Peers.NewPeer(PeerHooks{
		OnICECandidate: func(c webrtc.ICECandidateInit) { m.localCandidate(peer, out, c) },
		OnStateChange: func(st webrtc.PeerConnectionState) {
			if st == webrtc.PeerConnectionStateFailed {
				go m.peerFailed(id)
			}
		},
		OnTrack: func(track *webrtc.TrackRemote) {
			if m.opts.OnTrack != nil {
				m.opts.OnTrack(peer, track)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("%w: peer connection: %v", ErrNegotiation, err)
	}
	s.pc = pc
	for _, track := range s.media.Tracks() {
		if err := pc.AddTrack(track); err != nil {
			return fmt.Errorf("%w: add track %s: %v", ErrNegotiation, track.ID(), err)
		}
	}
	return nil
}

func (m *Machine) remoteApplied(s *session) {
	s.remoteSet = true
	for _, c := range s.queued {
		if err := s.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "call").Str("from", string(s.peer)).Msg("add queued ice candidate")
		}
	}
	s.queued = nil
}

func (m *Machine) localCandidate(peer domain.UserID, out *outbound, c webrtc.ICECandidateInit) {
	out.mu.Lock()
	defer out.mu.Unlock()
	switch {
	case out.closed:
	case !out.ready:
		out.pending = append(out.pending, c)
	default:
		if err := m.opts.Signaler.SendICECandidate(peer, c); err != nil {
			log.Warn().Err(err).Str("module", "call").Str("to", string(peer)).Msg("send ice candidate")
		}
	}
}

// flushLocal sends candidates gathered before the offer or answer went out.
func (m *Machine) flushLocal(s *session) {
	s.out.mu.Lock()
	defer s.out.mu.Unlock()
	s.out.ready = true
	for _, c := range s.out.pending {
		if err := m.opts.Signaler.SendICECandidate(s.peer, c); err != nil {
			log.Warn().Err(err).Str("module", "call").Str("to", string(s.peer)).Msg("send ice candidate")
		}
	}
	s.out.pending = nil
}

func (m *Machine) armRing(s *session) {
	if m.opts.RingTimeout <= 0 {
		return
	}
	id := s.id
	s.ring = time.AfterFunc(m.opts.RingTimeout, func() { m.ringExpired(id) })
}

func (m *Machine) stopRing(s *session) {
	if s.ring != nil {
		s.ring.Stop()
		s.ring = nil
	}
}

func (m *Machine) ringExpired(id uint64) {
	m.mu.Lock()
	defer m.unlock()

	s := m.cur
	if s == nil || s.id != id || (s.state != Calling && s.state != Receiving) {
		return
	}
	log.Info().Str("module", "call").Str("peer", string(s.peer)).Msg("ring timeout")
	if err := m.opts.Signaler.SendEnd(s.peer); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("to", string(s.peer)).Msg("send end")
	}
	m.endLocked(s, EndedTimeout)
}

func (m *Machine) peerFailed(id uint64) {
	m.mu.Lock()
	defer m.unlock()

	s := m.cur
	if s == nil || s.id != id {
		return
	}
	if err := m.opts.Signaler.SendEnd(s.peer); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("to", string(s.peer)).Msg("send end")
	}
	m.endLocked(s, EndedFailed)
}

// endLocked releases everything the session holds and returns to idle.
func (m *Machine) endLocked(s *session, reason string) {
	m.release(s)
	if m.cur == s {
		m.cur = nil
		m.changed = append(m.changed, Status{State: Idle, Peer: s.peer, Caller: s.caller, Reason: reason})
		log.Info().Str("module", "call").Str("peer", string(s.peer)).Str("reason", reason).Msg("call ended")
	}
}

// release stops media and closes the peer connection, once.
func (m *Machine) release(s *session) {
	m.stopRing(s)
	s.out.mu.Lock()
	s.out.closed = true
	s.out.pending = nil
	s.out.mu.Unlock()

	if s.media != nil {
		s.media.Stop()
		s.media = nil
	}
	if s.pc != nil {
		if err := s.pc.Close(); err != nil && !errors.Is(err, webrtc.ErrConnectionClosed) {
			log.Warn().Err(err).Str("module", "call").Str("peer", string(s.peer)).Msg("close peer connection")
		}
		s.pc = nil
	}
	s.queued = nil
}
