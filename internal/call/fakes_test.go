package call

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

type fakeMedia struct {
	mu    sync.Mutex
	stops int
}

func (m *fakeMedia) Tracks() []webrtc.TrackLocal { return nil }

func (m *fakeMedia) Stop() {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
}

func (m *fakeMedia) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

type fakeCapturer struct {
	err   error
	calls int
	media []*fakeMedia
}

func (c *fakeCapturer) Capture(context.Context) (LocalMedia, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	m := &fakeMedia{}
	c.media = append(c.media, m)
	return m, nil
}

func (c *fakeCapturer) last() *fakeMedia {
	if len(c.media) == 0 {
		return nil
	}
	return c.media[len(c.media)-1]
}

var errFake = errors.New("boom")

type fakePeer struct {
	hooks PeerHooks

	mu     sync.Mutex
	ops    []string
	added  []webrtc.ICECandidateInit
	closes int

	failOffer  bool
	failRemote bool
	// gather is emitted through OnICECandidate from SetLocalDescription.
	gather []webrtc.ICECandidateInit
}

func (p *fakePeer) record(op string) {
	p.mu.Lock()
	p.ops = append(p.ops, op)
	p.mu.Unlock()
}

func (p *fakePeer) AddTrack(webrtc.TrackLocal) error { return nil }

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	p.record("create-offer")
	if p.failOffer {
		return webrtc.SessionDescription{}, errFake
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.record("create-answer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (p *fakePeer) SetLocalDescription(webrtc.SessionDescription) error {
	p.record("set-local")
	for _, c := range p.gather {
		p.hooks.OnICECandidate(c)
	}
	return nil
}

func (p *fakePeer) SetRemoteDescription(webrtc.SessionDescription) error {
	p.record("set-remote")
	if p.failRemote {
		return errFake
	}
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "add-candidate:"+c.Candidate)
	p.added = append(p.added, c)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...)
}

func (p *fakePeer) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

type fakeFactory struct {
	err       error
	configure func(p *fakePeer)
	peers     []*fakePeer
}

func (f *fakeFactory) NewPeer(hooks PeerHooks) (PeerConnection, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{hooks: hooks}
	if f.configure != nil {
		f.configure(p)
	}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) last() *fakePeer {
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

type sent struct {
	kind      string
	to        domain.UserID
	desc      webrtc.SessionDescription
	candidate string
	reason    string
	caller    domain.UserInfo
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []sent
}

func (s *fakeSignaler) add(m sent) error {
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
	return nil
}

func (s *fakeSignaler) SendOffer(to domain.UserID, offer webrtc.SessionDescription, caller domain.UserInfo) error {
	return s.add(sent{kind: "offer", to: to, desc: offer, caller: caller})
}

func (s *fakeSignaler) SendAnswer(to domain.UserID, answer webrtc.SessionDescription) error {
	return s.add(sent{kind: "answer", to: to, desc: answer})
}

func (s *fakeSignaler) SendICECandidate(to domain.UserID, c webrtc.ICECandidateInit) error {
	return s.add(sent{kind: "candidate", to: to, candidate: c.Candidate})
}

func (s *fakeSignaler) SendReject(to domain.UserID, reason string) error {
	return s.add(sent{kind: "reject", to: to, reason: reason})
}

func (s *fakeSignaler) SendEnd(to domain.UserID) error {
	return s.add(sent{kind: "end", to: to})
}

func (s *fakeSignaler) Sent() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sent...)
}

func (s *fakeSignaler) Kinds() []string {
	var kinds []string
	for _, m := range s.Sent() {
		kinds = append(kinds, m.kind)
	}
	return kinds
}

type blockSet map[[2]domain.UserID]bool

func (b blockSet) IsBlocked(_ context.Context, x, y domain.UserID) (bool, error) {
	return b[[2]domain.UserID{x, y}] || b[[2]domain.UserID{y, x}], nil
}
