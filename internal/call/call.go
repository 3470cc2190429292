// Package call is the client side of a one-to-one call: a single call
// session moving between idle, calling, receiving and ongoing, driven by
// local user actions and by signaling events relayed from the peer.
package call

import (
	"context"
	"errors"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

var (
	ErrBusy        = errors.New("call already in progress")
	ErrBlocked     = errors.New("peer is blocked")
	ErrCapture     = errors.New("media capture failed")
	ErrNegotiation = errors.New("session negotiation failed")
	ErrNoCall      = errors.New("no matching call")
)

type State int

const (
	Idle State = iota
	Calling
	Receiving
	Ongoing
)

func (s State) String() string {
	switch s {
	case Calling:
		return "calling"
	case Receiving:
		return "receiving"
	case Ongoing:
		return "ongoing"
	default:
		return "idle"
	}
}

// Reasons a session went back to idle, reported in Status.Reason.
const (
	EndedLocal   = "hangup"
	EndedRemote  = "remote-hangup"
	EndedTimeout = "timeout"
	EndedFailed  = "failed"
)

// Status is a snapshot of the call session.
type Status struct {
	State  State
	Peer   domain.UserID
	Caller domain.UserInfo
	// Reason is set on the transition back to Idle.
	Reason string
}

// LocalMedia is a captured set of local tracks. Stop releases the
// devices behind them.
type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
	Stop()
}

type MediaCapturer interface {
	Capture(ctx context.Context) (LocalMedia, error)
}

type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) error
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	Close() error
}

// PeerHooks are invoked from the peer connection's own goroutines.
type PeerHooks struct {
	OnICECandidate func(c webrtc.ICECandidateInit)
	OnStateChange  func(s webrtc.PeerConnectionState)
	OnTrack        func(track *webrtc.TrackRemote)
}

type PeerFactory interface {
	NewPeer(hooks PeerHooks) (PeerConnection, error)
}

// Signaler sends call events to the peer through the signaling server.
type Signaler interface {
	SendOffer(to domain.UserID, offer webrtc.SessionDescription, caller domain.UserInfo) error
	SendAnswer(to domain.UserID, answer webrtc.SessionDescription) error
	SendICECandidate(to domain.UserID, c webrtc.ICECandidateInit) error
	SendReject(to domain.UserID, reason string) error
	SendEnd(to domain.UserID) error
}

// BlockChecker reports whether either user has blocked the other.
type BlockChecker interface {
	IsBlocked(ctx context.Context, a, b domain.UserID) (bool, error)
}
