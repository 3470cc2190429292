// Package signalclient is the client end of the signaling connection. It
// sends call events for the call state machine and dispatches everything
// the server pushes to Handler callbacks, in arrival order.
package signalclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/call"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("not connected")

// Handler callbacks for incoming signaling events. Nil callbacks are
// skipped.
type Handler struct {
	OnPresence     func(online []domain.UserID)
	OnIncomingCall func(from domain.UserID, caller domain.UserInfo, offer webrtc.SessionDescription)
	OnCallAccepted func(from domain.UserID, answer webrtc.SessionDescription)
	OnICECandidate func(from domain.UserID, c webrtc.ICECandidateInit)
	OnCallRejected func(from domain.UserID, reason string)
	OnCallEnded    func(from domain.UserID)
	OnNewMessage   func(m domain.Message)
	OnGroupMessage func(p domain.GroupMessagePayload)
	OnError        func(p domain.ErrorPayload)
	// OnEvent receives every event without a dedicated callback.
	OnEvent func(env core.Envelope)
}

// Bind routes call events to m. Other callbacks of h are kept.
func Bind(h Handler, m *call.Machine) Handler {
	h.OnIncomingCall = func(from domain.UserID, caller domain.UserInfo, offer webrtc.SessionDescription) {
		_ = m.HandleIncomingCall(from, caller, offer)
	}
	h.OnCallAccepted = func(from domain.UserID, answer webrtc.SessionDescription) {
		if err := m.HandleCallAccepted(from, answer); err != nil {
			log.Warn().Err(err).Str("module", "signalclient").Str("from", string(from)).Msg("call accepted")
		}
	}
	h.OnICECandidate = func(from domain.UserID, c webrtc.ICECandidateInit) {
		_ = m.HandleICECandidate(from, c)
	}
	h.OnCallRejected = func(from domain.UserID, reason string) {
		_ = m.HandleCallRejected(from, reason)
	}
	h.OnCallEnded = func(from domain.UserID) {
		_ = m.HandleCallEnded(from)
	}
	return h
}

type Options struct {
	// Header is sent with the websocket handshake, e.g. a session cookie.
	Header       http.Header
	PingInterval time.Duration
	Dialer       *websocket.Dialer
}

// Client is a WebSocket signaling client.
type Client struct {
	url     string
	self    domain.UserID
	handler Handler
	opts    Options

	conn   *websocket.Conn
	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// NewClient builds a client for the signal endpoint at base, for
// example ws://localhost:8080/api/ws/signal.
func NewClient(base string, self domain.UserID, handler Handler, opts Options) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("signal url: %w", err)
	}
	q := u.Query()
	q.Set("userId", string(self))
	u.RawQuery = q.Encode()
	if opts.PingInterval == 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		url:     u.String(),
		self:    self,
		handler: handler,
		opts:    opts,
		done:    make(chan struct{}),
	}, nil
}

// SetHandler replaces the callbacks. Call it before Connect.
func (c *Client) SetHandler(h Handler) { c.handler = h }

// Connect dials the signaling server and starts reading events.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, c.opts.Header)
	if err != nil {
		return fmt.Errorf("signaling dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close shuts down the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()
	}
}

func (c *Client) send(event string, payload any) error {
	frame, err := core.Encode(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func (c *Client) SendOffer(to domain.UserID, offer webrtc.SessionDescription, caller domain.UserInfo) error {
	return c.send(domain.EventInitiateCall, domain.SignalPayload{To: to, Offer: raw(offer), CallerInfo: raw(caller)})
}

func (c *Client) SendAnswer(to domain.UserID, answer webrtc.SessionDescription) error {
	return c.send(domain.EventCallAccepted, domain.SignalPayload{To: to, Answer: raw(answer)})
}

func (c *Client) SendICECandidate(to domain.UserID, cand webrtc.ICECandidateInit) error {
	return c.send(domain.EventICECandidate, domain.SignalPayload{To: to, Candidate: raw(cand)})
}

func (c *Client) SendReject(to domain.UserID, reason string) error {
	return c.send(domain.EventCallRejected, domain.SignalPayload{To: to, Reason: reason})
}

func (c *Client) SendEnd(to domain.UserID) error {
	return c.send(domain.EventCallEnded, domain.SignalPayload{To: to})
}

func (c *Client) JoinRoom(room domain.RoomID) error {
	return c.send(domain.EventJoinRoom, domain.RoomPayload{RoomID: room})
}

func (c *Client) LeaveRoom(room domain.RoomID) error {
	return c.send(domain.EventLeaveRoom, domain.RoomPayload{RoomID: room})
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Warn().Err(err).Str("module", "signalclient").Msg("read error")
			}
			return
		}
		env, err := core.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signalclient").Msg("bad frame")
			continue
		}
		if err := c.dispatch(env); err != nil {
			log.Warn().Err(err).Str("module", "signalclient").Str("type", env.Type).Msg("bad payload")
		}
	}
}

func (c *Client) dispatch(env core.Envelope) error {
	h := c.handler
	switch env.Type {
	case domain.EventPresenceUpdate:
		if h.OnPresence == nil {
			break
		}
		var online []domain.UserID
		if err := json.Unmarshal(env.Payload, &online); err != nil {
			return err
		}
		h.OnPresence(online)
	case domain.EventIncomingCall:
		if h.OnIncomingCall == nil {
			break
		}
		p, err := decodeSignal(env)
		if err != nil {
			return err
		}
		var offer webrtc.SessionDescription
		if err := json.Unmarshal(p.Offer, &offer); err != nil {
			return fmt.Errorf("offer: %w", err)
		}
		var caller domain.UserInfo
		if len(p.CallerInfo) > 0 {
			if err := json.Unmarshal(p.CallerInfo, &caller); err != nil {
				return fmt.Errorf("caller info: %w", err)
			}
		}
		if caller.ID == "" {
			caller.ID = p.From
		}
		h.OnIncomingCall(p.From, caller, offer)
	case domain.EventCallAccepted:
		if h.OnCallAccepted == nil {
			break
		}
		p, err := decodeSignal(env)
		if err != nil {
			return err
		}
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(p.Answer, &answer); err != nil {
			return fmt.Errorf("answer: %w", err)
		}
		h.OnCallAccepted(p.From, answer)
	case domain.EventICECandidate:
		if h.OnICECandidate == nil {
			break
		}
		p, err := decodeSignal(env)
		if err != nil {
			return err
		}
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Candidate, &cand); err != nil {
			return fmt.Errorf("candidate: %w", err)
		}
		h.OnICECandidate(p.From, cand)
	case domain.EventCallRejected:
		if h.OnCallRejected == nil {
			break
		}
		p, err := decodeSignal(env)
		if err != nil {
			return err
		}
		h.OnCallRejected(p.From, p.Reason)
	case domain.EventCallEnded:
		if h.OnCallEnded == nil {
			break
		}
		p, err := decodeSignal(env)
		if err != nil {
			return err
		}
		h.OnCallEnded(p.From)
	case domain.EventNewMessage:
		if h.OnNewMessage == nil {
			break
		}
		var m domain.Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return err
		}
		h.OnNewMessage(m)
	case domain.EventGroupMessage:
		if h.OnGroupMessage == nil {
			break
		}
		var p domain.GroupMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		h.OnGroupMessage(p)
	case domain.EventError:
		if h.OnError == nil {
			break
		}
		var p domain.ErrorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		h.OnError(p)
	case domain.EventPong:
		// heartbeat response, nothing to do
	default:
		if h.OnEvent != nil {
			h.OnEvent(env)
		}
	}
	return nil
}

func decodeSignal(env core.Envelope) (domain.SignalPayload, error) {
	var p domain.SignalPayload
	err := json.Unmarshal(env.Payload, &p)
	return p, err
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.send(domain.EventPing, nil); err != nil {
				return
			}
		}
	}
}

var _ call.Signaler = (*Client)(nil)
