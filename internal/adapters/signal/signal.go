package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/ratelimit"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Hub is the part of the orchestrator the transport talks to.
type Hub interface {
	Register(c core.Conn)
	Unregister(c core.Conn)
	Dispatch(ctx context.Context, c core.Conn, env core.Envelope)
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
	// CheckOrigin defaults to same-origin only when nil.
	CheckOrigin func(r *http.Request) bool
	Limiter     *ratelimit.Limiter[domain.UserID]
	// CandidateLimiter throttles ice-candidate frames, which come in bursts
	// right after an offer or answer and do not count against Limiter.
	// Nil leaves them unthrottled.
	CandidateLimiter *ratelimit.Limiter[domain.UserID]
}

func (o *Options) withDefaults() {
	if o.ReadLimit == 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod == 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.PongWait == 0 {
		o.PongWait = o.PingPeriod * 10 / 9
	}
	if o.WriteWait == 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer == 0 {
		o.SendBuffer = 32
	}
}

type SignalWSController struct {
	Hub      Hub
	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(hub Hub, opts Options) *SignalWSController {
	opts.withDefaults()
	return &SignalWSController{
		Hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
	}
}

// WsSignalConn is one websocket tagged with the identity it connected as.
type WsSignalConn struct {
	id   core.ConnID
	user domain.UserID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) ID() core.ConnID       { return c.id }
func (c *WsSignalConn) UserID() domain.UserID { return c.user }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal upgrades the request and runs the connection until either
// side goes away. user has already been resolved by the router.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, user domain.UserID) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:   core.ConnID(uuid.NewString()),
		user: user,
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	log.Info().Str("module", "signal").Str("user", string(user)).Str("conn", string(conn.id)).Msg("new WS connection")

	ctl.Hub.Register(conn)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn)
}
