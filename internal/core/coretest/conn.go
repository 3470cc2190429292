// Package coretest provides in-memory connections for hub and relay tests.
package coretest

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrClosed = errors.New("connection closed")
	ErrFull   = errors.New("send buffer full")
)

// Conn records every frame sent to it. Setting Full makes TrySend fail
// like a saturated websocket buffer.
type Conn struct {
	id   core.ConnID
	user domain.UserID

	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
	notify chan struct{}
}

func NewConn(id string, user domain.UserID) *Conn {
	return &Conn{id: core.ConnID(id), user: user, notify: make(chan struct{}, 1)}
}

func (c *Conn) ID() core.ConnID       { return c.id }
func (c *Conn) UserID() domain.UserID { return c.user }
func (c *Conn) SetFull(full bool)     { c.mu.Lock(); c.full = full; c.mu.Unlock() }
func (c *Conn) Closed() bool          { c.mu.Lock(); defer c.mu.Unlock(); return c.closed }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.full {
		return ErrFull
	}
	c.frames = append(c.frames, f)
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Envelopes decodes every frame received so far.
func (c *Conn) Envelopes() []core.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env core.Envelope
		if err := json.Unmarshal(f, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// Events returns the received envelopes of the given type.
func (c *Conn) Events(typ string) []core.Envelope {
	var out []core.Envelope
	for _, env := range c.Envelopes() {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

// Reset forgets everything received so far.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// WaitFor blocks until an envelope of type typ has been received or the
// timeout expires.
func (c *Conn) WaitFor(typ string, timeout time.Duration) (core.Envelope, bool) {
	deadline := time.After(timeout)
	for {
		if evs := c.Events(typ); len(evs) > 0 {
			return evs[len(evs)-1], true
		}
		select {
		case <-c.notify:
		case <-deadline:
			return core.Envelope{}, false
		}
	}
}
