package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/ratelimit"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/app/presence"
	"github.com/dkeye/Huddle/internal/app/relay"
	"github.com/dkeye/Huddle/internal/app/rooms"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

func newServer(t *testing.T, opts Options) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := presence.NewRegistry()
	hub := orch.New(reg, rooms.NewMultiplexer(), relay.New(reg, nil), app.SimplePolicy{})
	go hub.Run(ctx)

	ctl := NewSignalWSController(hub, opts)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c, domain.UserID(c.Query("userId")))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url, user string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url+"?userId="+user, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", user, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// next reads envelopes until one of type typ arrives.
func next(t *testing.T, ws *websocket.Conn, typ string) core.Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		env, err := core.Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Type == typ {
			return env
		}
	}
}

func write(t *testing.T, ws *websocket.Conn, typ string, payload any) {
	t.Helper()
	f, err := core.Encode(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, f); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSignal_PresenceOnConnect(t *testing.T) {
	url := newServer(t, Options{})
	alice := dial(t, url, "alice")
	next(t, alice, domain.EventPresenceUpdate)

	dial(t, url, "bob")
	for {
		env := next(t, alice, domain.EventPresenceUpdate)
		var users []domain.UserID
		if err := json.Unmarshal(env.Payload, &users); err != nil {
			t.Fatal(err)
		}
		if len(users) == 2 {
			return
		}
	}
}

func TestSignal_RelayOffer(t *testing.T) {
	url := newServer(t, Options{})
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")
	next(t, bob, domain.EventPresenceUpdate)

	// make sure both are registered before relaying
	for {
		env := next(t, alice, domain.EventPresenceUpdate)
		if strings.Contains(string(env.Payload), "bob") {
			break
		}
	}

	write(t, alice, domain.EventInitiateCall, map[string]any{
		"to":    "bob",
		"offer": map[string]string{"type": "offer", "sdp": "v=0"},
	})
	env := next(t, bob, domain.EventIncomingCall)
	var p domain.SignalPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.From != "alice" {
		t.Fatalf("from = %q", p.From)
	}
	if !strings.Contains(string(p.Offer), "v=0") {
		t.Fatalf("offer not forwarded verbatim: %s", p.Offer)
	}
}

func TestSignal_BadJSON(t *testing.T) {
	url := newServer(t, Options{})
	ws := dial(t, url, "alice")
	if err := ws.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatal(err)
	}
	env := next(t, ws, domain.EventError)
	var p domain.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Error != "bad_json" {
		t.Fatalf("error = %q", p.Error)
	}
}

func TestSignal_RateLimited(t *testing.T) {
	url := newServer(t, Options{Limiter: ratelimit.New[domain.UserID](rate.Limit(0.001), 1)})
	ws := dial(t, url, "alice")
	write(t, ws, domain.EventPing, nil)
	next(t, ws, domain.EventPong)

	write(t, ws, domain.EventPing, nil)
	env := next(t, ws, domain.EventError)
	var p domain.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Error != "rate_limited" || p.On != domain.EventPing {
		t.Fatalf("got %+v", p)
	}
}

func waitBoth(t *testing.T, alice *websocket.Conn) {
	t.Helper()
	for {
		env := next(t, alice, domain.EventPresenceUpdate)
		if strings.Contains(string(env.Payload), "bob") {
			return
		}
	}
}

func TestSignal_CandidatesHaveOwnBudget(t *testing.T) {
	url := newServer(t, Options{
		Limiter:          ratelimit.New[domain.UserID](rate.Limit(0.001), 1),
		CandidateLimiter: ratelimit.New[domain.UserID](rate.Limit(0.001), 10),
	})
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")
	waitBoth(t, alice)

	write(t, alice, domain.EventPing, nil)
	next(t, alice, domain.EventPong)

	// a burst larger than the general budget
	for i := 0; i < 8; i++ {
		write(t, alice, domain.EventICECandidate, map[string]any{
			"to":        "bob",
			"candidate": map[string]string{"candidate": "candidate:" + strconv.Itoa(i)},
		})
	}
	for i := 0; i < 8; i++ {
		next(t, bob, domain.EventICECandidate)
	}

	write(t, alice, domain.EventICECandidate, map[string]any{"to": "bob", "candidate": map[string]string{"candidate": "c"}})
	write(t, alice, domain.EventICECandidate, map[string]any{"to": "bob", "candidate": map[string]string{"candidate": "c"}})
	write(t, alice, domain.EventICECandidate, map[string]any{"to": "bob", "candidate": map[string]string{"candidate": "c"}})
	env := next(t, alice, domain.EventError)
	var p domain.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Error != "rate_limited" || p.On != domain.EventICECandidate {
		t.Fatalf("got %+v", p)
	}
}
