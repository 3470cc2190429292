package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/core/coretest"
	"github.com/dkeye/Huddle/internal/domain"
)

type lookupMap map[domain.UserID]core.Conn

func (m lookupMap) Lookup(uid domain.UserID) (core.Conn, bool) {
	c, ok := m[uid]
	return c, ok
}

type blockSet map[[2]domain.UserID]bool

func (b blockSet) IsBlocked(_ context.Context, x, y domain.UserID) (bool, error) {
	return b[[2]domain.UserID{x, y}] || b[[2]domain.UserID{y, x}], nil
}

func envelope(t *testing.T, typ string, p any) core.Envelope {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return core.Envelope{Type: typ, Payload: raw}
}

func TestForward_OfferBecomesIncomingCall(t *testing.T) {
	alice := coretest.NewConn("a", "alice")
	bob := coretest.NewConn("b", "bob")
	r := New(lookupMap{"alice": alice, "bob": bob}, nil)

	env := envelope(t, domain.EventInitiateCall, map[string]any{
		"to":         "bob",
		"from":       "mallory",
		"callerInfo": map[string]string{"fullName": "Alice"},
		"offer":      map[string]string{"type": "offer", "sdp": "v=0"},
	})
	d, err := r.Forward(alice, env)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if d.Target.ID() != "b" || d.SendErr != nil {
		t.Fatalf("unexpected delivery %+v", d)
	}

	got, ok := bob.WaitFor(domain.EventIncomingCall, 0)
	if !ok {
		t.Fatal("bob did not receive incoming-call")
	}
	var p domain.SignalPayload
	if err := json.Unmarshal(got.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.From != "alice" {
		t.Errorf("from should be stamped from the sender, got %q", p.From)
	}
	if p.To != "" {
		t.Errorf("to should not be forwarded, got %q", p.To)
	}
	if string(p.Offer) != `{"sdp":"v=0","type":"offer"}` {
		t.Errorf("offer not forwarded verbatim: %s", p.Offer)
	}
	if len(alice.Envelopes()) != 0 {
		t.Error("sender should not receive its own offer")
	}
}

func TestForward_MirroredEvents(t *testing.T) {
	cases := []struct {
		in, out string
		payload map[string]any
	}{
		{domain.EventCallAccepted, domain.EventCallAccepted, map[string]any{"to": "bob", "answer": map[string]string{"type": "answer", "sdp": "x"}}},
		{domain.EventICECandidate, domain.EventICECandidate, map[string]any{"to": "bob", "candidate": map[string]string{"candidate": "candidate:1"}}},
		{domain.EventCallRejected, domain.EventCallRejected, map[string]any{"to": "bob"}},
		{domain.EventCallEnded, domain.EventCallEnded, map[string]any{"to": "bob"}},
		{domain.EventFriendRequest, domain.EventFriendRequest, map[string]any{"to": "bob", "sender": map[string]string{"fullName": "Alice"}}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			alice := coretest.NewConn("a", "alice")
			bob := coretest.NewConn("b", "bob")
			r := New(lookupMap{"alice": alice, "bob": bob}, nil)

			if _, err := r.Forward(alice, envelope(t, tc.in, tc.payload)); err != nil {
				t.Fatalf("forward: %v", err)
			}
			if _, ok := bob.WaitFor(tc.out, 0); !ok {
				t.Errorf("bob did not receive %s", tc.out)
			}
		})
	}
}

func TestForward_OfflineTargetDropped(t *testing.T) {
	alice := coretest.NewConn("a", "alice")
	r := New(lookupMap{"alice": alice}, nil)

	_, err := r.Forward(alice, envelope(t, domain.EventCallEnded, map[string]any{"to": "carol"}))
	if !errors.Is(err, ErrUndeliverable) {
		t.Fatalf("expected ErrUndeliverable, got %v", err)
	}
	if len(alice.Envelopes()) != 0 {
		t.Error("nothing should be sent back to the sender")
	}
}

func TestForward_BadPayload(t *testing.T) {
	alice := coretest.NewConn("a", "alice")
	r := New(lookupMap{"alice": alice}, nil)

	cases := []core.Envelope{
		envelope(t, domain.EventInitiateCall, map[string]any{"to": "bob"}),
		envelope(t, domain.EventICECandidate, map[string]any{"candidate": map[string]string{}}),
		{Type: domain.EventCallEnded, Payload: json.RawMessage(`"nope"`)},
	}
	for _, env := range cases {
		if _, err := r.Forward(alice, env); !errors.Is(err, ErrBadPayload) {
			t.Errorf("%s: expected ErrBadPayload, got %v", env.Type, err)
		}
	}
	if _, err := r.Forward(alice, core.Envelope{Type: "join-room"}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestAuthorize_BlockedCallRefused(t *testing.T) {
	alice := coretest.NewConn("a", "alice")
	bob := coretest.NewConn("b", "bob")
	r := New(lookupMap{"alice": alice, "bob": bob}, blockSet{{"bob", "alice"}: true})

	env := envelope(t, domain.EventInitiateCall, map[string]any{
		"to":    "bob",
		"offer": map[string]string{"type": "offer", "sdp": "v=0"},
	})
	if err := r.Authorize(context.Background(), alice, env); !errors.Is(err, domain.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	rej, ok := alice.WaitFor(domain.EventCallRejected, 0)
	if !ok {
		t.Fatal("caller should be told the call was rejected")
	}
	var p domain.SignalPayload
	_ = json.Unmarshal(rej.Payload, &p)
	if p.From != "bob" || p.Reason != domain.RejectBlocked {
		t.Errorf("unexpected rejection %+v", p)
	}
	if len(bob.Envelopes()) != 0 {
		t.Error("blocked offer must not reach the callee")
	}

	other := envelope(t, domain.EventCallEnded, map[string]any{"to": "bob"})
	if err := r.Authorize(context.Background(), alice, other); err != nil {
		t.Errorf("only offers are subject to block checks, got %v", err)
	}
}
