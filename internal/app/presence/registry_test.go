package presence

import (
	"slices"
	"testing"

	"github.com/dkeye/Huddle/internal/core/coretest"
	"github.com/dkeye/Huddle/internal/domain"
)

func TestRegistry_ConnectLookup(t *testing.T) {
	r := NewRegistry()
	a := coretest.NewConn("c1", "alice")

	if displaced := r.Connect(a); displaced != nil {
		t.Fatalf("expected no displaced connection, got %v", displaced.ID())
	}
	got, ok := r.Lookup("alice")
	if !ok || got.ID() != "c1" {
		t.Fatalf("lookup alice: got %v, %v", got, ok)
	}
	if _, ok := r.Lookup("bob"); ok {
		t.Error("bob should be absent")
	}
}

func TestRegistry_ReconnectOverwrites(t *testing.T) {
	r := NewRegistry()
	old := coretest.NewConn("c1", "alice")
	fresh := coretest.NewConn("c2", "alice")

	r.Connect(old)
	displaced := r.Connect(fresh)
	if displaced == nil || displaced.ID() != "c1" {
		t.Fatalf("expected c1 displaced, got %v", displaced)
	}
	if r.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", r.Len())
	}

	// The retired connection going away must not take the new one with it.
	if r.Disconnect(old) {
		t.Error("disconnect of displaced connection should be a no-op")
	}
	if !r.IsOnline("alice") {
		t.Error("alice should still be online")
	}
}

func TestRegistry_DisconnectIdempotent(t *testing.T) {
	r := NewRegistry()
	a := coretest.NewConn("c1", "alice")
	r.Connect(a)

	if !r.Disconnect(a) {
		t.Fatal("first disconnect should change the online set")
	}
	if r.Disconnect(a) {
		t.Error("second disconnect should be a no-op")
	}
	if r.Disconnect(coretest.NewConn("never", "ghost")) {
		t.Error("disconnect of unknown connection should be a no-op")
	}
}

func TestRegistry_OnlineMatchesLastAction(t *testing.T) {
	type step struct {
		user    domain.UserID
		conn    string
		connect bool
	}
	steps := []step{
		{"alice", "a1", true},
		{"bob", "b1", true},
		{"alice", "a1", false},
		{"carol", "c1", true},
		{"alice", "a2", true},
		{"bob", "b1", false},
		{"bob", "b1", false},
		{"carol", "c2", true},
		{"carol", "c1", false},
	}

	r := NewRegistry()
	conns := map[string]*coretest.Conn{}
	last := map[domain.UserID]bool{}
	for _, s := range steps {
		c, ok := conns[s.conn]
		if !ok {
			c = coretest.NewConn(s.conn, s.user)
			conns[s.conn] = c
		}
		if s.connect {
			r.Connect(c)
			last[s.user] = true
		} else {
			r.Disconnect(c)
			// disconnecting a displaced connection does not count as the
			// user's most recent action
			if cur, ok := r.Lookup(s.user); !ok || cur.ID() == c.ID() {
				last[s.user] = false
			}
		}
	}

	var want []domain.UserID
	for u, online := range last {
		if online {
			want = append(want, u)
		}
	}
	slices.Sort(want)
	if got := r.Online(); !slices.Equal(got, want) {
		t.Errorf("online = %v, want %v", got, want)
	}
}
