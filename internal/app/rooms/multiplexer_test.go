package rooms

import (
	"testing"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/core/coretest"
)

func TestMultiplexer_JoinLeaveIdempotent(t *testing.T) {
	m := NewMultiplexer()
	a := coretest.NewConn("a", "alice")

	m.Join(a, "g1")
	m.Join(a, "g1")
	if n := len(m.Members("g1")); n != 1 {
		t.Fatalf("expected 1 member after double join, got %d", n)
	}

	m.Leave(a, "g1")
	m.Leave(a, "g1")
	m.Leave(a, "never")
	if n := len(m.Members("g1")); n != 0 {
		t.Fatalf("expected empty room, got %d", n)
	}
	if rs := m.RoomsOf(a); len(rs) != 0 {
		t.Errorf("expected no rooms, got %v", rs)
	}
}

func TestMultiplexer_BroadcastReachesOnlyJoined(t *testing.T) {
	m := NewMultiplexer()
	a := coretest.NewConn("a", "alice")
	d := coretest.NewConn("d", "dave")
	e := coretest.NewConn("e", "eve")
	left := coretest.NewConn("l", "lee")

	m.Join(a, "g")
	m.Join(e, "g")
	m.Join(left, "g")
	m.Leave(left, "g")

	res := m.Broadcast("g", core.Frame(`{"type":"group-message"}`))
	if res.SentTo != 2 {
		t.Errorf("expected 2 deliveries, got %d", res.SentTo)
	}
	if len(a.Envelopes()) != 1 {
		t.Error("alice should receive the broadcast")
	}
	if len(e.Envelopes()) != 1 {
		t.Error("the sender should receive its own broadcast")
	}
	if len(d.Envelopes()) != 0 {
		t.Error("dave never joined")
	}
	if len(left.Envelopes()) != 0 {
		t.Error("lee left before the broadcast")
	}
}

func TestMultiplexer_PurgeRemovesEverywhere(t *testing.T) {
	m := NewMultiplexer()
	a := coretest.NewConn("a", "alice")
	b := coretest.NewConn("b", "bob")

	m.Join(a, "g1")
	m.Join(a, "g2")
	m.Join(b, "g2")

	left := m.Purge(a)
	if len(left) != 2 || left[0] != "g1" || left[1] != "g2" {
		t.Fatalf("unexpected purged rooms %v", left)
	}
	if m.IsMember(a, "g1") || m.IsMember(a, "g2") {
		t.Error("alice should be gone from all rooms")
	}
	if !m.IsMember(b, "g2") {
		t.Error("bob should stay in g2")
	}
	if m.Purge(a) != nil {
		t.Error("second purge should be a no-op")
	}
}

func TestMultiplexer_BroadcastReportsDropped(t *testing.T) {
	m := NewMultiplexer()
	slow := coretest.NewConn("s", "slow")
	slow.SetFull(true)
	m.Join(slow, "g")

	res := m.Broadcast("g", core.Frame(`{}`))
	if res.SentTo != 0 || len(res.Dropped) != 1 || res.Dropped[0].ID() != "s" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestMultiplexer_CloseEmptiesRoom(t *testing.T) {
	m := NewMultiplexer()
	a := coretest.NewConn("a", "alice")
	b := coretest.NewConn("b", "bob")
	m.Join(a, "g")
	m.Join(b, "g")
	m.Join(b, "other")

	if n := m.Close("g"); n != 2 {
		t.Fatalf("closed %d members, want 2", n)
	}
	if len(m.Members("g")) != 0 {
		t.Error("room should be empty")
	}
	if rooms := m.RoomsOf(b); len(rooms) != 1 || rooms[0] != "other" {
		t.Errorf("bob rooms = %v", rooms)
	}
	if n := m.Close("g"); n != 0 {
		t.Errorf("second close = %d", n)
	}
}
