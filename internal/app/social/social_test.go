package social

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/core/coretest"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/storage"
)

func setup(t *testing.T) (*storage.DB, map[string]domain.UserID) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "social.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	ids := map[string]domain.UserID{}
	for _, name := range []string{"alice", "bob", "carol"} {
		u, _ := domain.NewUser(name, name+"@example.com")
		u.PasswordHash = "x"
		if err := db.CreateUser(context.Background(), u); err != nil {
			t.Fatal(err)
		}
		ids[name] = u.ID
	}
	return db, ids
}

func TestFriends_RequestFlow(t *testing.T) {
	ctx := context.Background()
	db, u := setup(t)
	n := &coretest.Notifier{}
	f := &Friends{Users: db, Store: db, Notifier: n}

	if err := f.SendRequest(ctx, u["alice"], u["bob"]); err != nil {
		t.Fatal(err)
	}
	if err := f.SendRequest(ctx, u["alice"], u["bob"]); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate request: got %v", err)
	}
	if err := f.SendRequest(ctx, u["alice"], "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown user: got %v", err)
	}
	if err := f.AcceptRequest(ctx, u["carol"], u["alice"]); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("accept without request: got %v", err)
	}
	if err := f.AcceptRequest(ctx, u["bob"], u["alice"]); err != nil {
		t.Fatal(err)
	}
	if err := f.SendRequest(ctx, u["bob"], u["alice"]); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("already friends: got %v", err)
	}

	list, err := f.List(ctx, u["alice"])
	if err != nil || len(list) != 1 || list[0].ID != u["bob"] {
		t.Errorf("friends of alice: %v %v", list, err)
	}

	sent := n.Sent()
	if len(sent) != 2 || sent[0].Event != domain.EventFriendRequest || sent[0].User != u["bob"] ||
		sent[1].Event != domain.EventFriendRequestAccepted || sent[1].User != u["alice"] {
		t.Errorf("unexpected notifications %+v", sent)
	}
}

func TestBlocks(t *testing.T) {
	ctx := context.Background()
	db, u := setup(t)
	b := &Blocks{Users: db, Store: db}

	if err := b.Block(ctx, u["alice"], u["alice"]); !errors.Is(err, domain.ErrInvalid) {
		t.Errorf("self block: got %v", err)
	}
	if err := b.Block(ctx, u["alice"], u["bob"]); err != nil {
		t.Fatal(err)
	}
	if blocked, _ := b.IsBlocked(ctx, u["bob"], u["alice"]); !blocked {
		t.Error("block should apply in both directions")
	}
	list, _ := b.Blocked(ctx, u["alice"])
	if len(list) != 1 || list[0].ID != u["bob"] {
		t.Errorf("blocked list %v", list)
	}
}

func TestGroups_MembershipAndInvitations(t *testing.T) {
	ctx := context.Background()
	db, u := setup(t)
	now := time.Now()
	g := &Groups{Users: db, Store: db, Uploader: &coretest.Uploader{}, Notifier: &coretest.Notifier{}, Now: func() time.Time { return now }}

	grp, err := g.Create(ctx, u["alice"], "Hikers", "weekend trips", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Create(ctx, u["alice"], "  ", "", ""); !errors.Is(err, domain.ErrInvalid) {
		t.Errorf("empty name: got %v", err)
	}

	if _, err := g.AddMember(ctx, u["bob"], grp.ID, u["carol"]); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("non-admin add: got %v", err)
	}
	if _, err := g.AddMember(ctx, u["alice"], grp.ID, u["bob"]); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddMember(ctx, u["alice"], grp.ID, u["bob"]); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate member: got %v", err)
	}

	inv, err := g.Invite(ctx, u["bob"], grp.ID, u["carol"])
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Invite(ctx, u["alice"], grp.ID, u["carol"]); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("second invitation: got %v", err)
	}
	if _, err := g.AcceptInvitation(ctx, u["bob"], inv.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("accept by someone else: got %v", err)
	}
	joined, err := g.AcceptInvitation(ctx, u["carol"], inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !joined.IsMember(u["carol"]) {
		t.Error("carol should be a member")
	}
	if err := g.RejectInvitation(ctx, u["carol"], inv.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("reject after accept: got %v", err)
	}

	if ok, _ := g.CanJoin(ctx, u["carol"], grp.ID.Room()); !ok {
		t.Error("member should be allowed into the room")
	}
	if err := g.Leave(ctx, u["alice"], grp.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("admin leave: got %v", err)
	}
	if err := g.Leave(ctx, u["carol"], grp.ID); err != nil {
		t.Fatal(err)
	}
	if ok, _ := g.CanJoin(ctx, u["carol"], grp.ID.Room()); ok {
		t.Error("former member should be refused")
	}
	if ok, err := g.CanJoin(ctx, u["carol"], "missing"); ok || err != nil {
		t.Errorf("unknown room: %v %v", ok, err)
	}

	if err := g.Delete(ctx, u["bob"], grp.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("non-admin delete: got %v", err)
	}
	if err := g.Delete(ctx, u["alice"], grp.ID); err != nil {
		t.Fatal(err)
	}
}

func TestGroups_LeaveAndDeleteRevokeRoom(t *testing.T) {
	ctx := context.Background()
	db, u := setup(t)
	rooms := &coretest.Notifier{}
	g := &Groups{Users: db, Store: db, Notifier: rooms, Rooms: rooms}

	grp, err := g.Create(ctx, u["alice"], "Crew", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddMember(ctx, u["alice"], grp.ID, u["bob"]); err != nil {
		t.Fatal(err)
	}
	if err := g.Leave(ctx, u["alice"], grp.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("admin leave: got %v", err)
	}
	if n := len(rooms.Evicted()); n != 0 {
		t.Fatalf("failed leave evicted %d", n)
	}
	if err := g.Leave(ctx, u["bob"], grp.ID); err != nil {
		t.Fatal(err)
	}
	if err := g.Delete(ctx, u["alice"], grp.ID); err != nil {
		t.Fatal(err)
	}

	got := rooms.Evicted()
	if len(got) != 2 {
		t.Fatalf("evictions = %+v", got)
	}
	if got[0].User != u["bob"] || got[0].Room != grp.ID.Room() {
		t.Errorf("leave eviction = %+v", got[0])
	}
	if got[1].User != "" || got[1].Room != grp.ID.Room() {
		t.Errorf("delete should close the room, got %+v", got[1])
	}
}

func TestGroups_InvitationExpires(t *testing.T) {
	ctx := context.Background()
	db, u := setup(t)
	now := time.Now()
	g := &Groups{Users: db, Store: db, Notifier: &coretest.Notifier{}, Now: func() time.Time { return now }}

	grp, err := g.Create(ctx, u["alice"], "Late", "", "")
	if err != nil {
		t.Fatal(err)
	}
	inv, err := g.Invite(ctx, u["alice"], grp.ID, u["bob"])
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(domain.InvitationTTL + time.Minute)
	if _, err := g.AcceptInvitation(ctx, u["bob"], inv.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expired invitation: got %v", err)
	}
	if list, _ := g.Invitations(ctx, u["bob"]); len(list) != 0 {
		t.Errorf("expired invitation still listed: %v", list)
	}
}
