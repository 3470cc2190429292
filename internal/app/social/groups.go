package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type Groups struct {
	Users    core.UserStore
	Store    core.GroupStore
	Uploader core.MediaUploader
	Notifier core.Notifier
	Rooms    core.RoomControl
	Now      func() time.Time
}

func (g *Groups) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// Create makes admin the first member. avatar may be an inline image;
// empty keeps the generated default.
func (g *Groups) Create(ctx context.Context, admin domain.UserID, name, description, avatar string) (*domain.Group, error) {
	grp, err := domain.NewGroup(name, description, admin)
	if err != nil {
		return nil, errors.Join(domain.ErrInvalid, err)
	}
	if avatar != "" {
		url, err := g.upload(ctx, avatar)
		if err != nil {
			return nil, err
		}
		grp.Avatar = url
	}
	if err := g.Store.CreateGroup(ctx, grp); err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.social").Str("group", string(grp.ID)).Str("admin", string(admin)).Msg("group created")
	return grp, nil
}

func (g *Groups) List(ctx context.Context, me domain.UserID) ([]domain.Group, error) {
	return g.Store.GroupsOf(ctx, me)
}

func (g *Groups) adminOf(ctx context.Context, me domain.UserID, gid domain.GroupID) (*domain.Group, error) {
	grp, err := g.Store.GroupByID(ctx, gid)
	if err != nil {
		return nil, err
	}
	if grp.Admin != me {
		return nil, fmt.Errorf("only admin may manage %s: %w", gid, domain.ErrForbidden)
	}
	return grp, nil
}

func (g *Groups) AddMember(ctx context.Context, admin domain.UserID, gid domain.GroupID, uid domain.UserID) (*domain.Group, error) {
	grp, err := g.adminOf(ctx, admin, gid)
	if err != nil {
		return nil, err
	}
	if _, err := g.Users.UserByID(ctx, uid); err != nil {
		return nil, err
	}
	if grp.IsMember(uid) {
		return nil, fmt.Errorf("%s already in %s: %w", uid, gid, domain.ErrConflict)
	}
	if err := g.Store.AddMember(ctx, gid, uid); err != nil {
		return nil, err
	}
	return g.Store.GroupByID(ctx, gid)
}

// Invite lets any member invite a non-member. One open invitation per
// user and group.
func (g *Groups) Invite(ctx context.Context, sender domain.UserID, gid domain.GroupID, uid domain.UserID) (*domain.Invitation, error) {
	grp, err := g.Store.GroupByID(ctx, gid)
	if err != nil {
		return nil, err
	}
	if !grp.IsMember(sender) {
		return nil, fmt.Errorf("invite to %s: %w", gid, domain.ErrForbidden)
	}
	if _, err := g.Users.UserByID(ctx, uid); err != nil {
		return nil, err
	}
	if grp.IsMember(uid) {
		return nil, fmt.Errorf("%s already in %s: %w", uid, gid, domain.ErrConflict)
	}
	now := g.now()
	if _, err := g.Store.PendingInvitation(ctx, gid, uid, now); err == nil {
		return nil, fmt.Errorf("invitation already pending: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	inv := domain.NewInvitation(gid, uid, sender, now)
	if err := g.Store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	g.Notifier.NotifyUser(uid, domain.EventGroupInvitation, inv)
	return inv, nil
}

func (g *Groups) Invitations(ctx context.Context, me domain.UserID) ([]domain.Invitation, error) {
	return g.Store.OpenInvitations(ctx, me, g.now())
}

func (g *Groups) AcceptInvitation(ctx context.Context, me domain.UserID, id domain.InvitationID) (*domain.Group, error) {
	inv, err := g.openInvitation(ctx, me, id)
	if err != nil {
		return nil, err
	}
	if err := g.Store.AddMember(ctx, inv.GroupID, me); err != nil && !errors.Is(err, domain.ErrConflict) {
		return nil, err
	}
	if err := g.Store.SetInvitationStatus(ctx, id, domain.InvitationAccepted); err != nil {
		return nil, err
	}
	return g.Store.GroupByID(ctx, inv.GroupID)
}

func (g *Groups) RejectInvitation(ctx context.Context, me domain.UserID, id domain.InvitationID) error {
	if _, err := g.openInvitation(ctx, me, id); err != nil {
		return err
	}
	return g.Store.SetInvitationStatus(ctx, id, domain.InvitationRejected)
}

func (g *Groups) openInvitation(ctx context.Context, me domain.UserID, id domain.InvitationID) (*domain.Invitation, error) {
	inv, err := g.Store.InvitationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.UserID != me {
		return nil, fmt.Errorf("invitation %s: %w", id, domain.ErrForbidden)
	}
	if !inv.Open(g.now()) {
		return nil, fmt.Errorf("invitation %s is %s or expired: %w", id, inv.Status, domain.ErrConflict)
	}
	return inv, nil
}

// Leave removes a member. The admin has to delete the group instead.
func (g *Groups) Leave(ctx context.Context, me domain.UserID, gid domain.GroupID) error {
	grp, err := g.Store.GroupByID(ctx, gid)
	if err != nil {
		return err
	}
	if grp.Admin == me {
		return fmt.Errorf("admin cannot leave %s: %w", gid, domain.ErrConflict)
	}
	if err := g.Store.RemoveMember(ctx, gid, me); err != nil {
		return err
	}
	if g.Rooms != nil {
		g.Rooms.EvictFromRoom(me, gid.Room())
	}
	return nil
}

// Delete removes the group and empties its realtime room.
func (g *Groups) Delete(ctx context.Context, me domain.UserID, gid domain.GroupID) error {
	if _, err := g.adminOf(ctx, me, gid); err != nil {
		return err
	}
	if err := g.Store.DeleteGroup(ctx, gid); err != nil {
		return err
	}
	if g.Rooms != nil {
		g.Rooms.CloseRoom(gid.Room())
	}
	log.Info().Str("module", "app.social").Str("group", string(gid)).Msg("group deleted")
	return nil
}

func (g *Groups) UpdateAvatar(ctx context.Context, me domain.UserID, gid domain.GroupID, inline string) (*domain.Group, error) {
	if _, err := g.adminOf(ctx, me, gid); err != nil {
		return nil, err
	}
	url, err := g.upload(ctx, inline)
	if err != nil {
		return nil, err
	}
	if err := g.Store.UpdateGroupAvatar(ctx, gid, url); err != nil {
		return nil, err
	}
	return g.Store.GroupByID(ctx, gid)
}

// CanJoin allows only members into a group's realtime room.
func (g *Groups) CanJoin(ctx context.Context, user domain.UserID, room domain.RoomID) (bool, error) {
	grp, err := g.Store.GroupByID(ctx, domain.GroupID(room))
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return grp.IsMember(user), nil
}

func (g *Groups) upload(ctx context.Context, inline string) (string, error) {
	if inline == "" {
		return "", errors.Join(domain.ErrInvalid, errors.New("image is required"))
	}
	if g.Uploader == nil {
		return "", errors.Join(domain.ErrInvalid, errors.New("uploads disabled"))
	}
	url, err := g.Uploader.Upload(ctx, inline)
	if err != nil {
		return "", errors.Join(domain.ErrInvalid, err)
	}
	return url, nil
}
