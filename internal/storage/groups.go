package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

const groupColumns = `id, name, description, avatar, admin_id, created_at`

func (d *DB) CreateGroup(ctx context.Context, g *domain.Group) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			string(g.ID), g.Name, g.Description, g.Avatar, string(g.Admin), toMillis(g.CreatedAt)); err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		for _, m := range g.Members {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
				string(g.ID), string(m), toMillis(g.CreatedAt)); err != nil {
				return fmt.Errorf("add group member: %w", err)
			}
		}
		return nil
	})
}

func (d *DB) GroupByID(ctx context.Context, id domain.GroupID) (*domain.Group, error) {
	var (
		g       domain.Group
		gid, ad string
		ms      int64
	)
	err := d.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM chat_groups WHERE id = ?`, string(id)).
		Scan(&gid, &g.Name, &g.Description, &g.Avatar, &ad, &ms)
	if notFound(err) {
		return nil, fmt.Errorf("group %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	g.ID = domain.GroupID(gid)
	g.Admin = domain.UserID(ad)
	g.CreatedAt = fromMillis(ms)
	if g.Members, err = d.members(ctx, g.ID); err != nil {
		return nil, err
	}
	return &g, nil
}

func (d *DB) members(ctx context.Context, id domain.GroupID) ([]domain.UserID, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY joined_at, user_id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("group members: %w", err)
	}
	return collectIDs(rows)
}

// GroupsOf returns the groups the user is a member of, newest first.
func (d *DB) GroupsOf(ctx context.Context, member domain.UserID) ([]domain.Group, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT g.id FROM chat_groups g JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ? ORDER BY g.created_at DESC, g.id`, string(member))
	if err != nil {
		return nil, fmt.Errorf("groups of: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Group, 0, len(ids))
	for _, id := range ids {
		g, err := d.GroupByID(ctx, domain.GroupID(id))
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, nil
}

func (d *DB) AddMember(ctx context.Context, g domain.GroupID, u domain.UserID) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
		string(g), string(u), toMillis(time.Now()))
	if isUniqueViolation(err) {
		return fmt.Errorf("member %s of %s: %w", u, g, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (d *DB) RemoveMember(ctx context.Context, g domain.GroupID, u domain.UserID) error {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, string(g), string(u))
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return expectOne(res, fmt.Errorf("member %s of %s: %w", u, g, domain.ErrNotFound))
}

func (d *DB) UpdateGroupAvatar(ctx context.Context, g domain.GroupID, url string) error {
	res, err := d.db.ExecContext(ctx, `UPDATE chat_groups SET avatar = ? WHERE id = ?`, url, string(g))
	if err != nil {
		return fmt.Errorf("update group avatar: %w", err)
	}
	return expectOne(res, fmt.Errorf("group %s: %w", g, domain.ErrNotFound))
}

// DeleteGroup removes the group with its members, invitations and messages.
func (d *DB) DeleteGroup(ctx context.Context, g domain.GroupID) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM group_members WHERE group_id = ?`,
			`DELETE FROM group_invitations WHERE group_id = ?`,
			`DELETE FROM messages WHERE group_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, string(g)); err != nil {
				return fmt.Errorf("delete group: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM chat_groups WHERE id = ?`, string(g))
		if err != nil {
			return fmt.Errorf("delete group: %w", err)
		}
		return expectOne(res, fmt.Errorf("group %s: %w", g, domain.ErrNotFound))
	})
}

const invitationColumns = `id, group_id, user_id, sender_id, status, created_at, expires_at`

func scanInvitation(s rowScanner) (domain.Invitation, error) {
	var (
		inv                     domain.Invitation
		id, group, user, sender string
		status                  string
		created, expires        int64
	)
	if err := s.Scan(&id, &group, &user, &sender, &status, &created, &expires); err != nil {
		return inv, err
	}
	inv.ID = domain.InvitationID(id)
	inv.GroupID = domain.GroupID(group)
	inv.UserID = domain.UserID(user)
	inv.SenderID = domain.UserID(sender)
	inv.Status = domain.InvitationStatus(status)
	inv.CreatedAt = fromMillis(created)
	inv.ExpiresAt = fromMillis(expires)
	return inv, nil
}

func (d *DB) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO group_invitations (`+invitationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(inv.ID), string(inv.GroupID), string(inv.UserID), string(inv.SenderID),
		string(inv.Status), toMillis(inv.CreatedAt), toMillis(inv.ExpiresAt))
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

func (d *DB) InvitationByID(ctx context.Context, id domain.InvitationID) (*domain.Invitation, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM group_invitations WHERE id = ?`, string(id))
	inv, err := scanInvitation(row)
	if notFound(err) {
		return nil, fmt.Errorf("invitation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return &inv, nil
}

// PendingInvitation finds an open invitation of u to g.
func (d *DB) PendingInvitation(ctx context.Context, g domain.GroupID, u domain.UserID, now time.Time) (*domain.Invitation, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM group_invitations
		 WHERE group_id = ? AND user_id = ? AND status = ? AND expires_at > ?
		 ORDER BY created_at DESC LIMIT 1`,
		string(g), string(u), string(domain.InvitationPending), toMillis(now))
	inv, err := scanInvitation(row)
	if notFound(err) {
		return nil, fmt.Errorf("invitation of %s to %s: %w", u, g, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pending invitation: %w", err)
	}
	return &inv, nil
}

func (d *DB) OpenInvitations(ctx context.Context, u domain.UserID, now time.Time) ([]domain.Invitation, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM group_invitations
		 WHERE user_id = ? AND status = ? AND expires_at > ? ORDER BY created_at DESC`,
		string(u), string(domain.InvitationPending), toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("open invitations: %w", err)
	}
	defer rows.Close()
	out := []domain.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (d *DB) SetInvitationStatus(ctx context.Context, id domain.InvitationID, st domain.InvitationStatus) error {
	res, err := d.db.ExecContext(ctx, `UPDATE group_invitations SET status = ? WHERE id = ?`, string(st), string(id))
	if err != nil {
		return fmt.Errorf("set invitation status: %w", err)
	}
	return expectOne(res, fmt.Errorf("invitation %s: %w", id, domain.ErrNotFound))
}
