package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// Block is idempotent.
func (d *DB) Block(ctx context.Context, blocker, blocked domain.UserID) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blocks (blocker_id, blocked_id, created_at) VALUES (?, ?, ?)`,
		string(blocker), string(blocked), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("block: %w", err)
	}
	return nil
}

func (d *DB) Unblock(ctx context.Context, blocker, blocked domain.UserID) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM blocks WHERE blocker_id = ? AND blocked_id = ?`, string(blocker), string(blocked))
	if err != nil {
		return fmt.Errorf("unblock: %w", err)
	}
	return nil
}

func (d *DB) BlockedBy(ctx context.Context, blocker domain.UserID) ([]domain.UserID, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT blocked_id FROM blocks WHERE blocker_id = ? ORDER BY created_at, blocked_id`, string(blocker))
	if err != nil {
		return nil, fmt.Errorf("blocked list: %w", err)
	}
	return collectIDs(rows)
}

func (d *DB) IsBlocked(ctx context.Context, a, b domain.UserID) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blocks WHERE (blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)`,
		string(a), string(b), string(b), string(a)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is blocked: %w", err)
	}
	return n > 0, nil
}

func (d *DB) CreateFriendRequest(ctx context.Context, from, to domain.UserID) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO friend_requests (from_id, to_id, created_at) VALUES (?, ?, ?)`,
		string(from), string(to), toMillis(time.Now()))
	if isUniqueViolation(err) {
		return fmt.Errorf("friend request %s->%s: %w", from, to, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create friend request: %w", err)
	}
	return nil
}

func (d *DB) HasFriendRequest(ctx context.Context, from, to domain.UserID) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friend_requests WHERE from_id = ? AND to_id = ?`, string(from), string(to)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has friend request: %w", err)
	}
	return n > 0, nil
}

func (d *DB) DeleteFriendRequest(ctx context.Context, from, to domain.UserID) error {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM friend_requests WHERE from_id = ? AND to_id = ?`, string(from), string(to))
	if err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	return expectOne(res, fmt.Errorf("friend request %s->%s: %w", from, to, domain.ErrNotFound))
}

func (d *DB) AcceptFriendRequest(ctx context.Context, from, to domain.UserID) error {
	now := toMillis(time.Now())
	return d.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM friend_requests WHERE from_id = ? AND to_id = ?`, string(from), string(to))
		if err != nil {
			return fmt.Errorf("accept friend request: %w", err)
		}
		if err := expectOne(res, fmt.Errorf("friend request %s->%s: %w", from, to, domain.ErrNotFound)); err != nil {
			return err
		}
		// a crossed request in the other direction is settled too
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM friend_requests WHERE from_id = ? AND to_id = ?`, string(to), string(from)); err != nil {
			return fmt.Errorf("accept friend request: %w", err)
		}
		for _, pair := range [][2]domain.UserID{{from, to}, {to, from}} {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO friends (user_id, friend_id, created_at) VALUES (?, ?, ?)`,
				string(pair[0]), string(pair[1]), now); err != nil {
				return fmt.Errorf("store friendship: %w", err)
			}
		}
		return nil
	})
}

func (d *DB) AreFriends(ctx context.Context, a, b domain.UserID) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friends WHERE user_id = ? AND friend_id = ?`, string(a), string(b)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("are friends: %w", err)
	}
	return n > 0, nil
}

func (d *DB) RemoveFriend(ctx context.Context, a, b domain.UserID) error {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM friends WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`,
		string(a), string(b), string(b), string(a))
	if err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	return expectOne(res, fmt.Errorf("friendship %s/%s: %w", a, b, domain.ErrNotFound))
}

func (d *DB) Friends(ctx context.Context, id domain.UserID) ([]domain.UserID, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT friend_id FROM friends WHERE user_id = ? ORDER BY created_at, friend_id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("friends: %w", err)
	}
	return collectIDs(rows)
}

func collectIDs(rows *sql.Rows) ([]domain.UserID, error) {
	defer rows.Close()
	out := []domain.UserID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, domain.UserID(id))
	}
	return out, rows.Err()
}
