package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dkeye/Huddle/internal/domain"
)

const userColumns = `id, full_name, email, password_hash, profile_pic, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (domain.User, error) {
	var (
		u  domain.User
		id string
		ms int64
	)
	if err := s.Scan(&id, &u.FullName, &u.Email, &u.PasswordHash, &u.ProfilePic, &ms); err != nil {
		return u, err
	}
	u.ID = domain.UserID(id)
	u.CreatedAt = fromMillis(ms)
	return u, nil
}

func (d *DB) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		string(u.ID), u.FullName, u.Email, u.PasswordHash, u.ProfilePic, toMillis(u.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user %s: email taken: %w", u.Email, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (d *DB) UserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, string(id))
	u, err := scanUser(row)
	if notFound(err) {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (d *DB) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
	u, err := scanUser(row)
	if notFound(err) {
		return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// ListUsers returns every user except the given one, by name.
func (d *DB) ListUsers(ctx context.Context, except domain.UserID) ([]domain.User, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id <> ? ORDER BY full_name, id`, string(except))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return collectUsers(rows)
}

func (d *DB) UsersByIDs(ctx context.Context, ids []domain.UserID) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	q := `SELECT ` + userColumns + ` FROM users WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `) ORDER BY full_name, id`
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("users by ids: %w", err)
	}
	return collectUsers(rows)
}

func (d *DB) UpdateProfilePic(ctx context.Context, id domain.UserID, url string) error {
	res, err := d.db.ExecContext(ctx, `UPDATE users SET profile_pic = ? WHERE id = ?`, url, string(id))
	if err != nil {
		return fmt.Errorf("update profile pic: %w", err)
	}
	return expectOne(res, fmt.Errorf("user %s: %w", id, domain.ErrNotFound))
}

func collectUsers(rows *sql.Rows) ([]domain.User, error) {
	defer rows.Close()
	out := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
