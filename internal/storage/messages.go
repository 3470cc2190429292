package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
)

const messageColumns = `id, sender_id, receiver_id, group_id, text, image, created_at`

func scanMessage(s rowScanner) (domain.Message, error) {
	var (
		m                           domain.Message
		id, sender, receiver, group string
		ms                          int64
	)
	if err := s.Scan(&id, &sender, &receiver, &group, &m.Text, &m.Image, &ms); err != nil {
		return m, err
	}
	m.ID = domain.MessageID(id)
	m.SenderID = domain.UserID(sender)
	m.ReceiverID = domain.UserID(receiver)
	m.GroupID = domain.GroupID(group)
	m.CreatedAt = fromMillis(ms)
	return m, nil
}

func (d *DB) CreateMessage(ctx context.Context, m *domain.Message) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), string(m.SenderID), string(m.ReceiverID), string(m.GroupID), m.Text, m.Image, toMillis(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (d *DB) MessageByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, string(id))
	m, err := scanMessage(row)
	if notFound(err) {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &m, nil
}

// DirectMessages returns the conversation between a and b, oldest first.
func (d *DB) DirectMessages(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE group_id = '' AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		 ORDER BY created_at, id`,
		string(a), string(b), string(b), string(a))
	if err != nil {
		return nil, fmt.Errorf("direct messages: %w", err)
	}
	return collectMessages(rows)
}

func (d *DB) GroupMessages(ctx context.Context, g domain.GroupID) ([]domain.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE group_id = ? ORDER BY created_at, id`, string(g))
	if err != nil {
		return nil, fmt.Errorf("group messages: %w", err)
	}
	return collectMessages(rows)
}

func (d *DB) DeleteMessage(ctx context.Context, id domain.MessageID) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return expectOne(res, fmt.Errorf("message %s: %w", id, domain.ErrNotFound))
}

func collectMessages(rows *sql.Rows) ([]domain.Message, error) {
	defer rows.Close()
	out := []domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
