package social

import (
	"context"
	"errors"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type Blocks struct {
	Users core.UserStore
	Store core.BlockStore
}

func (b *Blocks) Block(ctx context.Context, me, other domain.UserID) error {
	if me == other {
		return errors.Join(domain.ErrInvalid, errors.New("cannot block yourself"))
	}
	if _, err := b.Users.UserByID(ctx, other); err != nil {
		return err
	}
	return b.Store.Block(ctx, me, other)
}

func (b *Blocks) Unblock(ctx context.Context, me, other domain.UserID) error {
	return b.Store.Unblock(ctx, me, other)
}

// Blocked lists the users me has blocked.
func (b *Blocks) Blocked(ctx context.Context, me domain.UserID) ([]domain.User, error) {
	ids, err := b.Store.BlockedBy(ctx, me)
	if err != nil {
		return nil, err
	}
	return b.Users.UsersByIDs(ctx, ids)
}

func (b *Blocks) IsBlocked(ctx context.Context, x, y domain.UserID) (bool, error) {
	return b.Store.IsBlocked(ctx, x, y)
}
