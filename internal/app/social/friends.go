// Package social holds the friend graph, block list and group services.
package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// FriendRequestPayload is pushed to the receiver of a friend request.
type FriendRequestPayload struct {
	From   domain.UserID   `json:"from"`
	Sender domain.UserInfo `json:"sender"`
}

type Friends struct {
	Users    core.UserStore
	Store    core.FriendStore
	Notifier core.Notifier
}

func (f *Friends) SendRequest(ctx context.Context, from, to domain.UserID) error {
	if from == to {
		return errors.Join(domain.ErrInvalid, errors.New("cannot befriend yourself"))
	}
	sender, err := f.Users.UserByID(ctx, from)
	if err != nil {
		return err
	}
	if _, err := f.Users.UserByID(ctx, to); err != nil {
		return err
	}
	friends, err := f.Store.AreFriends(ctx, from, to)
	if err != nil {
		return err
	}
	if friends {
		return fmt.Errorf("already friends: %w", domain.ErrConflict)
	}
	if err := f.Store.CreateFriendRequest(ctx, from, to); err != nil {
		return err
	}
	f.Notifier.NotifyUser(to, domain.EventFriendRequest, FriendRequestPayload{From: from, Sender: sender.Info()})
	log.Info().Str("module", "app.social").Str("from", string(from)).Str("to", string(to)).Msg("friend request sent")
	return nil
}

// AcceptRequest accepts the pending request from -> me.
func (f *Friends) AcceptRequest(ctx context.Context, me, from domain.UserID) error {
	if err := f.Store.AcceptFriendRequest(ctx, from, me); err != nil {
		return err
	}
	f.Notifier.NotifyUser(from, domain.EventFriendRequestAccepted, map[string]domain.UserID{"from": me})
	log.Info().Str("module", "app.social").Str("from", string(from)).Str("to", string(me)).Msg("friend request accepted")
	return nil
}

func (f *Friends) DeclineRequest(ctx context.Context, me, from domain.UserID) error {
	return f.Store.DeleteFriendRequest(ctx, from, me)
}

func (f *Friends) Remove(ctx context.Context, me, friend domain.UserID) error {
	return f.Store.RemoveFriend(ctx, me, friend)
}

func (f *Friends) List(ctx context.Context, me domain.UserID) ([]domain.User, error) {
	ids, err := f.Store.Friends(ctx, me)
	if err != nil {
		return nil, err
	}
	return f.Users.UsersByIDs(ctx, ids)
}
