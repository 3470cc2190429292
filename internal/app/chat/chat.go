// Package chat persists messages and fans them out to live connections.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// PresenceChecker reports whether a user currently holds a live connection.
type PresenceChecker interface {
	IsOnline(ctx context.Context, uid domain.UserID) (bool, error)
}

type Service struct {
	Users    core.UserStore
	Messages core.MessageStore
	Groups   core.GroupStore
	Blocks   core.BlockStore
	Uploader core.MediaUploader
	Notifier core.Notifier
	Presence PresenceChecker
}

type Input struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// Sent is returned to the sender. Delivered is false when the recipient
// was offline at send time; the message is stored either way and shows
// up on the next history fetch.
type Sent struct {
	Message   *domain.Message `json:"message"`
	Delivered bool            `json:"delivered"`
}

// SendDirect stores the message, then pushes new-message to the
// recipient's live connection only.
func (s *Service) SendDirect(ctx context.Context, from, to domain.UserID, in Input) (*Sent, error) {
	if err := domain.ValidateContent(in.Text, in.Image); err != nil {
		return nil, errors.Join(domain.ErrInvalid, err)
	}
	if from == to {
		return nil, errors.Join(domain.ErrInvalid, errors.New("cannot message yourself"))
	}
	if _, err := s.Users.UserByID(ctx, to); err != nil {
		return nil, err
	}
	blocked, err := s.Blocks.IsBlocked(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, fmt.Errorf("message %s->%s: %w", from, to, domain.ErrBlocked)
	}

	image, err := s.upload(ctx, in.Image)
	if err != nil {
		return nil, err
	}
	msg := domain.NewDirectMessage(from, to, in.Text, image)
	if err := s.Messages.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	online := s.online(ctx, to)
	s.Notifier.NotifyUser(to, domain.EventNewMessage, msg)
	log.Debug().Str("module", "app.chat").Str("from", string(from)).Str("to", string(to)).Bool("online", online).Msg("direct message")
	return &Sent{Message: msg, Delivered: online}, nil
}

// SendGroup stores the message, then broadcasts group-message to the
// group's room. Only members may post.
func (s *Service) SendGroup(ctx context.Context, from domain.UserID, gid domain.GroupID, in Input) (*Sent, error) {
	if err := domain.ValidateContent(in.Text, in.Image); err != nil {
		return nil, errors.Join(domain.ErrInvalid, err)
	}
	g, err := s.Groups.GroupByID(ctx, gid)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(from) {
		return nil, fmt.Errorf("post to %s: %w", gid, domain.ErrForbidden)
	}

	image, err := s.upload(ctx, in.Image)
	if err != nil {
		return nil, err
	}
	msg := domain.NewGroupMessage(from, gid, in.Text, image)
	if err := s.Messages.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.Notifier.NotifyRoom(gid.Room(), domain.EventGroupMessage, domain.GroupMessagePayload{RoomID: gid.Room(), Message: msg})
	log.Debug().Str("module", "app.chat").Str("from", string(from)).Str("group", string(gid)).Msg("group message")
	return &Sent{Message: msg, Delivered: true}, nil
}

func (s *Service) DirectHistory(ctx context.Context, me, other domain.UserID) ([]domain.Message, error) {
	return s.Messages.DirectMessages(ctx, me, other)
}

func (s *Service) GroupHistory(ctx context.Context, me domain.UserID, gid domain.GroupID) ([]domain.Message, error) {
	g, err := s.Groups.GroupByID(ctx, gid)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(me) {
		return nil, fmt.Errorf("read %s: %w", gid, domain.ErrForbidden)
	}
	return s.Messages.GroupMessages(ctx, gid)
}

// Delete removes a message; only its sender may do so.
func (s *Service) Delete(ctx context.Context, me domain.UserID, id domain.MessageID) error {
	m, err := s.Messages.MessageByID(ctx, id)
	if err != nil {
		return err
	}
	if m.SenderID != me {
		return fmt.Errorf("delete %s: %w", id, domain.ErrForbidden)
	}
	return s.Messages.DeleteMessage(ctx, id)
}

func (s *Service) upload(ctx context.Context, inline string) (string, error) {
	if inline == "" {
		return "", nil
	}
	if s.Uploader == nil {
		return "", errors.Join(domain.ErrInvalid, errors.New("uploads disabled"))
	}
	url, err := s.Uploader.Upload(ctx, inline)
	if err != nil {
		return "", errors.Join(domain.ErrInvalid, err)
	}
	return url, nil
}

// online only feeds Sent.Delivered; the push itself is dropped by the hub
// when the user is offline.
func (s *Service) online(ctx context.Context, uid domain.UserID) bool {
	if s.Presence == nil {
		return false
	}
	ok, err := s.Presence.IsOnline(ctx, uid)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.chat").Str("user", string(uid)).Msg("presence check")
		return false
	}
	return ok
}
