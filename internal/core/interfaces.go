package core

import (
	"context"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// UserStore persists accounts. Lookups return domain.ErrNotFound when the
// record is absent.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	UserByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, except domain.UserID) ([]domain.User, error)
	UsersByIDs(ctx context.Context, ids []domain.UserID) ([]domain.User, error)
	UpdateProfilePic(ctx context.Context, id domain.UserID, url string) error
}

type MessageStore interface {
	CreateMessage(ctx context.Context, m *domain.Message) error
	MessageByID(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	DirectMessages(ctx context.Context, a, b domain.UserID) ([]domain.Message, error)
	GroupMessages(ctx context.Context, g domain.GroupID) ([]domain.Message, error)
	DeleteMessage(ctx context.Context, id domain.MessageID) error
}

// BlockStore keeps directed block relationships.
type BlockStore interface {
	Block(ctx context.Context, blocker, blocked domain.UserID) error
	Unblock(ctx context.Context, blocker, blocked domain.UserID) error
	BlockedBy(ctx context.Context, blocker domain.UserID) ([]domain.UserID, error)
	// IsBlocked reports whether either user blocked the other.
	IsBlocked(ctx context.Context, a, b domain.UserID) (bool, error)
}

type FriendStore interface {
	CreateFriendRequest(ctx context.Context, from, to domain.UserID) error
	HasFriendRequest(ctx context.Context, from, to domain.UserID) (bool, error)
	DeleteFriendRequest(ctx context.Context, from, to domain.UserID) error
	// AcceptFriendRequest removes the pending request and stores the
	// friendship atomically.
	AcceptFriendRequest(ctx context.Context, from, to domain.UserID) error
	AreFriends(ctx context.Context, a, b domain.UserID) (bool, error)
	RemoveFriend(ctx context.Context, a, b domain.UserID) error
	Friends(ctx context.Context, id domain.UserID) ([]domain.UserID, error)
}

type GroupStore interface {
	CreateGroup(ctx context.Context, g *domain.Group) error
	GroupByID(ctx context.Context, id domain.GroupID) (*domain.Group, error)
	GroupsOf(ctx context.Context, member domain.UserID) ([]domain.Group, error)
	AddMember(ctx context.Context, g domain.GroupID, u domain.UserID) error
	RemoveMember(ctx context.Context, g domain.GroupID, u domain.UserID) error
	UpdateGroupAvatar(ctx context.Context, g domain.GroupID, url string) error
	DeleteGroup(ctx context.Context, g domain.GroupID) error

	CreateInvitation(ctx context.Context, inv *domain.Invitation) error
	InvitationByID(ctx context.Context, id domain.InvitationID) (*domain.Invitation, error)
	PendingInvitation(ctx context.Context, g domain.GroupID, u domain.UserID, now time.Time) (*domain.Invitation, error)
	OpenInvitations(ctx context.Context, u domain.UserID, now time.Time) ([]domain.Invitation, error)
	SetInvitationStatus(ctx context.Context, id domain.InvitationID, st domain.InvitationStatus) error
}

// MediaUploader turns an inline image (data URL or raw base64) into a
// durable URL.
type MediaUploader interface {
	Upload(ctx context.Context, inline string) (string, error)
}

// Notifier pushes realtime events to live connections. Delivery is
// best-effort; an offline target is not an error.
type Notifier interface {
	NotifyUser(to domain.UserID, event string, payload any)
	NotifyRoom(room domain.RoomID, event string, payload any)
}

// RoomControl keeps live room membership in step with stored group
// membership.
type RoomControl interface {
	EvictFromRoom(user domain.UserID, room domain.RoomID)
	CloseRoom(room domain.RoomID)
}
