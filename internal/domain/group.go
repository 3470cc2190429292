package domain

import (
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxGroupNameLen        = 64
	MaxGroupDescriptionLen = 512
	InvitationTTL          = 24 * time.Hour
)

var (
	ErrGroupNameEmpty   = errors.New("group name empty")
	ErrGroupNameTooLong = errors.New("group name too long")
	ErrDescriptionLong  = errors.New("group description too long")
)

type GroupID string

type Group struct {
	ID          GroupID   `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Avatar      string    `json:"avatar"`
	Admin       UserID    `json:"admin"`
	Members     []UserID  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
}

func NewGroup(name, description string, admin UserID) (*Group, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return nil, ErrGroupNameEmpty
	}
	if len(name) > MaxGroupNameLen {
		return nil, ErrGroupNameTooLong
	}
	if len(description) > MaxGroupDescriptionLen {
		return nil, ErrDescriptionLong
	}
	return &Group{
		ID:          GroupID(uuid.NewString()),
		Name:        name,
		Description: description,
		Avatar:      DefaultGroupAvatar(name),
		Admin:       admin,
		Members:     []UserID{admin},
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func DefaultGroupAvatar(name string) string {
	return "https://api.dicebear.com/7.x/initials/svg?seed=" + url.QueryEscape(name)
}

func (g *Group) IsMember(id UserID) bool {
	return slices.Contains(g.Members, id)
}
