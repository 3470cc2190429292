package domain

import (
	"time"

	"github.com/google/uuid"
)

type InvitationID string

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

// Invitation asks a user to become a member of a group.
// Only pending, unexpired invitations can change status.
type Invitation struct {
	ID        InvitationID     `json:"_id"`
	GroupID   GroupID          `json:"groupId"`
	UserID    UserID           `json:"userId"`
	SenderID  UserID           `json:"senderId"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

func NewInvitation(group GroupID, to, from UserID, now time.Time) *Invitation {
	return &Invitation{
		ID:        InvitationID(uuid.NewString()),
		GroupID:   group,
		UserID:    to,
		SenderID:  from,
		Status:    InvitationPending,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(InvitationTTL).UTC(),
	}
}

func (i *Invitation) Open(now time.Time) bool {
	return i.Status == InvitationPending && now.Before(i.ExpiresAt)
}
