package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxMessageTextLen = 4096

var (
	ErrMessageEmpty   = errors.New("message must have text or image")
	ErrMessageTooLong = errors.New("message too long")
)

type MessageID string

// Message is either direct (ReceiverID set) or group (GroupID set).
type Message struct {
	ID         MessageID `json:"_id"`
	SenderID   UserID    `json:"senderId"`
	ReceiverID UserID    `json:"receiverId,omitempty"`
	GroupID    GroupID   `json:"groupId,omitempty"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ValidateContent checks the user supplied part of a message before any
// upload or persistence happens.
func ValidateContent(text, image string) error {
	if strings.TrimSpace(text) == "" && image == "" {
		return ErrMessageEmpty
	}
	if len(text) > MaxMessageTextLen {
		return ErrMessageTooLong
	}
	return nil
}

func NewDirectMessage(from, to UserID, text, image string) *Message {
	return &Message{
		ID:         MessageID(uuid.NewString()),
		SenderID:   from,
		ReceiverID: to,
		Text:       text,
		Image:      image,
		CreatedAt:  time.Now().UTC(),
	}
}

func NewGroupMessage(from UserID, group GroupID, text, image string) *Message {
	return &Message{
		ID:        MessageID(uuid.NewString()),
		SenderID:  from,
		GroupID:   group,
		Text:      text,
		Image:     image,
		CreatedAt: time.Now().UTC(),
	}
}
