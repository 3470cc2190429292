// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxFullNameLen    = 64
	MaxEmailLen       = 254
	MinPasswordLen    = 6
	MaxPasswordLen    = 72
	DefaultProfilePic = ""
)

var (
	ErrFullNameEmpty    = errors.New("full name empty")
	ErrFullNameTooLong  = errors.New("full name too long")
	ErrEmailInvalid     = errors.New("invalid email")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrPasswordTooLong  = errors.New("password too long")
)

type UserID string

type User struct {
	ID           UserID    `json:"_id"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	ProfilePic   string    `json:"profilePic"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserInfo is the public view of a user carried inside realtime events.
type UserInfo struct {
	ID         UserID `json:"_id"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(fullName, email string) (*User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateFullName(fullName); err != nil {
		return nil, err
	}
	if !validEmail(email) {
		return nil, ErrEmailInvalid
	}
	return &User{
		ID:        UserID(uuid.NewString()),
		FullName:  fullName,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (u *User) SetFullName(fullName string) error {
	fullName = strings.TrimSpace(fullName)
	if err := validateFullName(fullName); err != nil {
		return err
	}
	u.FullName = fullName
	return nil
}

func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID, FullName: u.FullName, ProfilePic: u.ProfilePic}
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return ErrPasswordTooShort
	}
	// bcrypt ignores everything past 72 bytes
	if len(password) > MaxPasswordLen {
		return ErrPasswordTooLong
	}
	return nil
}

func validateFullName(fullName string) error {
	if len(fullName) == 0 {
		return ErrFullNameEmpty
	}
	if len(fullName) > MaxFullNameLen {
		return ErrFullNameTooLong
	}
	return nil
}

func validEmail(email string) bool {
	if len(email) == 0 || len(email) > MaxEmailLen {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}
