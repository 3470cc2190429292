// Package account manages sign up, login and profile updates.
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	Store    core.UserStore
	Uploader core.MediaUploader
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

func (s *Service) cost() int {
	if s.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return s.Cost
}

func (s *Service) Signup(ctx context.Context, fullName, email, password string) (*domain.User, error) {
	if err := domain.ValidatePassword(password); err != nil {
		return nil, errors.Join(domain.ErrInvalid, err)
	}
	u, err := domain.NewUser(fullName, email)
	if err != nil {
		return nil, errors.Join(domain.ErrInvalid, err)
	}
	if _, err := s.Store.UserByEmail(ctx, u.Email); err == nil {
		return nil, fmt.Errorf("email %s already registered: %w", u.Email, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost())
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	if err := s.Store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.account").Str("user", string(u.ID)).Msg("signed up")
	return u, nil
}

// Login never tells apart an unknown email from a wrong password.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.Store.UserByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) User(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return s.Store.UserByID(ctx, id)
}

// Users lists everyone except the caller.
func (s *Service) Users(ctx context.Context, me domain.UserID) ([]domain.User, error) {
	return s.Store.ListUsers(ctx, me)
}

func (s *Service) UpdateProfilePic(ctx context.Context, id domain.UserID, inline string) (*domain.User, error) {
	if inline == "" {
		return nil, errors.Join(domain.ErrInvalid, errors.New("profile pic is required"))
	}
	if s.Uploader == nil {
		return nil, errors.Join(domain.ErrInvalid, errors.New("uploads disabled"))
	}
	url, err := s.Uploader.Upload(ctx, inline)
	if err != nil {
		return nil, errors.Join(domain.ErrInvalid, err)
	}
	if err := s.Store.UpdateProfilePic(ctx, id, url); err != nil {
		return nil, err
	}
	return s.Store.UserByID(ctx, id)
}
