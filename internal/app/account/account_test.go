package account

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dkeye/Huddle/internal/core/coretest"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) *Service {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "acct.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return &Service{Store: db, Uploader: &coretest.Uploader{}, Cost: bcrypt.MinCost}
}

func TestSignupLogin(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	u, err := s.Signup(ctx, "Alice", "Alice@Example.com", "secret1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if u.PasswordHash == "secret1" || u.PasswordHash == "" {
		t.Error("password must be hashed")
	}

	if _, err := s.Signup(ctx, "Alice Two", "alice@example.com", "secret2"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate email: got %v", err)
	}
	if _, err := s.Signup(ctx, "Bob", "bob@example.com", "12345"); !errors.Is(err, domain.ErrInvalid) {
		t.Errorf("short password: got %v", err)
	}

	got, err := s.Login(ctx, "alice@example.com", "secret1")
	if err != nil || got.ID != u.ID {
		t.Fatalf("login: %v %v", got, err)
	}
	if _, err := s.Login(ctx, "alice@example.com", "wrong!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := s.Login(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v", err)
	}
}

func TestUpdateProfilePic(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	u, err := s.Signup(ctx, "Alice", "alice@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := s.UpdateProfilePic(ctx, u.ID, "data:image/png;base64,AAAA")
	if err != nil {
		t.Fatal(err)
	}
	if updated.ProfilePic != "/uploads/1.png" {
		t.Errorf("profile pic = %q", updated.ProfilePic)
	}
	if _, err := s.UpdateProfilePic(ctx, u.ID, ""); !errors.Is(err, domain.ErrInvalid) {
		t.Errorf("empty upload: got %v", err)
	}
}
