package auth

import (
	"context"
	"strings"
)

// Service authenticates operator accounts against a UserStore and
// answers actor-validity questions for the registration lifecycle.
type Service struct {
	users UserStore
}

func NewService(users UserStore) *Service {
	return &Service{users: users}
}

// Login verifies credentials and returns the matching account.
// All credential failures collapse into ErrUnauthorized so the caller
// cannot distinguish unknown users from wrong passwords.
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if user.Status != UserStatusActive {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// IsAdmin reports whether the actor identifies an active admin account.
func (s *Service) IsAdmin(ctx context.Context, actorID string) (bool, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return false, nil
	}
	user, err := s.users.Find(ctx, actorID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return user.Status == UserStatusActive && user.Role == RoleAdmin, nil
}
