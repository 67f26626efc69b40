package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"gatepass.org/internal/ids"
)

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrUnauthorized  = errors.New("auth: unauthorized")
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is an operator account: an event admin or door staff member.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserStore persists operator accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// InMemoryUsers implements UserStore for tests and single-node runs.
type InMemoryUsers struct {
	mu     sync.RWMutex
	byID   map[string]*User
	byName map[string]*User
}

func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{
		byID:   make(map[string]*User),
		byName: make(map[string]*User),
	}
}

func (s *InMemoryUsers) Create(_ context.Context, u *User) error {
	username := strings.TrimSpace(strings.ToLower(u.Username))
	if username == "" {
		return errors.New("auth: username is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Username = username
	cp := *u
	s.byID[u.ID] = &cp
	s.byName[username] = &cp
	return nil
}

func (s *InMemoryUsers) Find(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryUsers) FindByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byName[strings.TrimSpace(strings.ToLower(username))]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}
