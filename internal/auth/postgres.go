package auth

import (
	"context"
	"database/sql"
	"strings"

	"gatepass.org/internal/ids"
)

var _ UserStore = (*PGUsers)(nil)

// PGUsers implements UserStore using PostgreSQL.
type PGUsers struct {
	db *sql.DB
}

func NewPGUsers(db *sql.DB) *PGUsers {
	return &PGUsers{db: db}
}

func (s *PGUsers) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, username, full_name, role, password_hash, status)
		 values($1,$2,$3,$4,$5,$6)`,
		u.ID, strings.ToLower(u.Username), u.FullName, u.Role, u.PasswordHash, u.Status,
	)
	return err
}

func (s *PGUsers) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, full_name, role, password_hash, status, created_at
		 from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGUsers) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, full_name, role, password_hash, status, created_at
		 from users where username=$1`, strings.ToLower(strings.TrimSpace(username)))
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.PasswordHash, &u.Status, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
