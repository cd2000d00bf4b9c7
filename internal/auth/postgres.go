package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// PGStore implements UserStore on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ UserStore = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, u *User) error {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" || u.ID == "" {
		return ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		insert into users(id, email, full_name, role, password_hash, created_at)
		values ($1,$2,$3,$4,$5,$6)
		on conflict (email) do nothing
	`, u.ID, email, u.FullName, string(u.Role), u.PasswordHash, u.CreatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PGStore) Find(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, email, full_name, role, password_hash, created_at
		from users where id=$1
	`, id))
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, email, full_name, role, password_hash, created_at
		from users where email=$1
	`, email))
}

func (s *PGStore) scanOne(row *sql.Row) (*User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}
