package pg

import (
	"context"
	"database/sql"
	"errors"

	"quoteguard.org/internal/auth"
)

// IssuerStore persists issuer accounts in the issuers table.
type IssuerStore struct {
	db *sql.DB
}

var _ auth.IssuerStore = (*IssuerStore)(nil)

func NewIssuerStore(db *sql.DB) *IssuerStore {
	return &IssuerStore{db: db}
}

func (s *IssuerStore) Create(ctx context.Context, iss *auth.Issuer) error {
	if s.db == nil {
		return errNoDB
	}
	err := s.db.QueryRowContext(ctx, `
		insert into issuers (id, email, name, password_hash, created_at)
		values ($1, $2, $3, $4, $5)
		returning created_at
	`, iss.ID, iss.Email, iss.Name, iss.PasswordHash, iss.CreatedAt).Scan(&iss.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrAlreadyExists
		}
		return err
	}
	iss.CreatedAt = iss.CreatedAt.UTC()
	return nil
}

func (s *IssuerStore) Find(ctx context.Context, id string) (*auth.Issuer, error) {
	return s.findOne(ctx, `
		select id, email, name, password_hash, created_at
		from issuers where id = $1
	`, id)
}

func (s *IssuerStore) FindByEmail(ctx context.Context, email string) (*auth.Issuer, error) {
	return s.findOne(ctx, `
		select id, email, name, password_hash, created_at
		from issuers where email = $1
	`, email)
}

func (s *IssuerStore) findOne(ctx context.Context, query, arg string) (*auth.Issuer, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var iss auth.Issuer
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&iss.ID, &iss.Email, &iss.Name, &iss.PasswordHash, &iss.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	iss.CreatedAt = iss.CreatedAt.UTC()
	return &iss, nil
}
