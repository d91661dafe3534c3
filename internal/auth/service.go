package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"quoteguard.org/internal/ids"
)

const maxNameLength = 200

// Service manages issuer accounts.
type Service struct {
	store IssuerStore
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service with optional configuration.
func NewService(store IssuerStore, opts ...ServiceOption) *Service {
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Register creates an issuer account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, email, name, password string) (Issuer, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Issuer{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Issuer{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return Issuer{}, fmt.Errorf("%w: name is too long", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Issuer{}, err
	}
	iss := Issuer{
		ID:           ids.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, &iss); err != nil {
		return Issuer{}, err
	}
	return iss, nil
}

// Login checks credentials. Unknown email and wrong password are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (Issuer, error) {
	email, err := normalizeEmail(email)
	if err != nil || password == "" {
		return Issuer{}, ErrUnauthorized
	}
	iss, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Issuer{}, ErrUnauthorized
		}
		return Issuer{}, err
	}
	if err := VerifyPassword(iss.PasswordHash, password); err != nil {
		return Issuer{}, ErrUnauthorized
	}
	return *iss, nil
}

// Issuer loads an account by id.
func (s *Service) Issuer(ctx context.Context, id string) (Issuer, error) {
	iss, err := s.store.Find(ctx, strings.TrimSpace(id))
	if err != nil {
		return Issuer{}, err
	}
	return *iss, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	return email, nil
}
