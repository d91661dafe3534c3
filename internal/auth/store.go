package auth

import (
	"context"
	"sync"
)

// IssuerStore persists issuer accounts.
type IssuerStore interface {
	Create(ctx context.Context, iss *Issuer) error
	Find(ctx context.Context, id string) (*Issuer, error)
	FindByEmail(ctx context.Context, email string) (*Issuer, error)
}

// MemoryIssuerStore implements IssuerStore in process memory.
type MemoryIssuerStore struct {
	mu      sync.RWMutex
	byID    map[string]Issuer
	byEmail map[string]string
}

var _ IssuerStore = (*MemoryIssuerStore)(nil)

// NewMemoryIssuerStore returns an empty store.
func NewMemoryIssuerStore() *MemoryIssuerStore {
	return &MemoryIssuerStore{
		byID:    make(map[string]Issuer),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryIssuerStore) Create(ctx context.Context, iss *Issuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[iss.Email]; ok {
		return ErrAlreadyExists
	}
	if _, ok := s.byID[iss.ID]; ok {
		return ErrAlreadyExists
	}
	s.byID[iss.ID] = *iss
	s.byEmail[iss.Email] = iss.ID
	return nil
}

func (s *MemoryIssuerStore) Find(ctx context.Context, id string) (*Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iss, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &iss, nil
}

func (s *MemoryIssuerStore) FindByEmail(ctx context.Context, email string) (*Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	iss := s.byID[id]
	return &iss, nil
}
