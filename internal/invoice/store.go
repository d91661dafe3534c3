package invoice

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists invoice records.
//
// CompareAndSetRevoked must check the current status and write the revocation
// as one atomic unit: it returns false, without writing, when the stored status
// differs from expected, and ErrNotFound when publicID is unknown.
type Store interface {
	Create(ctx context.Context, inv Invoice) (Invoice, error)
	GetByPublicID(ctx context.Context, publicID string) (Invoice, error)
	GetByInternalID(ctx context.Context, id int64) (Invoice, error)
	ListByIssuer(ctx context.Context, issuerID string, limit int, beforeID int64) ([]Invoice, error)
	CompareAndSetRevoked(ctx context.Context, publicID string, expected Status, rev Revocation) (bool, error)
	Ping(ctx context.Context) error
}

// MemoryStore implements Store with in-process concurrency safety.
type MemoryStore struct {
	mu       sync.RWMutex
	seq      int64
	byID     map[int64]*Invoice
	byPublic map[string]int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[int64]*Invoice),
		byPublic: make(map[string]int64),
	}
}

func (s *MemoryStore) Create(ctx context.Context, inv Invoice) (Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPublic[inv.PublicID]; ok {
		return Invoice{}, ErrDuplicatePublicID
	}
	s.seq++
	stored := inv.clone()
	stored.InternalID = s.seq
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.byID[stored.InternalID] = &stored
	s.byPublic[stored.PublicID] = stored.InternalID
	return stored.clone(), nil
}

func (s *MemoryStore) GetByPublicID(ctx context.Context, publicID string) (Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPublic[publicID]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return s.byID[id].clone(), nil
}

func (s *MemoryStore) GetByInternalID(ctx context.Context, id int64) (Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.byID[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv.clone(), nil
}

func (s *MemoryStore) ListByIssuer(ctx context.Context, issuerID string, limit int, beforeID int64) ([]Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Invoice
	for id, inv := range s.byID {
		if inv.IssuerID != issuerID {
			continue
		}
		if beforeID > 0 && id >= beforeID {
			continue
		}
		out := inv.clone()
		out.Content.Items = nil
		res = append(res, out)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].InternalID > res[j].InternalID })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *MemoryStore) CompareAndSetRevoked(ctx context.Context, publicID string, expected Status, rev Revocation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPublic[publicID]
	if !ok {
		return false, ErrNotFound
	}
	inv := s.byID[id]
	if inv.Status != expected {
		return false, nil
	}
	inv.Status = StatusRevoked
	inv.Revocation = &rev
	return true, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
