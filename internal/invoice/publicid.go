package invoice

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Allocator mints public invoice identifiers: random version 4 UUIDs,
// unrelated to the storage sequence.
type Allocator struct {
	rand io.Reader
}

// NewAllocator returns an allocator reading from r, or crypto/rand when r is nil.
func NewAllocator(r io.Reader) *Allocator {
	if r == nil {
		r = rand.Reader
	}
	return &Allocator{rand: r}
}

// Allocate returns a new public identifier in canonical lowercase form.
func (a *Allocator) Allocate() (string, error) {
	id, err := uuid.NewRandomFromReader(a.rand)
	if err != nil {
		return "", fmt.Errorf("allocate public id: %w", err)
	}
	return id.String(), nil
}

// ParsePublicID normalizes a caller-supplied identifier. Only the hyphenated
// 36-character form of a version 4 UUID is accepted.
func ParsePublicID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) != 36 {
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id.Version() != 4 || id.Variant() != uuid.RFC4122 {
		return "", false
	}
	return id.String(), true
}
