package invoice

import (
	"bytes"
	"strings"
	"testing"
)

func TestAllocatorProducesDistinctV4IDs(t *testing.T) {
	a := NewAllocator(nil)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id, err := a.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := ParsePublicID(id); !ok {
			t.Fatalf("allocated id %q does not parse", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestAllocatorUsesInjectedReader(t *testing.T) {
	a := NewAllocator(bytes.NewReader(make([]byte, 16)))
	id, err := a.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if id != "00000000-0000-4000-8000-000000000000" {
		t.Fatalf("unexpected id %q", id)
	}
	if _, err := a.Allocate(); err == nil {
		t.Fatalf("expected error once the reader is exhausted")
	}
}

func TestParsePublicID(t *testing.T) {
	const id = "0b6f4a9c-3c1e-4d2b-9f7a-5e8d1c2b3a4f"
	if got, ok := ParsePublicID("  " + strings.ToUpper(id) + "\n"); !ok || got != id {
		t.Fatalf("expected normalized %q, got %q ok=%v", id, got, ok)
	}
	for _, raw := range []string{
		"",
		"42",
		"not-a-uuid",
		"urn:uuid:" + id,
		"{" + id + "}",
		strings.ReplaceAll(id, "-", ""),
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8", // version 1
		"0b6f4a9c-3c1e-4d2b-9f7a-5e8d1c2b3a4g",
	} {
		if got, ok := ParsePublicID(raw); ok {
			t.Fatalf("expected %q to be rejected, got %q", raw, got)
		}
	}
}
