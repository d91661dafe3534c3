package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	prev := ""
	for i := 0; i < 1000; i++ {
		id := New()
		if !Valid(id) {
			t.Fatalf("invalid id %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
		if prev != "" && id <= prev {
			t.Fatalf("ids not monotonic: %q then %q", prev, id)
		}
		prev = id
	}
}

func TestNewAtEncodesTimestamp(t *testing.T) {
	early := NewAt(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	late := NewAt(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	if early >= late {
		t.Fatalf("expected %q < %q", early, late)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not-a-ulid", "01ARZ3NDEKTSV4RRFFQ69G5FA"} {
		if Valid(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}
