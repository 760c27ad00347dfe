package uuid_test

import (
	"testing"

	google_uuid "github.com/google/uuid"
	"github.com/jrife/tenantkv/utils/uuid"
)

func TestMustUUID(t *testing.T) {
	seen := map[string]bool{}

	for i := 0; i < 100; i++ {
		id := uuid.MustUUID()

		parsed, err := google_uuid.Parse(id)

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if parsed.Version() != 4 {
			t.Fatalf("expected version 4, got %d", parsed.Version())
		}

		if seen[id] {
			t.Fatalf("expected %s to be unique", id)
		}

		seen[id] = true
	}
}

func TestFromContent(t *testing.T) {
	first := uuid.FromContent([]byte("blob"))

	if first != uuid.FromContent([]byte("blob")) {
		t.Fatalf("expected identical content to yield the same id")
	}

	if first == uuid.FromContent([]byte("other")) {
		t.Fatalf("expected distinct content to yield distinct ids")
	}

	parsed, err := google_uuid.Parse(first)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if parsed.Version() != 5 {
		t.Fatalf("expected version 5, got %d", parsed.Version())
	}
}
