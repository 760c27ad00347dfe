// Package kvtest is a conformance suite for kv.Backend implementations
package kvtest

import (
	"bytes"
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/tenantkv/storage/kv"
	"github.com/jrife/tenantkv/storage/kv/keys"
)

// Advance moves a backend's notion of time forward
type Advance func(d time.Duration)

// Builder returns a fresh, empty backend. The advance function
// may be nil in which case expiry cases are skipped.
type Builder func(t *testing.T) (kv.Backend, Advance)

type testCase func(t *testing.T, backend kv.Backend, advance Advance)

// Run runs every conformance case against backends built by builder
func Run(t *testing.T, builder Builder) {
	for name, test := range cases() {
		t.Run(name, func(t *testing.T) {
			backend, advance := builder(t)
			defer backend.Close()

			test(t, backend, advance)
		})
	}
}

func cases() map[string]testCase {
	return map[string]testCase{
		"get-missing": func(t *testing.T, backend kv.Backend, advance Advance) {
			value, err := backend.Get(context.Background(), "missing")

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if value != nil {
				t.Fatalf("expected value to be nil, got %#v", value)
			}
		},
		"set-get": func(t *testing.T, backend kv.Backend, advance Advance) {
			mustSet(t, backend, "a", "1", kv.SetOptions{}, true)
			expectValue(t, backend, "a", "1")
			mustSet(t, backend, "a", "2", kv.SetOptions{}, true)
			expectValue(t, backend, "a", "2")
		},
		"set-if-absent": func(t *testing.T, backend kv.Backend, advance Advance) {
			mustSet(t, backend, "a", "1", kv.SetOptions{Condition: kv.IfAbsent}, true)
			mustSet(t, backend, "a", "2", kv.SetOptions{Condition: kv.IfAbsent}, false)
			expectValue(t, backend, "a", "1")
		},
		"set-if-exists-missing": func(t *testing.T, backend kv.Backend, advance Advance) {
			result := mustSet(t, backend, "a", "1", kv.SetOptions{Condition: kv.IfExists, KeepTTL: true, ReturnPrevious: true}, false)

			if result.Previous != nil {
				t.Fatalf("expected no previous value, got %#v", result.Previous)
			}

			expectExists(t, backend, "a", false)
		},
		"set-if-exists-return-previous": func(t *testing.T, backend kv.Backend, advance Advance) {
			mustSet(t, backend, "a", "1", kv.SetOptions{}, true)
			result := mustSet(t, backend, "a", "2", kv.SetOptions{Condition: kv.IfExists, KeepTTL: true, ReturnPrevious: true}, true)

			if diff := cmp.Diff([]byte("1"), result.Previous); diff != "" {
				t.Fatalf(diff)
			}

			expectValue(t, backend, "a", "2")
		},
		"set-return-previous": func(t *testing.T, backend kv.Backend, advance Advance) {
			result := mustSet(t, backend, "a", "1", kv.SetOptions{ReturnPrevious: true}, true)

			if result.Previous != nil {
				t.Fatalf("expected no previous value, got %#v", result.Previous)
			}

			result = mustSet(t, backend, "a", "2", kv.SetOptions{ReturnPrevious: true}, true)

			if diff := cmp.Diff([]byte("1"), result.Previous); diff != "" {
				t.Fatalf(diff)
			}
		},
		"set-invalid-options": func(t *testing.T, backend kv.Backend, advance Advance) {
			_, err := backend.Set(context.Background(), "a", []byte("1"), kv.SetOptions{TTL: time.Second, KeepTTL: true})

			if err == nil {
				t.Fatalf("expected an error when combining ttl and keep-ttl")
			}
		},
		"delete": func(t *testing.T, backend kv.Backend, advance Advance) {
			mustSet(t, backend, "a", "1", kv.SetOptions{}, true)

			for i := 0; i < 2; i++ {
				if err := backend.Delete(context.Background(), "a"); err != nil {
					t.Fatalf("expected err to be nil, got %#v", err)
				}

				expectExists(t, backend, "a", false)
			}
		},
		"delete-if": func(t *testing.T, backend kv.Backend, advance Advance) {
			mustSet(t, backend, "a", "token", kv.SetOptions{}, true)

			if deleted := mustDeleteIf(t, backend, "a", "other"); deleted {
				t.Fatalf("expected mismatched value not to delete the key")
			}

			expectExists(t, backend, "a", true)

			if deleted := mustDeleteIf(t, backend, "a", "token"); !deleted {
				t.Fatalf("expected matching value to delete the key")
			}

			expectExists(t, backend, "a", false)

			if deleted := mustDeleteIf(t, backend, "a", "token"); deleted {
				t.Fatalf("expected missing key not to be deleted")
			}
		},
		"scan-all": func(t *testing.T, backend kv.Backend, advance Advance) {
			expected := []string{"a/1", "a/2", "a/3", "b/1", "c"}

			for _, key := range expected {
				mustSet(t, backend, key, "x", kv.SetOptions{}, true)
			}

			if diff := cmp.Diff(expected, scanAll(t, backend, "*", 1)); diff != "" {
				t.Fatalf(diff)
			}

			if diff := cmp.Diff(expected, scanAll(t, backend, "*", 0)); diff != "" {
				t.Fatalf(diff)
			}
		},
		"scan-match": func(t *testing.T, backend kv.Backend, advance Advance) {
			for _, key := range []string{"a/1", "a/2", "ab/1", "b/1"} {
				mustSet(t, backend, key, "x", kv.SetOptions{}, true)
			}

			if diff := cmp.Diff([]string{"a/1", "a/2"}, scanAll(t, backend, "a/*", 2)); diff != "" {
				t.Fatalf(diff)
			}

			if diff := cmp.Diff([]string{"a/1", "b/1"}, scanAll(t, backend, "?/1", 2)); diff != "" {
				t.Fatalf(diff)
			}
		},
		"scan-escaped": func(t *testing.T, backend kv.Backend, advance Advance) {
			for _, key := range []string{"x*/1", "xy/1"} {
				mustSet(t, backend, key, "x", kv.SetOptions{}, true)
			}

			if diff := cmp.Diff([]string{"x*/1"}, scanAll(t, backend, keys.Escape("x*")+"*", 1)); diff != "" {
				t.Fatalf(diff)
			}
		},
		"ttl-expires": func(t *testing.T, backend kv.Backend, advance Advance) {
			requireAdvance(t, advance)
			mustSet(t, backend, "a", "1", kv.SetOptions{TTL: time.Second}, true)
			mustSet(t, backend, "b", "1", kv.SetOptions{}, true)
			expectValue(t, backend, "a", "1")
			advance(1500 * time.Millisecond)
			expectExists(t, backend, "a", false)
			expectValue(t, backend, "a", "")

			if diff := cmp.Diff([]string{"b"}, scanAll(t, backend, "*", 1)); diff != "" {
				t.Fatalf(diff)
			}

			mustSet(t, backend, "a", "2", kv.SetOptions{Condition: kv.IfAbsent}, true)
		},
		"keep-ttl": func(t *testing.T, backend kv.Backend, advance Advance) {
			requireAdvance(t, advance)
			mustSet(t, backend, "a", "1", kv.SetOptions{TTL: time.Second}, true)
			advance(600 * time.Millisecond)
			mustSet(t, backend, "a", "2", kv.SetOptions{Condition: kv.IfExists, KeepTTL: true}, true)
			expectValue(t, backend, "a", "2")
			advance(600 * time.Millisecond)
			expectExists(t, backend, "a", false)
		},
		"keep-ttl-persistent": func(t *testing.T, backend kv.Backend, advance Advance) {
			requireAdvance(t, advance)
			mustSet(t, backend, "a", "1", kv.SetOptions{}, true)
			mustSet(t, backend, "a", "2", kv.SetOptions{Condition: kv.IfExists, KeepTTL: true}, true)
			advance(time.Hour)
			expectValue(t, backend, "a", "2")
		},
		"set-clears-ttl": func(t *testing.T, backend kv.Backend, advance Advance) {
			requireAdvance(t, advance)
			mustSet(t, backend, "a", "1", kv.SetOptions{TTL: time.Second}, true)
			mustSet(t, backend, "a", "2", kv.SetOptions{}, true)
			advance(2 * time.Second)
			expectValue(t, backend, "a", "2")
		},
	}
}

func requireAdvance(t *testing.T, advance Advance) {
	if advance == nil {
		t.Skip("backend cannot move time forward")
	}
}

func mustSet(t *testing.T, backend kv.Backend, key, value string, options kv.SetOptions, written bool) kv.SetResult {
	t.Helper()

	result, err := backend.Set(context.Background(), key, []byte(value), options)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if result.Written != written {
		t.Fatalf("expected written to be %t, got %t", written, result.Written)
	}

	return result
}

func mustDeleteIf(t *testing.T, backend kv.Backend, key, expected string) bool {
	t.Helper()

	deleted, err := backend.DeleteIf(context.Background(), key, []byte(expected))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return deleted
}

// expectValue checks the value of key. An empty expected
// value means the key must not exist.
func expectValue(t *testing.T, backend kv.Backend, key, expected string) {
	t.Helper()

	value, err := backend.Get(context.Background(), key)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if expected == "" {
		if value != nil {
			t.Fatalf("expected %s not to exist, got %s", key, value)
		}

		return
	}

	if !bytes.Equal(value, []byte(expected)) {
		t.Fatalf("expected %s to be %s, got %s", key, expected, value)
	}
}

func expectExists(t *testing.T, backend kv.Backend, key string, expected bool) {
	t.Helper()

	exists, err := backend.Exists(context.Background(), key)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if exists != expected {
		t.Fatalf("expected exists(%s) to be %t, got %t", key, expected, exists)
	}
}

func scanAll(t *testing.T, backend kv.Backend, match string, count int64) []string {
	t.Helper()

	seen := map[string]bool{}
	cursor := kv.CursorStart

	for {
		page, next, err := backend.Scan(context.Background(), cursor, match, count)

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		for _, key := range page {
			seen[key] = true
		}

		if next == kv.CursorStart {
			break
		}

		cursor = next
	}

	result := make([]string, 0, len(seen))

	for key := range seen {
		result = append(result, key)
	}

	sort.Strings(result)

	return result
}
