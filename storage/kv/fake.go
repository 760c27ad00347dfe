package kv

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/emirpasic/gods/maps/treemap"
)

const fakeScanCount = 10

var _ Backend = (*FakeBackend)(nil)

type fakeEntry struct {
	value     []byte
	expiresAt time.Time
}

func (entry fakeEntry) expired(now time.Time) bool {
	return !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}

// FakeBackend is an in-memory implementation of
// the Backend interface. Expiry is driven by its clock
// so tests can use a mock clock to move time forward.
type FakeBackend struct {
	mu     sync.Mutex
	m      *treemap.Map
	clock  clock.Clock
	closed bool
}

// NewFakeBackend creates a new FakeBackend. If c is
// nil it uses the wall clock.
func NewFakeBackend(c clock.Clock) *FakeBackend {
	if c == nil {
		c = clock.New()
	}

	return &FakeBackend{m: treemap.NewWithStringComparator(), clock: c}
}

// lookup returns the live entry for key, removing it if
// it has expired. The caller must hold mu.
func (backend *FakeBackend) lookup(key string) (fakeEntry, bool) {
	v, ok := backend.m.Get(key)

	if !ok {
		return fakeEntry{}, false
	}

	entry := v.(fakeEntry)

	if entry.expired(backend.clock.Now()) {
		backend.m.Remove(key)

		return fakeEntry{}, false
	}

	return entry, true
}

// Get implements Backend.Get
func (backend *FakeBackend) Get(ctx context.Context, key string) ([]byte, error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()

	if backend.closed {
		return nil, ErrClosed
	}

	entry, ok := backend.lookup(key)

	if !ok {
		return nil, nil
	}

	return copyBytes(entry.value), nil
}

// Set implements Backend.Set
func (backend *FakeBackend) Set(ctx context.Context, key string, value []byte, options SetOptions) (SetResult, error) {
	if err := options.Validate(); err != nil {
		return SetResult{}, err
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()

	if backend.closed {
		return SetResult{}, ErrClosed
	}

	var result SetResult
	current, exists := backend.lookup(key)

	if exists && options.ReturnPrevious {
		result.Previous = copyBytes(current.value)
	}

	switch {
	case options.Condition == IfExists && !exists:
		return result, nil
	case options.Condition == IfAbsent && exists:
		return result, nil
	}

	entry := fakeEntry{value: append([]byte{}, value...)}

	if options.KeepTTL {
		entry.expiresAt = current.expiresAt
	} else if options.TTL > 0 {
		entry.expiresAt = backend.clock.Now().Add(options.TTL)
	}

	backend.m.Put(key, entry)
	result.Written = true

	return result, nil
}

// Delete implements Backend.Delete
func (backend *FakeBackend) Delete(ctx context.Context, key string) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()

	if backend.closed {
		return ErrClosed
	}

	backend.m.Remove(key)

	return nil
}

// DeleteIf implements Backend.DeleteIf
func (backend *FakeBackend) DeleteIf(ctx context.Context, key string, expected []byte) (bool, error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()

	if backend.closed {
		return false, ErrClosed
	}

	entry, ok := backend.lookup(key)

	if !ok || !bytes.Equal(entry.value, expected) {
		return false, nil
	}

	backend.m.Remove(key)

	return true, nil
}

// Exists implements Backend.Exists
func (backend *FakeBackend) Exists(ctx context.Context, key string) (bool, error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()

	if backend.closed {
		return false, ErrClosed
	}

	_, ok := backend.lookup(key)

	return ok, nil
}

// Scan implements Backend.Scan. The cursor is the last
// key visited by the previous page.
func (backend *FakeBackend) Scan(ctx context.Context, cursor string, match string, count int64) ([]string, string, error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()

	if backend.closed {
		return nil, CursorStart, ErrClosed
	}

	if count < 1 {
		count = fakeScanCount
	}

	var page []string
	var visited int64
	now := backend.clock.Now()
	k, v := backend.next(cursor)

	for ; k != nil && visited < count; k, v = backend.next(k.(string)) {
		visited++
		key := k.(string)
		cursor = key

		if !v.(fakeEntry).expired(now) && Match(key, match) {
			page = append(page, key)
		}
	}

	if k == nil {
		return page, CursorStart, nil
	}

	return page, cursor, nil
}

// next returns the first entry whose key sorts after
// after. The caller must hold mu.
func (backend *FakeBackend) next(after string) (interface{}, interface{}) {
	if after == CursorStart {
		return backend.m.Ceiling(after)
	}

	// The smallest string greater than after
	return backend.m.Ceiling(after + "\x00")
}

// Close implements Backend.Close
func (backend *FakeBackend) Close() error {
	backend.mu.Lock()
	defer backend.mu.Unlock()

	backend.closed = true

	return nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	return append([]byte{}, b...)
}
