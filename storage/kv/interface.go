package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrClosed indicates that the backend was closed
	ErrClosed = errors.New("backend was closed")
	// ErrUnavailable indicates that the backend could not be reached
	ErrUnavailable = errors.New("backend unavailable")
	// ErrTimeout indicates that a round-trip to the backend exceeded its deadline
	ErrTimeout = errors.New("backend round-trip timed out")
)

// CursorStart is the cursor that starts a scan. A scan is
// complete when a backend returns it as the next cursor.
const CursorStart = ""

// Condition restricts when a write takes effect
type Condition int

const (
	// Always writes unconditionally
	Always Condition = iota
	// IfExists writes only if the key already exists
	IfExists
	// IfAbsent writes only if the key does not exist
	IfAbsent
)

func (condition Condition) String() string {
	switch condition {
	case Always:
		return "always"
	case IfExists:
		return "if-exists"
	case IfAbsent:
		return "if-absent"
	}

	return "condition(" + strconv.Itoa(int(condition)) + ")"
}

// SetOptions modifies the behavior of Set
type SetOptions struct {
	// TTL is the time-to-live given to the key. Zero means the
	// key never expires.
	TTL time.Duration
	// Condition decides whether or not the write takes effect
	Condition Condition
	// KeepTTL retains the remaining time-to-live of the key
	// being overwritten. It cannot be combined with TTL.
	KeepTTL bool
	// ReturnPrevious asks for the value that was stored
	// before the write
	ReturnPrevious bool
}

// Validate ensures the options are consistent
func (options SetOptions) Validate() error {
	if options.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}

	if options.KeepTTL && options.TTL != 0 {
		return fmt.Errorf("ttl cannot be combined with keep-ttl")
	}

	if options.Condition < Always || options.Condition > IfAbsent {
		return fmt.Errorf("unknown condition %s", options.Condition)
	}

	return nil
}

// SetResult describes the outcome of Set
type SetResult struct {
	// Written is true if the write took effect
	Written bool
	// Previous is the value the key held before the write.
	// It is only populated if ReturnPrevious was set and
	// the key existed.
	Previous []byte
}

// Backend is a flat key-value store with per-key expiry.
// Methods must be safe for concurrent use. An expired key
// must be indistinguishable from one that never existed.
type Backend interface {
	// Get returns the value of key. It returns nil
	// and no error if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value to key atomically according to options
	Set(ctx context.Context, key string, value []byte, options SetOptions) (SetResult, error)
	// Delete removes key. It is not an error if the key
	// doesn't exist.
	Delete(ctx context.Context, key string) error
	// DeleteIf atomically removes key only if its current
	// value equals expected. It returns true if the key was
	// removed.
	DeleteIf(ctx context.Context, key string, expected []byte) (bool, error)
	// Exists returns true if key exists
	Exists(ctx context.Context, key string) (bool, error)
	// Scan visits up to count keys starting at cursor and returns
	// those matching the glob pattern along with the cursor from
	// which to continue. A count less than one lets the backend
	// choose its page size.
	Scan(ctx context.Context, cursor string, match string, count int64) ([]string, string, error)
	// Close releases the resources held by the backend.
	// Calls made after Close returns fail with ErrClosed
	// or an equivalent driver error.
	Close() error
}

// PluginOptions is a generic structure to pass
// configuration to a backend plugin
type PluginOptions map[string]interface{}

// Plugin represents a kv backend plugin
type Plugin interface {
	// Name returns the name of the backend plugin
	Name() string
	// NewBackend returns an instance of the plugin backend
	NewBackend(options PluginOptions) (Backend, error)
	// NewTempBackend returns an instance of the plugin backend
	// initialized with some sane defaults. It is meant for
	// tests that need an initialized instance of the plugin's
	// backend without knowing how to initialize it. It returns
	// nil and no error when the plugin cannot provide one in
	// the current environment.
	NewTempBackend() (Backend, error)
}
