package storage

import (
	"context"
	"errors"
)

// KeepExpiry is the expiry that refreshes the value of an existing
// key while keeping its remaining time-to-live
const KeepExpiry int64 = -1

var (
	// ErrInvalidArgument is returned when a tenant, key or expiry
	// cannot be used
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when a key does not exist
	ErrNotFound = errors.New("key does not exist")
	// ErrMalformed is returned when a stored record cannot be decoded
	ErrMalformed = errors.New("record is malformed")
)

// KeyInfo describes a stored key
type KeyInfo struct {
	Key string `json:"key"`
	// Modified is the time of the last store in unix milliseconds
	Modified int64 `json:"modified"`
	// Size is the length of the stored value
	Size int `json:"size"`
	// IsTerminal is false for keys ending in "/"
	IsTerminal bool `json:"is_terminal"`
}

// Engine is the storage engine shared by all tenants
type Engine interface {
	// Tenant returns a handle to the keyspace of the named
	// tenant. It does no I/O. If name is not a valid tenant
	// every method of the handle returns ErrInvalidArgument.
	Tenant(name string) Tenant
}

// Tenant is a handle to a single tenant's keyspace.
// Every method returns the cost of the operation.
type Tenant interface {
	// Name returns the name of this tenant
	Name() string
	// Store writes value to key. A positive expiryMs sets
	// the time-to-live of the key in milliseconds. KeepExpiry
	// overwrites the value of an existing key without
	// changing its time-to-live and does nothing if the
	// key doesn't exist.
	Store(ctx context.Context, key string, expiryMs int64, value []byte) (int64, error)
	// Load returns the value of key or ErrNotFound
	Load(ctx context.Context, key string) ([]byte, int64, error)
	// Delete deletes key and any blob it references.
	// Deleting a key that doesn't exist succeeds.
	Delete(ctx context.Context, key string) (int64, error)
	// Exists returns true if key exists
	Exists(ctx context.Context, key string) (bool, int64, error)
	// Stat describes key or returns ErrNotFound
	Stat(ctx context.Context, key string) (KeyInfo, int64, error)
	// List returns the keys starting with prefix in ascending
	// order. Unless recursive is set or prefix is blank or "*",
	// keys are collapsed to the first "/" following the prefix.
	List(ctx context.Context, prefix string, recursive bool) ([]string, int64, error)
}
