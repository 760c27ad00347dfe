// Package overflow defines the content store that holds values too
// large to be kept inline in the kv backend. The kv backend stores a
// reference to the blob in its place.
package overflow

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that no blob exists for a reference
	ErrNotFound = errors.New("blob does not exist")
	// ErrUnavailable indicates that the content store could not be
	// reached or rejected a request
	ErrUnavailable = errors.New("content store unavailable")
)

// Store is a blob store addressed by opaque references.
// Methods must be safe for concurrent use.
type Store interface {
	// Add stores data and returns a reference to it
	Add(ctx context.Context, data []byte) (string, error)
	// Get returns the blob for reference
	Get(ctx context.Context, reference string) ([]byte, error)
	// Delete releases the blob for reference
	Delete(ctx context.Context, reference string) error
	// Close releases the resources held by the store
	Close() error
}

// UniqueReferences is implemented by stores that can report whether
// every Add returns a reference no other blob shares. Content
// addressed stores hand out the same reference for identical data,
// so releasing it on behalf of one record can break another.
type UniqueReferences interface {
	UniqueReferences() bool
}

// Exclusive reports whether store hands out a new reference on every Add
func Exclusive(store Store) bool {
	unique, ok := store.(UniqueReferences)

	return ok && unique.UniqueReferences()
}

// Options configures a content store plugin
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	Timeout   time.Duration
}

// Plugin represents a content store plugin
type Plugin interface {
	// Name returns the name of the plugin
	Name() string
	// NewStore returns an instance of the plugin store
	NewStore(options Options) (Store, error)
}
