// Package bbolt is a single-node kv backend on top of a bbolt file.
// Each value is stored behind an 8 byte big-endian expiry timestamp
// in unix nanoseconds where zero means the key never expires. Expired
// keys are removed lazily by the next write that touches them.
package bbolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jrife/tenantkv/storage/kv"
	"github.com/jrife/tenantkv/storage/kv/keys"
	"github.com/jrife/tenantkv/utils/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// DriverName is the name under which the plugin is registered
	DriverName   = "bbolt"
	headerSize   = 8
	defaultCount = 100
)

var rootBucket = []byte("tenantkv")

// Plugins lists the plugins provided by this package
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&BBoltPlugin{},
	}
}

// BBoltPlugin creates bbolt backends
type BBoltPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *BBoltPlugin) Name() string {
	return DriverName
}

// NewBackend implements kv.Plugin.NewBackend
func (plugin *BBoltPlugin) NewBackend(options kv.PluginOptions) (kv.Backend, error) {
	var config BBoltBackendConfig
	var err error

	if config.Path, err = options.String("path", ""); err != nil {
		return nil, err
	} else if config.Path == "" {
		return nil, fmt.Errorf("\"path\" is required")
	}

	if config.Timeout, err = options.Duration("open-timeout", time.Second); err != nil {
		return nil, err
	}

	return New(config)
}

// NewTempBackend implements kv.Plugin.NewTempBackend
func (plugin *BBoltPlugin) NewTempBackend() (kv.Backend, error) {
	return plugin.NewBackend(kv.PluginOptions{
		"path": fmt.Sprintf("%s/bbolt-%s", os.TempDir(), uuid.MustUUID()),
	})
}

// BBoltBackendConfig configures a BBoltBackend
type BBoltBackendConfig struct {
	Path string
	// Timeout bounds how long to wait for the file lock
	Timeout time.Duration
	// Clock decides when keys expire. It defaults to
	// the wall clock.
	Clock clock.Clock
}

var _ kv.Backend = (*BBoltBackend)(nil)

// BBoltBackend implements kv.Backend on a bbolt database
type BBoltBackend struct {
	db    *bolt.DB
	clock clock.Clock
}

// New opens or creates the bbolt database at config.Path
func New(config BBoltBackendConfig) (*BBoltBackend, error) {
	db, err := bolt.Open(config.Path, 0666, &bolt.Options{Timeout: config.Timeout})

	if err != nil {
		return nil, fmt.Errorf("could not open bbolt backend at %s: %s", config.Path, err)
	}

	if err := db.Update(func(txn *bolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists(rootBucket)

		return err
	}); err != nil {
		db.Close()

		return nil, fmt.Errorf("could not ensure root bucket exists: %s", err)
	}

	if config.Clock == nil {
		config.Clock = clock.New()
	}

	return &BBoltBackend{db: db, clock: config.Clock}, nil
}

type envelope struct {
	expiresAt int64
	value     []byte
}

func (env envelope) expired(now time.Time) bool {
	return env.expiresAt != 0 && now.UnixNano() >= env.expiresAt
}

func (env envelope) marshal() []byte {
	header := keys.Int64ToKey(env.expiresAt)

	return append(header[:], env.value...)
}

func unmarshalEnvelope(raw []byte) (envelope, error) {
	if len(raw) < headerSize {
		return envelope{}, fmt.Errorf("value is too short to hold an expiry header")
	}

	var header [headerSize]byte
	copy(header[:], raw)

	return envelope{expiresAt: keys.KeyToInt64(header), value: append([]byte{}, raw[headerSize:]...)}, nil
}

// live returns the unexpired envelope stored at key, if any
func (backend *BBoltBackend) live(bucket *bolt.Bucket, key string) (envelope, bool, error) {
	raw := bucket.Get([]byte(key))

	if raw == nil {
		return envelope{}, false, nil
	}

	env, err := unmarshalEnvelope(raw)

	if err != nil {
		return envelope{}, false, err
	}

	if env.expired(backend.clock.Now()) {
		return envelope{}, false, nil
	}

	return env, true, nil
}

func (backend *BBoltBackend) view(fn func(bucket *bolt.Bucket) error) error {
	return wrapError(backend.db.View(func(txn *bolt.Tx) error {
		return fn(txn.Bucket(rootBucket))
	}))
}

func (backend *BBoltBackend) update(fn func(bucket *bolt.Bucket) error) error {
	return wrapError(backend.db.Update(func(txn *bolt.Tx) error {
		return fn(txn.Bucket(rootBucket))
	}))
}

// Get implements kv.Backend.Get
func (backend *BBoltBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := backend.view(func(bucket *bolt.Bucket) error {
		env, ok, err := backend.live(bucket, key)

		if ok {
			value = env.value
		}

		return err
	})

	return value, err
}

// Set implements kv.Backend.Set
func (backend *BBoltBackend) Set(ctx context.Context, key string, value []byte, options kv.SetOptions) (kv.SetResult, error) {
	if err := options.Validate(); err != nil {
		return kv.SetResult{}, err
	}

	var result kv.SetResult

	err := backend.update(func(bucket *bolt.Bucket) error {
		current, exists, err := backend.live(bucket, key)

		if err != nil {
			return err
		}

		if exists && options.ReturnPrevious {
			result.Previous = current.value
		}

		switch {
		case options.Condition == kv.IfExists && !exists:
			return nil
		case options.Condition == kv.IfAbsent && exists:
			return nil
		}

		env := envelope{value: value}

		if options.KeepTTL {
			env.expiresAt = current.expiresAt
		} else if options.TTL > 0 {
			env.expiresAt = backend.clock.Now().Add(options.TTL).UnixNano()
		}

		if err := bucket.Put([]byte(key), env.marshal()); err != nil {
			return err
		}

		result.Written = true

		return nil
	})

	if err != nil {
		return kv.SetResult{}, err
	}

	return result, nil
}

// Delete implements kv.Backend.Delete
func (backend *BBoltBackend) Delete(ctx context.Context, key string) error {
	return backend.update(func(bucket *bolt.Bucket) error {
		return bucket.Delete([]byte(key))
	})
}

// DeleteIf implements kv.Backend.DeleteIf
func (backend *BBoltBackend) DeleteIf(ctx context.Context, key string, expected []byte) (bool, error) {
	var deleted bool

	err := backend.update(func(bucket *bolt.Bucket) error {
		env, ok, err := backend.live(bucket, key)

		if err != nil || !ok || !bytes.Equal(env.value, expected) {
			return err
		}

		deleted = true

		return bucket.Delete([]byte(key))
	})

	return deleted, err
}

// Exists implements kv.Backend.Exists
func (backend *BBoltBackend) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool

	err := backend.view(func(bucket *bolt.Bucket) error {
		var err error

		_, exists, err = backend.live(bucket, key)

		return err
	})

	return exists, err
}

// Scan implements kv.Backend.Scan. The cursor is the last key
// visited by the previous page.
func (backend *BBoltBackend) Scan(ctx context.Context, cursor string, match string, count int64) ([]string, string, error) {
	if count < 1 {
		count = defaultCount
	}

	var page []string
	next := kv.CursorStart

	err := backend.view(func(bucket *bolt.Bucket) error {
		c := bucket.Cursor()
		now := backend.clock.Now()

		var k, v []byte

		if cursor == kv.CursorStart {
			k, v = c.First()
		} else if k, v = c.Seek([]byte(cursor)); k != nil && string(k) == cursor {
			k, v = c.Next()
		}

		var visited int64
		var last string

		for ; k != nil && visited < count; k, v = c.Next() {
			visited++
			last = string(k)

			env, err := unmarshalEnvelope(v)

			if err != nil {
				return err
			}

			if !env.expired(now) && kv.Match(last, match) {
				page = append(page, last)
			}
		}

		if k != nil {
			next = last
		}

		return nil
	})

	if err != nil {
		return nil, kv.CursorStart, err
	}

	return page, next, nil
}

// Close implements kv.Backend.Close
func (backend *BBoltBackend) Close() error {
	return backend.db.Close()
}

func wrapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bolt.ErrDatabaseNotOpen):
		return kv.ErrClosed
	}

	return err
}
