package kv

import (
	"context"
	"strings"

	"github.com/jrife/tenantkv/storage/kv/keys"
)

// Namespace ensures that all keys referenced through the returned
// backend are prefixed with ns. Scans only visit keys inside the
// namespace and report them with the prefix stripped. Closing the
// returned backend has no effect on backend.
func Namespace(backend Backend, ns string) Backend {
	return &namespacedBackend{backend: backend, ns: ns}
}

type namespacedBackend struct {
	backend Backend
	ns      string
}

func (nsBackend *namespacedBackend) key(key string) string {
	return nsBackend.ns + key
}

func (nsBackend *namespacedBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return nsBackend.backend.Get(ctx, nsBackend.key(key))
}

func (nsBackend *namespacedBackend) Set(ctx context.Context, key string, value []byte, options SetOptions) (SetResult, error) {
	return nsBackend.backend.Set(ctx, nsBackend.key(key), value, options)
}

func (nsBackend *namespacedBackend) Delete(ctx context.Context, key string) error {
	return nsBackend.backend.Delete(ctx, nsBackend.key(key))
}

func (nsBackend *namespacedBackend) DeleteIf(ctx context.Context, key string, expected []byte) (bool, error) {
	return nsBackend.backend.DeleteIf(ctx, nsBackend.key(key), expected)
}

func (nsBackend *namespacedBackend) Exists(ctx context.Context, key string) (bool, error) {
	return nsBackend.backend.Exists(ctx, nsBackend.key(key))
}

func (nsBackend *namespacedBackend) Scan(ctx context.Context, cursor string, match string, count int64) ([]string, string, error) {
	page, next, err := nsBackend.backend.Scan(ctx, cursor, keys.Escape(nsBackend.ns)+match, count)

	if err != nil {
		return nil, CursorStart, err
	}

	result := make([]string, 0, len(page))

	for _, key := range page {
		// strip the namespace prefix
		if strings.HasPrefix(key, nsBackend.ns) {
			result = append(result, key[len(nsBackend.ns):])
		}
	}

	return result, next, nil
}

func (nsBackend *namespacedBackend) Close() error {
	return nil
}
