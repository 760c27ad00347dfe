package transport

import (
	"context"

	"github.com/jrife/tenantkv/lock"
	"github.com/jrife/tenantkv/storage"
)

// Server describes every operation a frontend
// may expose. Each operation that touches storage
// returns its cost alongside its result.
type Server interface {
	// Ping returns the server version
	Ping(ctx context.Context) string
	Load(ctx context.Context, tenant string, key string) ([]byte, int64, error)
	Store(ctx context.Context, tenant string, key string, expiryMs int64, value []byte) (int64, error)
	Delete(ctx context.Context, tenant string, key string) (int64, error)
	Exists(ctx context.Context, tenant string, key string) (bool, int64, error)
	List(ctx context.Context, tenant string, prefix string, recursive bool) ([]string, int64, error)
	Stat(ctx context.Context, tenant string, key string) (storage.KeyInfo, int64, error)
	Lock(ctx context.Context, tenant string, key string) (lock.Token, int64, error)
	Unlock(ctx context.Context, tenant string, key string, token lock.Token) (int64, error)
	// Balance returns the total cost charged to tenant.
	// ok is false if the server does not keep balances.
	Balance(tenant string) (balance int64, ok bool)
}
