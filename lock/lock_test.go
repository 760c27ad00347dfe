package lock_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	goredis "github.com/go-redis/redis/v9"
	"github.com/jrife/tenantkv/cost"
	"github.com/jrife/tenantkv/lock"
	"github.com/jrife/tenantkv/storage/kv"
	"github.com/jrife/tenantkv/storage/kv/keys"
	"github.com/jrife/tenantkv/storage/kv/plugins/redis"
	"go.uber.org/zap/zaptest"
)

func newManager(t *testing.T, backend kv.Backend) lock.Manager {
	return lock.New(lock.ManagerConfig{
		Logger:     zaptest.NewLogger(t),
		Backend:    backend,
		RetryDelay: time.Millisecond,
		RetryCount: 3,
		Expiry:     time.Minute,
		Tiers:      cost.DefaultTiers(),
	})
}

func backends() map[string]func(t *testing.T) kv.Backend {
	return map[string]func(t *testing.T) kv.Backend{
		"memory": func(t *testing.T) kv.Backend {
			return kv.NewFakeBackend(clock.NewMock())
		},
		"redis": func(t *testing.T) kv.Backend {
			server := miniredis.RunT(t)
			backend := redis.New(&goredis.Options{Addr: server.Addr()})
			t.Cleanup(func() { backend.Close() })

			return backend
		},
	}
}

func mustAcquire(t *testing.T, manager lock.Manager, tenant, key string) lock.Token {
	t.Helper()

	token, c, err := manager.Acquire(context.Background(), tenant, key)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if len(token) != lock.TokenSize {
		t.Fatalf("expected a %d byte token, got %d bytes", lock.TokenSize, len(token))
	}

	if c != cost.DefaultTiers().Store {
		t.Fatalf("expected acquire to cost %d, got %d", cost.DefaultTiers().Store, c)
	}

	return token
}

func TestLock(t *testing.T) {
	testCases := map[string]func(t *testing.T, backend kv.Backend, manager lock.Manager){
		"mutual-exclusion": func(t *testing.T, backend kv.Backend, manager lock.Manager) {
			mustAcquire(t, manager, "alpha", "k")

			if _, _, err := manager.Acquire(context.Background(), "alpha", "k"); !errors.Is(err, lock.ErrContention) {
				t.Fatalf("expected err to be %#v, got %#v", lock.ErrContention, err)
			}
		},
		"cycle": func(t *testing.T, backend kv.Backend, manager lock.Manager) {
			token := mustAcquire(t, manager, "alpha", "k")
			c, err := manager.Release(context.Background(), "alpha", "k", token)

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if c != cost.DefaultTiers().Store {
				t.Fatalf("expected release to cost %d, got %d", cost.DefaultTiers().Store, c)
			}

			mustAcquire(t, manager, "alpha", "k")
		},
		"wrong-token": func(t *testing.T, backend kv.Backend, manager lock.Manager) {
			mustAcquire(t, manager, "alpha", "k")
			other, err := lock.NewToken()

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			for _, token := range []lock.Token{other, lock.Token("short"), nil} {
				if _, err := manager.Release(context.Background(), "alpha", "k", token); !errors.Is(err, lock.ErrOwnershipMismatch) {
					t.Fatalf("expected err to be %#v, got %#v", lock.ErrOwnershipMismatch, err)
				}
			}

			if _, _, err := manager.Acquire(context.Background(), "alpha", "k"); !errors.Is(err, lock.ErrContention) {
				t.Fatalf("expected the lock to still be held, got %#v", err)
			}
		},
		"release-unheld": func(t *testing.T, backend kv.Backend, manager lock.Manager) {
			token, _ := lock.NewToken()

			if _, err := manager.Release(context.Background(), "alpha", "k", token); !errors.Is(err, lock.ErrOwnershipMismatch) {
				t.Fatalf("expected err to be %#v, got %#v", lock.ErrOwnershipMismatch, err)
			}
		},
		"independent-keys": func(t *testing.T, backend kv.Backend, manager lock.Manager) {
			mustAcquire(t, manager, "alpha", "k")
			mustAcquire(t, manager, "alpha", "other")
			mustAcquire(t, manager, "beta", "k")
		},
		"lock-namespace": func(t *testing.T, backend kv.Backend, manager lock.Manager) {
			token := mustAcquire(t, manager, "alpha", "k")
			value, err := backend.Get(context.Background(), keys.LockKey("alpha", "k"))

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if string(value) != string(token) {
				t.Fatalf("expected the lock key to hold the token")
			}

			if exists, _ := backend.Exists(context.Background(), keys.NamespacedKey("alpha", "k")); exists {
				t.Fatalf("expected the data key to be untouched")
			}
		},
		"invalid-tenant": func(t *testing.T, backend kv.Backend, manager lock.Manager) {
			if _, _, err := manager.Acquire(context.Background(), "alpha.lock", "k"); !errors.Is(err, lock.ErrInvalidArgument) {
				t.Fatalf("expected err to be %#v, got %#v", lock.ErrInvalidArgument, err)
			}

			if _, _, err := manager.Acquire(context.Background(), "alpha", ""); !errors.Is(err, lock.ErrInvalidArgument) {
				t.Fatalf("expected err to be %#v, got %#v", lock.ErrInvalidArgument, err)
			}

			if _, err := manager.Release(context.Background(), "a/b", "k", lock.Token("t")); !errors.Is(err, lock.ErrInvalidArgument) {
				t.Fatalf("expected err to be %#v, got %#v", lock.ErrInvalidArgument, err)
			}
		},
	}

	for backendName, newBackend := range backends() {
		newBackend := newBackend

		t.Run(backendName, func(t *testing.T) {
			for name, testCase := range testCases {
				testCase := testCase

				t.Run(name, func(t *testing.T) {
					backend := newBackend(t)
					testCase(t, backend, newManager(t, backend))
				})
			}
		})
	}
}

func TestLockExpires(t *testing.T) {
	mock := clock.NewMock()
	manager := newManager(t, kv.NewFakeBackend(mock))

	mustAcquire(t, manager, "alpha", "k")
	mock.Add(time.Minute + time.Millisecond)
	mustAcquire(t, manager, "alpha", "k")
}

// scriptedBackend answers Exists from a script and
// reports whether Set should succeed
type scriptedBackend struct {
	kv.Backend
	held    []bool
	written bool
	checks  int32
	sets    int32
}

func (backend *scriptedBackend) Exists(ctx context.Context, key string) (bool, error) {
	i := atomic.AddInt32(&backend.checks, 1) - 1

	if int(i) < len(backend.held) {
		return backend.held[i], nil
	}

	return false, nil
}

func (backend *scriptedBackend) Set(ctx context.Context, key string, value []byte, options kv.SetOptions) (kv.SetResult, error) {
	atomic.AddInt32(&backend.sets, 1)

	if options.Condition != kv.IfAbsent || options.TTL != time.Minute {
		return kv.SetResult{}, errors.New("unexpected options")
	}

	return kv.SetResult{Written: backend.written}, nil
}

func TestAcquireRetries(t *testing.T) {
	backend := &scriptedBackend{Backend: kv.NewFakeBackend(nil), held: []bool{true, true}, written: true}

	mustAcquire(t, newManager(t, backend), "alpha", "k")

	if backend.checks != 3 || backend.sets != 1 {
		t.Fatalf("expected 3 checks and 1 set, got %d checks and %d sets", backend.checks, backend.sets)
	}
}

func TestAcquireGivesUp(t *testing.T) {
	backend := &scriptedBackend{Backend: kv.NewFakeBackend(nil), held: []bool{true, true, true, true}, written: true}

	if _, _, err := newManager(t, backend).Acquire(context.Background(), "alpha", "k"); !errors.Is(err, lock.ErrContention) {
		t.Fatalf("expected err to be %#v, got %#v", lock.ErrContention, err)
	}

	if backend.checks != 3 || backend.sets != 0 {
		t.Fatalf("expected 3 checks and no set, got %d checks and %d sets", backend.checks, backend.sets)
	}
}

func TestAcquireLosesRace(t *testing.T) {
	backend := &scriptedBackend{Backend: kv.NewFakeBackend(nil), written: false}

	if _, _, err := newManager(t, backend).Acquire(context.Background(), "alpha", "k"); !errors.Is(err, lock.ErrContention) {
		t.Fatalf("expected err to be %#v, got %#v", lock.ErrContention, err)
	}

	if backend.checks != 1 || backend.sets != 1 {
		t.Fatalf("expected no retry after a lost race, got %d checks and %d sets", backend.checks, backend.sets)
	}
}

func TestAcquireCancelled(t *testing.T) {
	backend := kv.NewFakeBackend(nil)
	manager := lock.New(lock.ManagerConfig{Backend: backend, RetryDelay: time.Hour, RetryCount: 5})

	if _, _, err := manager.Acquire(context.Background(), "alpha", "k"); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()

	if _, _, err := manager.Acquire(ctx, "alpha", "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected err to be %#v, got %#v", context.DeadlineExceeded, err)
	}

	if time.Since(start) > 10*time.Second {
		t.Fatalf("expected the wait to be abandoned when the context expired")
	}
}

func TestNewToken(t *testing.T) {
	a, err := lock.NewToken()

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	b, err := lock.NewToken()

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if string(a) == string(b) {
		t.Fatalf("expected distinct tokens")
	}
}
