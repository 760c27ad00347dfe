// Package lock implements advisory per-key locks for tenants. A lock
// is a key in the tenant's lock namespace holding a random token and
// guarded by a backend-enforced expiry, so a lock whose holder
// disappears is released on its own.
package lock

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jrife/tenantkv/cost"
	"github.com/jrife/tenantkv/storage/kv"
	"github.com/jrife/tenantkv/storage/kv/keys"
	"github.com/jrife/tenantkv/utils/log"
	"go.uber.org/zap"
)

const (
	// TokenSize is the length of a lock token in bytes
	TokenSize = 20
	// DefaultRetryDelay is the wait between attempts to take a held lock
	DefaultRetryDelay = 200 * time.Millisecond
	// DefaultRetryCount is the number of attempts made to take a lock
	DefaultRetryCount = 5
	// DefaultExpiry is how long a lock is held unless released
	DefaultExpiry = 30 * time.Second
)

var (
	// ErrContention is returned when a lock could not be acquired
	ErrContention = errors.New("lock is held by another owner")
	// ErrOwnershipMismatch is returned when releasing a lock with a
	// token other than the one it was acquired with
	ErrOwnershipMismatch = errors.New("lock is not held with this token")
	// errHeld marks an attempt that found the lock taken
	errHeld = errors.New("lock is held")
)

// Token proves ownership of a lock
type Token []byte

// NewToken returns a fresh random token
func NewToken() (Token, error) {
	token := make(Token, TokenSize)

	if _, err := io.ReadFull(rand.Reader, token); err != nil {
		return nil, fmt.Errorf("could not read random bytes: %s", err)
	}

	return token, nil
}

// Manager acquires and releases locks
type Manager interface {
	// Acquire takes the lock on key for tenant and returns its
	// token along with the cost of the operation. It fails with
	// ErrContention if the lock stays held for every attempt or
	// is taken by someone else between checking and taking it.
	Acquire(ctx context.Context, tenant string, key string) (Token, int64, error)
	// Release frees the lock on key if it is held with token.
	// Otherwise it fails with ErrOwnershipMismatch and leaves
	// the lock untouched.
	Release(ctx context.Context, tenant string, key string, token Token) (int64, error)
}

// ManagerConfig contains configuration
// for a manager
type ManagerConfig struct {
	Logger     *zap.Logger
	Backend    kv.Backend
	RetryDelay time.Duration
	RetryCount int
	Expiry     time.Duration
	Tiers      cost.Tiers
}

var _ Manager = (*manager)(nil)

type manager struct {
	logger     *zap.Logger
	backend    kv.Backend
	retryDelay time.Duration
	retryCount int
	expiry     time.Duration
	tiers      cost.Tiers
}

// New creates a Manager that keeps locks in backend
func New(config ManagerConfig) Manager {
	manager := &manager{
		logger:     config.Logger,
		backend:    config.Backend,
		retryDelay: config.RetryDelay,
		retryCount: config.RetryCount,
		expiry:     config.Expiry,
		tiers:      config.Tiers,
	}

	if manager.logger == nil {
		manager.logger = zap.L()
	}

	if manager.retryDelay <= 0 {
		manager.retryDelay = DefaultRetryDelay
	}

	if manager.retryCount <= 0 {
		manager.retryCount = DefaultRetryCount
	}

	if manager.expiry <= 0 {
		manager.expiry = DefaultExpiry
	}

	return manager
}

func (manager *manager) locks(tenant string, key string) (kv.Backend, error) {
	if err := keys.ValidateTenant(tenant); err != nil {
		return nil, wrapError("could not validate tenant", err)
	}

	if err := keys.ValidateKey(key); err != nil {
		return nil, wrapError("could not validate key", err)
	}

	return kv.Namespace(manager.backend, keys.LockPrefix(tenant)), nil
}

// Acquire implements Manager.Acquire
func (manager *manager) Acquire(ctx context.Context, tenant string, key string) (Token, int64, error) {
	logger := log.WithContext(ctx, manager.logger).With(zap.String("operation", "Acquire"), zap.String("tenant", tenant), zap.String("key", key))
	logger.Debug("start Acquire()")

	token, err := manager.acquire(ctx, logger, tenant, key)

	if err != nil {
		logger.Debug("error", zap.Error(err))

		return nil, 0, err
	}

	c := manager.tiers.Fixed(cost.OpLock)
	logger.Debug("return from Acquire()", zap.Int64("cost", c))

	return token, c, nil
}

func (manager *manager) acquire(ctx context.Context, logger *zap.Logger, tenant string, key string) (Token, error) {
	locks, err := manager.locks(tenant, key)

	if err != nil {
		return nil, err
	}

	var token Token
	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(manager.retryDelay), uint64(manager.retryCount-1)), ctx)

	err = backoff.Retry(func() error {
		attempt++

		held, err := locks.Exists(ctx, key)

		if err != nil {
			return backoff.Permanent(fmt.Errorf("could not check lock: %w", err))
		}

		if held {
			logger.Debug("lock is held", zap.Int("attempt", attempt))

			return errHeld
		}

		candidate, err := NewToken()

		if err != nil {
			return backoff.Permanent(err)
		}

		result, err := locks.Set(ctx, key, candidate, kv.SetOptions{TTL: manager.expiry, Condition: kv.IfAbsent})

		if err != nil {
			return backoff.Permanent(fmt.Errorf("could not take lock: %w", err))
		}

		if !result.Written {
			// Someone else took the lock since it was checked
			return backoff.Permanent(ErrContention)
		}

		token = candidate

		return nil
	}, policy)

	if errors.Is(err, errHeld) {
		return nil, ErrContention
	}

	if err != nil {
		return nil, err
	}

	return token, nil
}

// Release implements Manager.Release
func (manager *manager) Release(ctx context.Context, tenant string, key string, token Token) (int64, error) {
	logger := log.WithContext(ctx, manager.logger).With(zap.String("operation", "Release"), zap.String("tenant", tenant), zap.String("key", key))
	logger.Debug("start Release()")

	if err := manager.release(ctx, tenant, key, token); err != nil {
		logger.Debug("error", zap.Error(err))

		return 0, err
	}

	c := manager.tiers.Fixed(cost.OpUnlock)
	logger.Debug("return from Release()", zap.Int64("cost", c))

	return c, nil
}

func (manager *manager) release(ctx context.Context, tenant string, key string, token Token) error {
	locks, err := manager.locks(tenant, key)

	if err != nil {
		return err
	}

	if len(token) != TokenSize {
		return ErrOwnershipMismatch
	}

	released, err := locks.DeleteIf(ctx, key, token)

	if err != nil {
		return fmt.Errorf("could not release lock: %w", err)
	}

	if !released {
		return ErrOwnershipMismatch
	}

	return nil
}
