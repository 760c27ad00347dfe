package kv

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Deadline bounds every round-trip to backend by timeout. A call
// that runs out of time fails with an error wrapping ErrTimeout.
// A timeout less than or equal to zero returns backend unchanged.
func Deadline(backend Backend, timeout time.Duration) Backend {
	if timeout <= 0 {
		return backend
	}

	return &deadlineBackend{backend: backend, timeout: timeout}
}

type deadlineBackend struct {
	backend Backend
	timeout time.Duration
}

func (dlBackend *deadlineBackend) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, dlBackend.timeout)
	defer cancel()

	value, err := dlBackend.backend.Get(ctx, key)

	return value, deadlineError(ctx, err)
}

func (dlBackend *deadlineBackend) Set(ctx context.Context, key string, value []byte, options SetOptions) (SetResult, error) {
	ctx, cancel := context.WithTimeout(ctx, dlBackend.timeout)
	defer cancel()

	result, err := dlBackend.backend.Set(ctx, key, value, options)

	return result, deadlineError(ctx, err)
}

func (dlBackend *deadlineBackend) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, dlBackend.timeout)
	defer cancel()

	return deadlineError(ctx, dlBackend.backend.Delete(ctx, key))
}

func (dlBackend *deadlineBackend) DeleteIf(ctx context.Context, key string, expected []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dlBackend.timeout)
	defer cancel()

	deleted, err := dlBackend.backend.DeleteIf(ctx, key, expected)

	return deleted, deadlineError(ctx, err)
}

func (dlBackend *deadlineBackend) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dlBackend.timeout)
	defer cancel()

	exists, err := dlBackend.backend.Exists(ctx, key)

	return exists, deadlineError(ctx, err)
}

func (dlBackend *deadlineBackend) Scan(ctx context.Context, cursor string, match string, count int64) ([]string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, dlBackend.timeout)
	defer cancel()

	page, next, err := dlBackend.backend.Scan(ctx, cursor, match, count)

	return page, next, deadlineError(ctx, err)
}

func (dlBackend *deadlineBackend) Close() error {
	return dlBackend.backend.Close()
}

func deadlineError(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrTimeout) {
		return err
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}

	return err
}
