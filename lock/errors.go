package lock

import (
	"errors"
	"fmt"

	"github.com/jrife/tenantkv/storage/kv/keys"
)

// ErrInvalidArgument is returned when a tenant or key
// can't name a lock
var ErrInvalidArgument = errors.New("invalid argument")

// wrapError adds context to err. Invalid tenants and keys
// become ErrInvalidArgument.
func wrapError(wrap string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keys.ErrInvalidTenant), errors.Is(err, keys.ErrInvalidKey):
		return fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}

	return fmt.Errorf("%s: %w", wrap, err)
}
