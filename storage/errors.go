package storage

import (
	"errors"
	"fmt"

	"github.com/jrife/tenantkv/storage/kv/keys"
)

// wrapError adds context to err. Sentinel errors from
// lower layers stay matchable with errors.Is.
func wrapError(wrap string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keys.ErrInvalidTenant), errors.Is(err, keys.ErrInvalidKey):
		return fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}

	return fmt.Errorf("%s: %w", wrap, err)
}
