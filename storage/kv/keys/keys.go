// Package keys maps tenant-relative keys onto the flat keyspace of a
// shared backend. A tenant's data keys live under "<tenant>/" and its
// lock keys under "<tenant>.lock/".
package keys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// Separator joins a namespace and a tenant key
	Separator = "/"
	// LockSuffix marks the lock namespace of a tenant
	LockSuffix = ".lock"
)

var (
	// ErrInvalidTenant indicates that a tenant name cannot be
	// used to build a namespace
	ErrInvalidTenant = errors.New("invalid tenant")
	// ErrInvalidKey indicates that a key is empty
	ErrInvalidKey = errors.New("invalid key")
)

// ValidateTenant ensures that the data and lock namespaces
// of tenant can never overlap with those of another tenant.
// A tenant must be non-empty, must not contain the separator
// and must not end with the lock suffix.
func ValidateTenant(tenant string) error {
	switch {
	case tenant == "":
		return fmt.Errorf("%w: tenant is empty", ErrInvalidTenant)
	case strings.Contains(tenant, Separator):
		return fmt.Errorf("%w: %q contains %q", ErrInvalidTenant, tenant, Separator)
	case strings.HasSuffix(tenant, LockSuffix):
		return fmt.Errorf("%w: %q ends with %q", ErrInvalidTenant, tenant, LockSuffix)
	}

	return nil
}

// ValidateKey ensures that key is non-empty
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	return nil
}

// DataPrefix returns the prefix under which all of
// tenant's data keys are stored
func DataPrefix(tenant string) string {
	return tenant + Separator
}

// LockPrefix returns the prefix under which all of
// tenant's lock keys are stored
func LockPrefix(tenant string) string {
	return tenant + LockSuffix + Separator
}

// NamespacedKey returns the backend key for a tenant's data key
func NamespacedKey(tenant, key string) string {
	return DataPrefix(tenant) + key
}

// LockKey returns the backend key for a tenant's lock key
func LockKey(tenant, key string) string {
	return LockPrefix(tenant) + key
}

// Escape escapes glob metacharacters in s so that it
// matches itself literally inside a scan pattern.
func Escape(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}

	var b strings.Builder

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}

		b.WriteByte(s[i])
	}

	return b.String()
}

// Int64ToKey encodes i as 8 big-endian bytes
func Int64ToKey(i int64) [8]byte {
	var k [8]byte

	binary.BigEndian.PutUint64(k[:], uint64(i))

	return k
}

// KeyToInt64 decodes 8 big-endian bytes
func KeyToInt64(k [8]byte) int64 {
	return int64(binary.BigEndian.Uint64(k[:]))
}
