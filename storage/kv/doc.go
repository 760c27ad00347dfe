// Package kv defines the contract between the storage engine and the
// key-value backends that hold its records.
//
// A backend is a flat keyspace of string keys and byte values with
// optional per-key expiry. Writes can be made conditional on the key's
// existence, can keep the key's remaining time-to-live and can return
// the value they replaced, all atomically. Keys can be enumerated with
// a cursor based scan filtered by a glob pattern:
//
//   - '*' matches any sequence of characters
//   - '?' matches any single character
//   - '\' makes the following character literal
//
// A scan starts with the empty cursor and is finished when the
// backend hands the empty cursor back. A scan may return a key more
// than once but never skips a key that existed for the whole scan.
//
// Backends are created by plugins. Decorators such as Namespace and
// Deadline wrap a backend without changing its contract.
package kv
