// Package storage implements the multi-tenant storage engine.
//
// Every tenant owns a private keyspace inside a shared kv backend.
// A value is persisted as a record holding the value itself or, if
// the value is larger than the overflow threshold, a reference to a
// blob in the overflow store. Records carry their logical size and
// last-modified time so that stat never has to touch the overflow
// store.
//
// Each successful operation reports its cost as computed by the
// cost package.
package storage
