// Package cost prices storage operations. Every successful operation
// has a fixed cost from its tier. Writes with an expiry additionally
// pay for the bytes they occupy for each whole second they are kept.
package cost

import (
	"math"
)

// Operation names
const (
	OpLoad   = "load"
	OpStore  = "store"
	OpDelete = "delete"
	OpExists = "exists"
	OpList   = "list"
	OpStat   = "stat"
	OpLock   = "lock"
	OpUnlock = "unlock"
)

// Tiers holds the fixed cost of each class of
// operation and the price of storing a byte for
// one second
type Tiers struct {
	// List is charged for listing
	List int64
	// Store is charged for store, load, stat, lock and unlock.
	// Older deployments charged the Exists price for store, load
	// and stat, so bills for those operations differ from theirs.
	Store int64
	// Exists is charged for exists and delete
	Exists int64
	// MemoryUnit is the price of one byte held for one second
	MemoryUnit int64
}

// DefaultTiers returns the default price list
func DefaultTiers() Tiers {
	return Tiers{
		List:       17637500,
		Store:      3527500,
		Exists:     1763750,
		MemoryUnit: 879583,
	}
}

// Fixed returns the fixed cost of operation
func (tiers Tiers) Fixed(operation string) int64 {
	switch operation {
	case OpList:
		return tiers.List
	case OpExists, OpDelete:
		return tiers.Exists
	}

	return tiers.Store
}

// Write returns the cost of a store operation that occupies
// bytes for expiryMs milliseconds. Only whole seconds are
// charged so an expiry of -1, meaning "keep the current
// expiry", costs the fixed price alone. The result saturates
// at math.MaxInt64.
func (tiers Tiers) Write(bytes int64, expiryMs int64) int64 {
	if bytes < 0 {
		bytes = 0
	}

	seconds := expiryMs / 1000

	if seconds < 0 {
		seconds = 0
	}

	return add(mul(mul(bytes, seconds), tiers.MemoryUnit), tiers.Fixed(OpStore))
}

// WriteBytes is the size charged for writing a record
// under a namespaced key
func WriteBytes(namespacedKey string, record []byte) int64 {
	return int64(len(namespacedKey)) + int64(len(record))
}

// RefreshBytes is the size charged for replacing a record
// of oldSize bytes with one of newSize bytes. Shrinking a
// record is free.
func RefreshBytes(newSize, oldSize int) int64 {
	if newSize <= oldSize {
		return 0
	}

	return int64(newSize - oldSize)
}

// mul multiplies two non-negative numbers saturating at math.MaxInt64
func mul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}

	if a > math.MaxInt64/b {
		return math.MaxInt64
	}

	return a * b
}

// add adds two non-negative numbers saturating at math.MaxInt64
func add(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}

	return a + b
}
